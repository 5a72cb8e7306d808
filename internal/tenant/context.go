package tenant

import "context"

type identityContextKey struct{}

var identityKey = identityContextKey{}

// WithIdentity installs the identity for the logical operation rooted at ctx.
// Installing is idempotent: re-installing replaces the value, which is normal
// when middleware re-resolves identity. Child goroutines spawned with the
// returned context see a copy at spawn time; an elevation in one branch is
// never visible to siblings.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the ambient identity and whether one was installed.
func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok || !id.Established() {
		return Identity{}, false
	}
	return id, true
}

// Require returns the ambient identity or ErrNoContext when none was
// installed. There is deliberately no default: reading before an identity is
// set is a programming error and fails loudly.
func Require(ctx context.Context) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return Identity{}, ErrNoContext
	}
	return id, nil
}
