// Package elevate implements scoped elevation: a justified, time-boxed switch
// of the ambient identity to system scope with a guaranteed return to the
// prior scope and an audit trail of entry and exit.
//
// Elevation never mutates the caller's context; it derives a new one. The
// prior identity therefore cannot be corrupted by a scope that ends late, out
// of order, or not at all: code holding the original context keeps its
// original scope. Exiting a scope is still mandatory, because it closes the
// audit record.
package elevate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/oriys/umbra/internal/audit"
	"github.com/oriys/umbra/internal/logging"
	"github.com/oriys/umbra/internal/metrics"
	"github.com/oriys/umbra/internal/observability"
	"github.com/oriys/umbra/internal/tenant"
)

// Manager opens and closes elevation scopes against one audit sink.
type Manager struct {
	sink audit.Sink
}

// NewManager returns a manager reporting scope entry/exit to sink. A nil
// sink disables audit reporting.
func NewManager(sink audit.Sink) *Manager {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Manager{sink: sink}
}

// Scope is one open elevation. End must be called on every exit path; Execute
// does this for you and is the preferred entry point.
type Scope struct {
	mgr           *Manager
	justification string
	previous      tenant.Identity
	started       time.Time
	span          trace.Span
	done          atomic.Bool
}

// Begin captures the current ambient identity, then returns a derived context
// carrying system scope plus the scope handle. It fails with
// ErrInvalidArgument on an empty justification and with ErrNoContext when no
// identity was installed; elevation raises an existing scope, it never
// conjures one.
func (m *Manager) Begin(ctx context.Context, justification string) (context.Context, *Scope, error) {
	if justification == "" {
		return nil, nil, fmt.Errorf("%w: elevation requires a justification", tenant.ErrInvalidArgument)
	}
	previous, err := tenant.Require(ctx)
	if err != nil {
		return nil, nil, err
	}

	elevated := tenant.SystemScope("elevated:" + justification)
	ctx, span := observability.StartSpan(ctx, "elevate.scope",
		observability.AttrJustification.String(justification),
		observability.AttrTenantID.String(previous.TenantID()),
	)

	scope := &Scope{
		mgr:           m,
		justification: justification,
		previous:      previous,
		started:       time.Now(),
		span:          span,
	}

	logging.Op().Info("elevation scope opened",
		"justification", justification,
		"previous", previous.String(),
	)

	return tenant.WithIdentity(ctx, elevated), scope, nil
}

// Previous returns the identity that was ambient when the scope opened.
func (s *Scope) Previous() tenant.Identity { return s.previous }

// End closes the scope, recording its outcome. opErr is the error (if any)
// the elevated operation finished with; it is recorded and otherwise left
// alone. End is idempotent. Audit failures are logged and swallowed; the
// scope is considered closed regardless, and the caller's original context
// never carried the elevated identity in the first place.
func (s *Scope) End(ctx context.Context, opErr error) {
	if !s.done.CompareAndSwap(false, true) {
		return
	}

	duration := time.Since(s.started)
	outcome := "completed"
	if opErr != nil {
		outcome = "failed: " + opErr.Error()
		observability.SetSpanError(s.span, opErr)
	} else {
		observability.SetSpanOK(s.span)
	}
	s.span.SetAttributes(observability.AttrDurationMs.Int64(duration.Milliseconds()))
	s.span.End()

	metrics.RecordElevation(statusLabel(opErr), duration)

	rec := audit.Record{
		Timestamp:     time.Now().UTC(),
		Kind:          audit.KindElevation,
		TenantID:      s.previous.TenantID(),
		Justification: s.justification,
		Actor:         s.previous.Source(),
		Outcome:       outcome,
		DurationMS:    duration.Milliseconds(),
	}
	if err := s.mgr.sink.Write(ctx, rec); err != nil {
		logging.Op().Error("elevation audit write failed",
			"justification", s.justification,
			"error", err,
		)
	}
}

func statusLabel(opErr error) string {
	if opErr != nil {
		return "failed"
	}
	return "completed"
}

// Execute runs op under a fresh elevation scope and guarantees the scope is
// closed on every exit path, including panics. The operation's error is
// rethrown unchanged; elevation never swallows failures.
func (m *Manager) Execute(ctx context.Context, justification string, op func(ctx context.Context) error) error {
	elevated, scope, err := m.Begin(ctx, justification)
	if err != nil {
		return err
	}

	var opErr error
	defer func() {
		if r := recover(); r != nil {
			scope.End(ctx, fmt.Errorf("panic: %v", r))
			panic(r)
		}
		scope.End(ctx, opErr)
	}()

	opErr = op(elevated)
	return opErr
}
