// Package grpc provides interceptors that carry the ambient tenant identity
// across gRPC boundaries: servers establish it from incoming metadata,
// clients propagate it on outgoing calls.
package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/oriys/umbra/internal/logging"
	"github.com/oriys/umbra/internal/metrics"
	"github.com/oriys/umbra/internal/observability"
	"github.com/oriys/umbra/internal/resolver"
	"github.com/oriys/umbra/internal/tenant"
)

// TenantMetadataKey is the metadata key carrying the tenant identifier.
const TenantMetadataKey = "x-tenant-id"

// W3C trace context metadata keys, matching the header names HTTP uses.
const (
	traceParentKey = "traceparent"
	traceStateKey  = "tracestate"
)

// traceContextFromMetadata links the server-side trace to the caller's by
// lifting W3C trace context out of incoming metadata.
func traceContextFromMetadata(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	var tc observability.TraceContext
	if vals := md.Get(traceParentKey); len(vals) > 0 {
		tc.TraceParent = vals[0]
	}
	if vals := md.Get(traceStateKey); len(vals) > 0 {
		tc.TraceState = vals[0]
	}
	return observability.InjectTraceContext(ctx, tc)
}

// identityFromMetadata resolves incoming metadata to an established tenant
// identity via the directory lookup.
func identityFromMetadata(ctx context.Context, lookup resolver.Lookup) (tenant.Identity, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return tenant.Identity{}, tenant.ErrNoContext
	}
	vals := md.Get(TenantMetadataKey)
	if len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
		return tenant.Identity{}, tenant.ErrNoContext
	}
	return resolver.IdentityFor(ctx, lookup, strings.TrimSpace(vals[0]), "grpc")
}

// UnaryTenantInterceptor establishes the ambient tenant identity for every
// unary call. Calls without a resolvable, active tenant are rejected before
// the handler runs.
func UnaryTenantInterceptor(lookup resolver.Lookup) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		identity, err := identityFromMetadata(ctx, lookup)
		if err != nil {
			metrics.RecordResolution("rejected")
			return nil, statusFromError(err)
		}
		metrics.RecordResolution("ok")

		ctx = tenant.WithIdentity(ctx, identity)
		ctx, span := observability.StartServerSpan(traceContextFromMetadata(ctx), info.FullMethod,
			observability.AttrTenantID.String(identity.TenantID()),
		)
		defer span.End()

		resp, err := handler(ctx, req)
		if err != nil {
			observability.SetSpanError(span, err)
		} else {
			observability.SetSpanOK(span)
		}
		return resp, err
	}
}

// StreamTenantInterceptor is the stream counterpart of
// UnaryTenantInterceptor.
func StreamTenantInterceptor(lookup resolver.Lookup) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		identity, err := identityFromMetadata(ss.Context(), lookup)
		if err != nil {
			metrics.RecordResolution("rejected")
			return statusFromError(err)
		}
		metrics.RecordResolution("ok")
		return handler(srv, &tenantStream{ServerStream: ss, ctx: tenant.WithIdentity(ss.Context(), identity)})
	}
}

type tenantStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tenantStream) Context() context.Context { return s.ctx }

// UnaryLoggingInterceptor logs every unary call with its tenant, trace
// correlation and outcome.
func UnaryLoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)

		tenantID := ""
		if id, ok := tenant.FromContext(ctx); ok {
			tenantID = id.TenantID()
		}
		log := logging.OpWithTrace(observability.GetTraceID(ctx), observability.GetSpanID(ctx))

		if err != nil {
			log.Error("gRPC request failed",
				"method", info.FullMethod,
				"tenant", tenantID,
				"duration", duration,
				"error", err,
			)
		} else {
			log.Info("gRPC request completed",
				"method", info.FullMethod,
				"tenant", tenantID,
				"duration", duration,
			)
		}
		return resp, err
	}
}

// UnaryClientTenantInterceptor propagates the ambient tenant identity and
// the live trace context onto outgoing calls, so a service hop preserves the
// caller's scope and trace. System scope does not propagate: the receiving
// side must establish its own.
func UnaryClientTenantInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if id, ok := tenant.FromContext(ctx); ok && !id.IsSystem() {
			ctx = metadata.AppendToOutgoingContext(ctx, TenantMetadataKey, id.TenantID())
		}
		if tc := observability.ExtractTraceContext(ctx); tc.TraceParent != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, traceParentKey, tc.TraceParent)
			if tc.TraceState != "" {
				ctx = metadata.AppendToOutgoingContext(ctx, traceStateKey, tc.TraceState)
			}
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// statusFromError maps engine errors to gRPC statuses. Violation detail is
// withheld from the caller, same as the HTTP surface.
func statusFromError(err error) error {
	switch {
	case errors.Is(err, tenant.ErrIsolationViolation):
		return status.Error(codes.PermissionDenied, "access denied")
	case errors.Is(err, tenant.ErrNoContext):
		return status.Error(codes.Unauthenticated, "tenant identity required")
	case errors.Is(err, tenant.ErrTenantNotFound), errors.Is(err, tenant.ErrTenantDisabled):
		return status.Error(codes.PermissionDenied, "tenant access denied")
	case errors.Is(err, tenant.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
