package grpc

import (
	"context"
	"fmt"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/oriys/umbra/internal/observability"
	"github.com/oriys/umbra/internal/resolver"
	"github.com/oriys/umbra/internal/tenant"
)

func initTestTelemetry(t *testing.T) {
	t.Helper()
	err := observability.Init(context.Background(), observability.Config{
		Enabled: true, Exporter: "stdout", ServiceName: "umbra-test", SampleRate: 1.0,
	})
	if err != nil {
		t.Fatalf("telemetry init: %v", err)
	}
	t.Cleanup(func() {
		observability.Shutdown(context.Background())
		observability.Init(context.Background(), observability.Config{Enabled: false})
	})
}

type fakeLookup map[string]*resolver.Info

func (f fakeLookup) Lookup(_ context.Context, identifier string) (*resolver.Info, error) {
	info, ok := f[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", tenant.ErrTenantNotFound, identifier)
	}
	return info, nil
}

var testLookup = fakeLookup{
	"acme":    {ID: "t-acme", Name: "acme", Active: true},
	"dormant": {ID: "t-dormant", Name: "dormant", Active: false},
}

func unaryInfo() *grpc.UnaryServerInfo {
	return &grpc.UnaryServerInfo{FullMethod: "/umbra.v1.Orders/Get"}
}

func TestUnaryTenantInterceptorEstablishesIdentity(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		TenantMetadataKey, "acme",
	))

	var seen string
	handler := func(ctx context.Context, req any) (any, error) {
		id, err := tenant.Require(ctx)
		if err != nil {
			return nil, err
		}
		seen = id.TenantID()
		return "ok", nil
	}

	resp, err := UnaryTenantInterceptor(testLookup)(ctx, nil, unaryInfo(), handler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if resp != "ok" || seen != "t-acme" {
		t.Fatalf("handler saw tenant %q, resp %v", seen, resp)
	}
}

func TestUnaryTenantInterceptorRejectsMissingMetadata(t *testing.T) {
	handler := func(context.Context, any) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	}

	_, err := UnaryTenantInterceptor(testLookup)(context.Background(), nil, unaryInfo(), handler)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestUnaryTenantInterceptorRejectsUnknownAndDisabledAlike(t *testing.T) {
	handler := func(context.Context, any) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	}

	var messages [2]string
	for i, id := range []string{"ghost", "dormant"} {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
			TenantMetadataKey, id,
		))
		_, err := UnaryTenantInterceptor(testLookup)(ctx, nil, unaryInfo(), handler)
		st, ok := status.FromError(err)
		if !ok || st.Code() != codes.PermissionDenied {
			t.Fatalf("%s: expected PermissionDenied, got %v", id, err)
		}
		messages[i] = st.Message()
	}
	if messages[0] != messages[1] {
		t.Fatalf("unknown vs disabled statuses differ: %q vs %q", messages[0], messages[1])
	}
}

func TestStreamTenantInterceptorWrapsContext(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		TenantMetadataKey, "acme",
	))

	var seen string
	handler := func(srv any, ss grpc.ServerStream) error {
		id, err := tenant.Require(ss.Context())
		if err != nil {
			return err
		}
		seen = id.TenantID()
		return nil
	}

	err := StreamTenantInterceptor(testLookup)(nil, &stubStream{ctx: ctx}, &grpc.StreamServerInfo{}, handler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if seen != "t-acme" {
		t.Fatalf("stream handler saw tenant %q", seen)
	}
}

type stubStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *stubStream) Context() context.Context { return s.ctx }

func TestClientInterceptorPropagatesTenant(t *testing.T) {
	id, err := tenant.ForTenant("t-acme", "test")
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	ctx := tenant.WithIdentity(context.Background(), id)

	var got []string
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		got = md.Get(TenantMetadataKey)
		return nil
	}

	if err := UnaryClientTenantInterceptor()(ctx, "/m", nil, nil, nil, invoker); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if len(got) != 1 || got[0] != "t-acme" {
		t.Fatalf("outgoing metadata = %v", got)
	}
}

func TestClientInterceptorDoesNotPropagateSystemScope(t *testing.T) {
	ctx := tenant.WithIdentity(context.Background(), tenant.SystemScope("test"))

	var got []string
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		got = md.Get(TenantMetadataKey)
		return nil
	}

	if err := UnaryClientTenantInterceptor()(ctx, "/m", nil, nil, nil, invoker); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("system scope leaked onto the wire: %v", got)
	}
}

func TestClientInterceptorPropagatesTraceContext(t *testing.T) {
	initTestTelemetry(t)

	id, err := tenant.ForTenant("t-acme", "test")
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	ctx := tenant.WithIdentity(context.Background(), id)
	ctx, span := observability.StartSpan(ctx, "caller")
	defer span.End()

	var parent []string
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		parent = md.Get("traceparent")
		return nil
	}

	if err := UnaryClientTenantInterceptor()(ctx, "/m", nil, nil, nil, invoker); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if len(parent) != 1 || parent[0] == "" {
		t.Fatalf("traceparent missing from outgoing metadata: %v", parent)
	}
}

func TestUnaryTenantInterceptorLinksCallerTrace(t *testing.T) {
	initTestTelemetry(t)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		TenantMetadataKey, "acme",
		"traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	))

	var traceID string
	handler := func(ctx context.Context, req any) (any, error) {
		traceID = observability.GetTraceID(ctx)
		return "ok", nil
	}

	if _, err := UnaryTenantInterceptor(testLookup)(ctx, nil, unaryInfo(), handler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if traceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("handler span not linked to caller trace, got %q", traceID)
	}
}
