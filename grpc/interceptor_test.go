package grpc

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	ga "github.com/gridpicks/gridauth"
)

func newTestAuth(t *testing.T) (*ga.GridAuth, string) {
	t.Helper()
	sessions, err := ga.NewSessionManager([]byte("grpc-test-secret-grpc-test-secret"), ga.WithSessionTTL(time.Hour))
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	token, err := sessions.Issue(&ga.Account{ID: "acct-1", Email: "ada@example.com", DisplayName: "Ada Lovelace"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return ga.New(nil, sessions), token
}

func withToken(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

func expectUnauthenticated(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	if st, _ := status.FromError(err); st.Code() != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated, got %v", st.Code())
	}
}

func TestDefaultInterceptorConfig(t *testing.T) {
	auth, _ := newTestAuth(t)
	config := DefaultInterceptorConfig(auth)
	if !config.RequireAuth {
		t.Error("expected RequireAuth to be true by default")
	}
	if config.PublicMethods == nil {
		t.Error("expected PublicMethods to be initialized")
	}

	config = NewPublicMethodsConfig(auth, "/gridpicks.Predictions/Leaderboard")
	if !config.PublicMethods["/gridpicks.Predictions/Leaderboard"] {
		t.Error("expected Leaderboard to be public")
	}
	if config.PublicMethods["/gridpicks.Predictions/Submit"] {
		t.Error("expected Submit to not be public")
	}

	if OptionalAuthConfig(auth).RequireAuth {
		t.Error("expected RequireAuth to be false")
	}
}

func TestUnaryAuthInterceptor_RequireAuth_NoToken(t *testing.T) {
	auth, _ := newTestAuth(t)
	interceptor := UnaryAuthInterceptor(DefaultInterceptorConfig(auth))
	info := &grpc.UnaryServerInfo{FullMethod: "/gridpicks.Predictions/Submit"}

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})
	expectUnauthenticated(t, err)
}

func TestUnaryAuthInterceptor_RequireAuth_BadToken(t *testing.T) {
	auth, token := newTestAuth(t)
	interceptor := UnaryAuthInterceptor(DefaultInterceptorConfig(auth))
	info := &grpc.UnaryServerInfo{FullMethod: "/gridpicks.Predictions/Submit"}

	_, err := interceptor(withToken(token+"x"), nil, info, func(ctx context.Context, req any) (any, error) {
		t.Error("handler should not be called")
		return nil, nil
	})
	expectUnauthenticated(t, err)
}

func TestUnaryAuthInterceptor_RequireAuth_ValidToken(t *testing.T) {
	auth, token := newTestAuth(t)
	interceptor := UnaryAuthInterceptor(DefaultInterceptorConfig(auth))
	info := &grpc.UnaryServerInfo{FullMethod: "/gridpicks.Predictions/Submit"}

	var gotID, gotName string
	resp, err := interceptor(withToken(token), "req", info, func(ctx context.Context, req any) (any, error) {
		gotID = AccountIDFromContext(ctx)
		if s, ok := ga.SessionFromContext(ctx); ok {
			gotName = s.Claims.Name
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Errorf("expected response %q, got %v", "ok", resp)
	}
	if gotID != "acct-1" {
		t.Errorf("expected account id %q, got %q", "acct-1", gotID)
	}
	if gotName != "Ada Lovelace" {
		t.Errorf("expected name %q, got %q", "Ada Lovelace", gotName)
	}
}

func TestUnaryAuthInterceptor_PublicMethod(t *testing.T) {
	auth, _ := newTestAuth(t)
	interceptor := UnaryAuthInterceptor(NewPublicMethodsConfig(auth, "/gridpicks.Predictions/Leaderboard"))
	info := &grpc.UnaryServerInfo{FullMethod: "/gridpicks.Predictions/Leaderboard"}

	called := false
	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		called = true
		if IsAuthenticated(ctx) {
			t.Error("expected anonymous call")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestUnaryAuthInterceptor_OptionalAuth(t *testing.T) {
	auth, token := newTestAuth(t)
	interceptor := UnaryAuthInterceptor(OptionalAuthConfig(auth))
	info := &grpc.UnaryServerInfo{FullMethod: "/gridpicks.Predictions/Submit"}

	for name, ctx := range map[string]context.Context{
		"anonymous": context.Background(),
		"invalid":   withToken("garbage"),
	} {
		_, err := interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
			if IsAuthenticated(ctx) {
				t.Errorf("%s: expected anonymous call", name)
			}
			return nil, nil
		})
		if err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
		}
	}

	_, err := interceptor(withToken(token), nil, info, func(ctx context.Context, req any) (any, error) {
		if AccountIDFromContext(ctx) != "acct-1" {
			t.Error("expected session to be attached when a valid token is sent")
		}
		return nil, nil
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context { return m.ctx }

func TestStreamAuthInterceptor_RequireAuth_NoToken(t *testing.T) {
	auth, _ := newTestAuth(t)
	interceptor := StreamAuthInterceptor(DefaultInterceptorConfig(auth))
	info := &grpc.StreamServerInfo{FullMethod: "/gridpicks.Live/Timing"}

	err := interceptor(nil, &mockServerStream{ctx: context.Background()}, info, func(srv any, stream grpc.ServerStream) error {
		t.Error("handler should not be called")
		return nil
	})
	expectUnauthenticated(t, err)
}

func TestStreamAuthInterceptor_RequireAuth_ValidToken(t *testing.T) {
	auth, token := newTestAuth(t)
	interceptor := StreamAuthInterceptor(DefaultInterceptorConfig(auth))
	info := &grpc.StreamServerInfo{FullMethod: "/gridpicks.Live/Timing"}

	called := false
	err := interceptor(nil, &mockServerStream{ctx: withToken(token)}, info, func(srv any, stream grpc.ServerStream) error {
		called = true
		if id := AccountIDFromContext(stream.Context()); id != "acct-1" {
			t.Errorf("expected account id %q on the stream context, got %q", "acct-1", id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestStreamAuthInterceptor_PublicMethod(t *testing.T) {
	auth, _ := newTestAuth(t)
	interceptor := StreamAuthInterceptor(NewPublicMethodsConfig(auth, "/gridpicks.Live/Timing"))
	info := &grpc.StreamServerInfo{FullMethod: "/gridpicks.Live/Timing"}

	called := false
	err := interceptor(nil, &mockServerStream{ctx: context.Background()}, info, func(srv any, stream grpc.ServerStream) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}
