package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ga "github.com/gridpicks/gridauth"
)

// SessionValidator is the slice of gridauth.GridAuth the interceptors need
type SessionValidator interface {
	CurrentSession(token string) (*ga.Session, bool)
}

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Sessions validates the token found in metadata. Required.
	Sessions SessionValidator

	// RequireAuth when true rejects calls without a valid session.
	// When false, calls proceed anonymously and AccountIDFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only used when RequireAuth is true.
	// Keys should be full method names like "/gridpicks.Predictions/Leaderboard".
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(sessions SessionValidator) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Sessions:      sessions,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(sessions SessionValidator, publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig(sessions)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(sessions SessionValidator) *InterceptorConfig {
	config := DefaultInterceptorConfig(sessions)
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() {
	if c.Sessions == nil {
		panic("grpc: InterceptorConfig.Sessions is required")
	}
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
}

// authenticate returns the context to hand to the handler, with the session
// attached when the token is valid.
func (c *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	var session *ga.Session
	if token := TokenFromContext(ctx, c.Config); token != "" {
		var ok bool
		if session, ok = c.Sessions.CurrentSession(token); !ok {
			slog.Debug("rejected grpc session token", "method", method)
			session = nil
		}
	}

	if session == nil {
		if c.RequireAuth && !c.PublicMethods[method] {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}
	return ga.ContextWithSession(ctx, session), nil
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that validates the session token.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// authenticatedStream overrides Context so handlers see the session
type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context { return s.ctx }

// StreamAuthInterceptor returns a gRPC stream interceptor that validates the session token.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: ctx})
	}
}
