// Package grpc authenticates gRPC calls with the same session tokens the
// HTTP surface issues, carried in request metadata.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"

	ga "github.com/gridpicks/gridauth"
)

// DefaultMetadataKey is the gRPC metadata key carrying the session token
const DefaultMetadataKey = "authorization"

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKey is the gRPC metadata key for the session token.
	// Defaults to "authorization". Values may carry a "Bearer " prefix.
	MetadataKey string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{MetadataKey: DefaultMetadataKey}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKey == "" {
		c.MetadataKey = DefaultMetadataKey
	}
}

// TokenFromContext extracts the session token from incoming metadata.
// Returns empty string if none was sent.
func TokenFromContext(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(config.MetadataKey) {
		v = strings.TrimSpace(v)
		if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			v = strings.TrimSpace(v[7:])
		}
		if v != "" {
			return v
		}
	}
	return ""
}

// TokenToOutgoingContext attaches a session token to outgoing metadata under
// config's key, for HTTP handlers that call gRPC services on behalf of the
// signed in user.
func TokenToOutgoingContext(ctx context.Context, token string, config *Config) context.Context {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()
	return metadata.AppendToOutgoingContext(ctx, config.MetadataKey, "Bearer "+token)
}

// AccountIDFromContext returns the authenticated account id placed in the
// context by the interceptors, or "" for anonymous calls.
func AccountIDFromContext(ctx context.Context) string {
	if session, ok := ga.SessionFromContext(ctx); ok {
		return session.Subject
	}
	return ""
}

// IsAuthenticated returns true if the interceptors validated a session for this call.
func IsAuthenticated(ctx context.Context) bool {
	return AccountIDFromContext(ctx) != ""
}
