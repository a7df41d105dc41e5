package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc/metadata"

	ga "github.com/gridpicks/gridauth"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.MetadataKey != DefaultMetadataKey {
		t.Errorf("expected MetadataKey %q, got %q", DefaultMetadataKey, config.MetadataKey)
	}

	empty := &Config{}
	empty.EnsureDefaults()
	if empty.MetadataKey != DefaultMetadataKey {
		t.Errorf("expected MetadataKey %q, got %q", DefaultMetadataKey, empty.MetadataKey)
	}
}

func TestTokenFromContext_NoMetadata(t *testing.T) {
	if token := TokenFromContext(context.Background(), nil); token != "" {
		t.Errorf("expected empty token, got %q", token)
	}
}

func TestTokenFromContext_Bearer(t *testing.T) {
	for _, value := range []string{"Bearer abc.def.ghi", "bearer abc.def.ghi", "abc.def.ghi"} {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", value))
		if token := TokenFromContext(ctx, nil); token != "abc.def.ghi" {
			t.Errorf("%q: expected token %q, got %q", value, "abc.def.ghi", token)
		}
	}
}

func TestTokenFromContext_CustomKey(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		"authorization", "ignored",
		"x-gridauth-session", "tok",
	))
	if token := TokenFromContext(ctx, &Config{MetadataKey: "x-gridauth-session"}); token != "tok" {
		t.Errorf("expected token %q, got %q", "tok", token)
	}
}

func TestTokenToOutgoingContext(t *testing.T) {
	ctx := TokenToOutgoingContext(context.Background(), "tok", nil)
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	if got := md.Get(DefaultMetadataKey); len(got) != 1 || got[0] != "Bearer tok" {
		t.Errorf("expected [Bearer tok], got %v", got)
	}

	// what a client sends is what a server reads
	incoming := metadata.NewIncomingContext(context.Background(), md)
	if token := TokenFromContext(incoming, nil); token != "tok" {
		t.Errorf("expected token %q, got %q", "tok", token)
	}
}

func TestTokenToOutgoingContext_CustomKey(t *testing.T) {
	config := &Config{MetadataKey: "x-gridauth-session"}
	md, _ := metadata.FromOutgoingContext(TokenToOutgoingContext(context.Background(), "tok", config))
	if got := md.Get(DefaultMetadataKey); len(got) != 0 {
		t.Errorf("expected nothing under %q, got %v", DefaultMetadataKey, got)
	}

	incoming := metadata.NewIncomingContext(context.Background(), md)
	if token := TokenFromContext(incoming, config); token != "tok" {
		t.Errorf("expected token %q, got %q", "tok", token)
	}
}

func TestAccountIDFromContext(t *testing.T) {
	if IsAuthenticated(context.Background()) {
		t.Error("expected anonymous context")
	}
	ctx := ga.ContextWithSession(context.Background(), &ga.Session{Subject: "acct-1"})
	if id := AccountIDFromContext(ctx); id != "acct-1" {
		t.Errorf("expected account id %q, got %q", "acct-1", id)
	}
	if !IsAuthenticated(ctx) {
		t.Error("expected authenticated context")
	}
}
