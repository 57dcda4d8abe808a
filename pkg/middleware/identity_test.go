package middleware_test

import (
	"context"
	"testing"

	"github.com/loglens/loglens/pkg/contracts"
	"github.com/loglens/loglens/pkg/middleware"
)

func TestIdentityRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := middleware.Subject(ctx); got != "anonymous" {
		t.Errorf("Subject(empty) = %q, want %q", got, "anonymous")
	}
	if middleware.SetIdentity(ctx, nil) != ctx {
		t.Error("SetIdentity(nil) returned a new context")
	}

	id := &contracts.Identity{Subject: "apikey:0123456789abcdef", Fingerprint: "0123456789abcdef"}
	ctx = middleware.SetIdentity(ctx, id)
	if got := middleware.GetIdentity(ctx); got != id {
		t.Errorf("GetIdentity() = %v, want %v", got, id)
	}
	if got := middleware.Subject(ctx); got != id.Subject {
		t.Errorf("Subject() = %q, want %q", got, id.Subject)
	}
}
