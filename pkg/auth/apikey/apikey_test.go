package apikey

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ausweis-dev/ausweis/pkg/auth"
)

func newAuthenticator() *Authenticator {
	return New([]RawKeyEntry{
		{Key: "sk-valid-key", Identity: auth.Identity{Subject: "issuer-bot", TenantID: "tn_1"}},
		{Key: "sk-other-key", Identity: auth.Identity{Subject: "verifier-bot"}},
	})
}

func TestAuthenticate(t *testing.T) {
	a := newAuthenticator()
	ctx := context.Background()

	tests := []struct {
		name     string
		header   string
		decision auth.Decision
		subject  string
	}{
		{"valid key", "Bearer sk-valid-key", auth.Yes, "issuer-bot"},
		{"second key", "Bearer sk-other-key", auth.Yes, "verifier-bot"},
		{"unknown key", "Bearer sk-wrong", auth.No, ""},
		{"empty token", "Bearer ", auth.No, ""},
		{"no header", "", auth.Abstain, ""},
		{"basic scheme", "Basic dXNlcjpwYXNz", auth.Abstain, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			result := a.Authenticate(ctx, req)
			if result.Decision != tt.decision {
				t.Fatalf("expected decision %v, got %v", tt.decision, result.Decision)
			}
			if tt.subject != "" && result.Identity.Subject != tt.subject {
				t.Errorf("expected subject %q, got %q", tt.subject, result.Identity.Subject)
			}
		})
	}
}

func TestIdentityCopied(t *testing.T) {
	a := newAuthenticator()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer sk-valid-key")

	first := a.Authenticate(context.Background(), req)
	first.Identity.Subject = "mutated"

	second := a.Authenticate(context.Background(), req)
	if second.Identity.Subject != "issuer-bot" {
		t.Error("returned identity must be a copy")
	}
}
