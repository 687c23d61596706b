package providers

import (
	"context"
	"net/http"
	"testing"
)

func TestStaticTokenSource_RejectsPlaceholderToken(t *testing.T) {
	src := NewStaticTokenSource("<ANTHROPIC_API_KEY>", "providers.anthropic.api_key")
	if _, err := src.Token(context.Background()); err == nil {
		t.Fatalf("expected placeholder token to be rejected")
	}
}

func TestStaticTokenSource_RejectsEnvReferenceToken(t *testing.T) {
	src := NewStaticTokenSource("${OPENROUTER_API_KEY}", "providers.openrouter.api_key")
	if _, err := src.Token(context.Background()); err == nil {
		t.Fatalf("expected env reference token to be rejected")
	}
}

func TestStaticTokenSource_RejectsEmptyToken(t *testing.T) {
	src := NewStaticTokenSource("   ", "")
	if _, err := src.Token(context.Background()); err == nil {
		t.Fatalf("expected empty token to be rejected")
	}
	if src.Source() != "static" {
		t.Fatalf("expected fallback source name, got %q", src.Source())
	}
}

func TestAPIKeyAuth_SetsBearerHeader(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid", nil)
	auth := NewAPIKeyAuth(NewStaticTokenSource(" sk-test ", "test"))
	if err := auth.Apply(context.Background(), req); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Fatalf("expected bearer header, got %q", got)
	}
	if auth.Mode() != authModeAPIKey {
		t.Fatalf("unexpected mode %q", auth.Mode())
	}
}

func TestHeaderKeyAuth_SetsNamedHeader(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid", nil)
	auth := NewHeaderKeyAuth("x-api-key", NewStaticTokenSource("ant-key", "test"))
	if err := auth.Apply(context.Background(), req); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := req.Header.Get("x-api-key"); got != "ant-key" {
		t.Fatalf("expected x-api-key header, got %q", got)
	}
	if req.Header.Get("Authorization") != "" {
		t.Fatalf("header auth must not set Authorization")
	}
}

func TestHeaderKeyAuth_NilSource(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid", nil)
	if err := NewHeaderKeyAuth("x-api-key", nil).Apply(context.Background(), req); err == nil {
		t.Fatalf("expected nil source error")
	}
}
