package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	authModeAPIKey    = "api_key"
	authModeHeaderKey = "header_key"
)

// TokenSource returns credential material for request auth.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Source() string
}

type staticTokenSource struct {
	token  string
	source string
}

func NewStaticTokenSource(token, source string) TokenSource {
	return &staticTokenSource{
		token:  strings.TrimSpace(token),
		source: strings.TrimSpace(source),
	}
}

func (s *staticTokenSource) Token(context.Context) (string, error) {
	tok := strings.TrimSpace(s.token)
	if tok == "" {
		return "", fmt.Errorf("token is empty for %s", s.Source())
	}
	if isPlaceholderToken(tok) {
		return "", fmt.Errorf("token for %s looks like an unexpanded placeholder", s.Source())
	}
	return tok, nil
}

// isPlaceholderToken catches "<API_KEY>" and "${API_KEY}" values copied
// from sample configs.
func isPlaceholderToken(tok string) bool {
	if strings.HasPrefix(tok, "<") && strings.HasSuffix(tok, ">") {
		return true
	}
	return strings.HasPrefix(tok, "${") && strings.HasSuffix(tok, "}")
}

func (s *staticTokenSource) Source() string {
	if s.source != "" {
		return s.source
	}
	return "static"
}

// AuthStrategy applies request auth for provider HTTP calls.
type AuthStrategy interface {
	Mode() string
	Apply(ctx context.Context, req *http.Request) error
}

type apiKeyAuth struct {
	source TokenSource
}

// NewAPIKeyAuth sends the key as an Authorization bearer token.
func NewAPIKeyAuth(source TokenSource) AuthStrategy {
	return &apiKeyAuth{source: source}
}

func (a *apiKeyAuth) Mode() string {
	return authModeAPIKey
}

func (a *apiKeyAuth) Apply(ctx context.Context, req *http.Request) error {
	tok, err := resolveToken(ctx, a.source)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

type headerKeyAuth struct {
	header string
	source TokenSource
}

// NewHeaderKeyAuth sends the key verbatim in the named header, the way the
// Anthropic API expects x-api-key.
func NewHeaderKeyAuth(header string, source TokenSource) AuthStrategy {
	return &headerKeyAuth{header: strings.TrimSpace(header), source: source}
}

func (a *headerKeyAuth) Mode() string {
	return authModeHeaderKey
}

func (a *headerKeyAuth) Apply(ctx context.Context, req *http.Request) error {
	if a.header == "" {
		return fmt.Errorf("auth header name is empty")
	}
	tok, err := resolveToken(ctx, a.source)
	if err != nil {
		return err
	}
	req.Header.Set(a.header, tok)
	return nil
}

func resolveToken(ctx context.Context, source TokenSource) (string, error) {
	if source == nil {
		return "", fmt.Errorf("auth token source is nil")
	}
	tok, err := source.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve auth token: %w", err)
	}
	return tok, nil
}
