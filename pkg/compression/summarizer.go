package compression

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/theracowch/cowch/pkg/providers"
)

// ErrSummarizerStatus wraps non-2xx responses from the summarization
// endpoint.
var ErrSummarizerStatus = errors.New("summarizer returned non-success status")

// Summarizer turns a compression prompt into raw model text that should
// contain a JSON object.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// SummarizeRequest and SummarizeResponse are the wire shapes of the
// /api/compress-profile endpoint.
type SummarizeRequest struct {
	Prompt string `json:"prompt"`
}

type SummarizeResponse struct {
	Compressed string `json:"compressed"`
}

// HTTPSummarizer posts prompts to a summarization endpoint.
type HTTPSummarizer struct {
	url        string
	httpClient *http.Client
}

func NewHTTPSummarizer(url string, timeout time.Duration) *HTTPSummarizer {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPSummarizer{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	if s.url == "" {
		return "", fmt.Errorf("summarizer URL not configured")
	}
	payload, err := json.Marshal(SummarizeRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal summarize request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create summarize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send summarize request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read summarize response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%w: status=%d", ErrSummarizerStatus, resp.StatusCode)
	}

	var out SummarizeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode summarize response: %w", err)
	}
	return out.Compressed, nil
}

const summarizerMaxTokens = 500

// ProviderSummarizer sends the prompt straight to an LLM provider.
type ProviderSummarizer struct {
	provider providers.LLMProvider
	model    string
}

func NewProviderSummarizer(provider providers.LLMProvider, model string) *ProviderSummarizer {
	return &ProviderSummarizer{provider: provider, model: strings.TrimSpace(model)}
}

func (s *ProviderSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("summarizer provider not configured")
	}
	resp, err := s.provider.Chat(ctx, []providers.Message{
		{Role: "user", Content: prompt},
	}, s.model, map[string]interface{}{
		"max_tokens":  summarizerMaxTokens,
		"temperature": 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("summarize via provider: %w", err)
	}
	return resp.Content, nil
}

// SummarizerFunc adapts a plain function to Summarizer.
type SummarizerFunc func(ctx context.Context, prompt string) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
