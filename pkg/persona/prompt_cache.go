package persona

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/theracowch/cowch/pkg/logger"
)

const (
	DefaultFrameworkURL = "https://theracowch.com/imagine-framework-prompts-enhanced.txt"
	DefaultPromptTTL    = 2 * time.Hour

	frameworkCacheKey = "imagine_framework"
)

// Clock abstracts time for cache freshness checks.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type cachedPrompt struct {
	text      string
	fetchedAt time.Time
}

// PromptCache holds the IMAGINE framework prompt text fetched from a URL.
// A failed fetch falls back to the built-in persona prompt and is not
// cached, so the next call retries.
type PromptCache struct {
	url        string
	ttl        time.Duration
	clock      Clock
	httpClient *http.Client
	entries    *cache.Cache
}

func NewPromptCache(url string, ttl time.Duration, clock Clock) *PromptCache {
	if strings.TrimSpace(url) == "" {
		url = DefaultFrameworkURL
	}
	if ttl <= 0 {
		ttl = DefaultPromptTTL
	}
	if clock == nil {
		clock = SystemClock
	}
	return &PromptCache{
		url:        strings.TrimSpace(url),
		ttl:        ttl,
		clock:      clock,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		entries:    cache.New(ttl, ttl*2),
	}
}

// Get returns the framework prompt, refreshing it when the cached copy is
// older than the TTL.
func (c *PromptCache) Get(ctx context.Context) string {
	now := c.clock.Now()
	if v, ok := c.entries.Get(frameworkCacheKey); ok {
		entry := v.(cachedPrompt)
		if now.Sub(entry.fetchedAt) < c.ttl {
			return entry.text
		}
	}

	text, err := c.fetch(ctx)
	if err != nil {
		logger.WarnCF("persona", "Could not fetch framework prompts, using fallback", map[string]interface{}{
			"url":   c.url,
			"error": err.Error(),
		})
		return FallbackPersonaPrompt
	}
	c.entries.Set(frameworkCacheKey, cachedPrompt{text: text, fetchedAt: now}, cache.DefaultExpiration)
	logger.DebugCF("persona", "Framework prompts refreshed", map[string]interface{}{"bytes": len(text)})
	return text
}

// Invalidate drops the cached prompt.
func (c *PromptCache) Invalidate() {
	c.entries.Delete(frameworkCacheKey)
}

func (c *PromptCache) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("create framework request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch framework prompts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("fetch framework prompts: status=%d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read framework prompts: %w", err)
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", fmt.Errorf("framework prompts are empty")
	}
	return text, nil
}
