package persona

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theracowch/cowch/pkg/profile"
	"github.com/theracowch/cowch/pkg/providers"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestDetectPattern(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"I feel so anxious today", "anxiety"},
		{"I'm scared and sad", "anxiety"},
		{"Feeling really DOWN lately", "depression"},
		{"My partner never listens", "relationships"},
		{"It goes back to my childhood", "trauma"},
		{"I made a mistake at work", "perfectionism"},
		{"What's the weather like?", "general"},
		{"", "general"},
	}
	for _, tc := range cases {
		if got := DetectPattern(tc.message); got != tc.want {
			t.Fatalf("DetectPattern(%q) = %q, want %q", tc.message, got, tc.want)
		}
	}
}

func TestPromptCache_TTLWithFakeClock(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("  framework v" + string(rune('0'+n)) + "  "))
	}))
	defer server.Close()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewPromptCache(server.URL, 2*time.Hour, clock)

	assert.Equal(t, "framework v1", cache.Get(context.Background()))
	clock.Advance(119 * time.Minute)
	assert.Equal(t, "framework v1", cache.Get(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, "framework v2", cache.Get(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	cache.Invalidate()
	assert.Equal(t, "framework v3", cache.Get(context.Background()))
}

func TestPromptCache_FallbackNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("fresh framework"))
	}))
	defer server.Close()

	cache := NewPromptCache(server.URL, time.Hour, &fakeClock{now: time.Now()})
	assert.Equal(t, FallbackPersonaPrompt, cache.Get(context.Background()))

	fail.Store(false)
	assert.Equal(t, "fresh framework", cache.Get(context.Background()))
}

func TestBuildSystemPrompt(t *testing.T) {
	summary := "Talked about sleep"
	apiCtx := &profile.APIContext{Profile: profile.ProfileContext{
		SessionCount: 3,
		Patterns:     "anxiety, stress",
		Strengths:    "humor",
		LastSession:  &summary,
	}}

	prompt := BuildSystemPrompt("FRAMEWORK", "anxiety", "exploring", apiCtx)
	assert.True(t, strings.HasPrefix(prompt, "FRAMEWORK\n\nCurrent wellness focus: anxiety\nSession phase: exploring\n\n"))
	assert.Contains(t, prompt, "(3 previous sessions)")
	assert.Contains(t, prompt, "- Recurring patterns: anxiety, stress")
	assert.Contains(t, prompt, "- Last session: Talked about sleep")
	assert.NotContains(t, prompt, "Currently working on")
	assert.True(t, strings.HasSuffix(prompt, "not distract from the connection."))

	bare := BuildSystemPrompt("FRAMEWORK", "", "", &profile.APIContext{})
	assert.True(t, strings.HasPrefix(bare, "FRAMEWORK\n\nRespond authentically"))
}

type recordingProvider struct {
	messages []providers.Message
	options  map[string]interface{}
	model    string
	reply    string
	err      error
}

func (p *recordingProvider) Chat(_ context.Context, messages []providers.Message, model string, options map[string]interface{}) (*providers.LLMResponse, error) {
	p.messages = messages
	p.options = options
	p.model = model
	if p.err != nil {
		return nil, p.err
	}
	return &providers.LLMResponse{Content: p.reply}, nil
}

func (p *recordingProvider) GetDefaultModel() string { return "default" }

func newOfflineCache(t *testing.T) *PromptCache {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("TEST FRAMEWORK"))
	}))
	t.Cleanup(server.Close)
	return NewPromptCache(server.URL, time.Hour, nil)
}

func TestChatService_Reply(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	rp := &recordingProvider{reply: "That sounds heavy."}
	svc := NewChatService(rp, newOfflineCache(t), ChatOptions{Model: "m1", Temperature: 0.7, Now: func() time.Time { return fixed }})

	var history []profile.Message
	for i := 0; i < 10; i++ {
		role := profile.RoleUser
		if i%2 == 1 {
			role = profile.RoleAssistant
		}
		history = append(history, profile.Message{Role: role, Content: "turn"})
	}

	reply, err := svc.Reply(context.Background(), ChatRequest{Message: "I worry all the time", History: history})
	require.NoError(t, err)
	assert.Equal(t, "That sounds heavy.", reply.Response)
	assert.Equal(t, "anxiety", reply.Pattern)
	assert.Equal(t, DefaultSessionPhase, reply.SessionPhase)
	assert.True(t, reply.Timestamp.Equal(fixed))

	require.Len(t, rp.messages, 1+6+1)
	assert.Equal(t, "system", rp.messages[0].Role)
	assert.True(t, strings.HasPrefix(rp.messages[0].Content, "TEST FRAMEWORK\n\nCurrent wellness focus: anxiety"))
	assert.Equal(t, "I worry all the time", rp.messages[len(rp.messages)-1].Content)
	assert.Equal(t, DefaultMaxTokens, rp.options["max_tokens"])
	assert.Equal(t, 0.7, rp.options["temperature"])
	assert.Equal(t, "m1", rp.model)
}

func TestChatService_EmptyMessage(t *testing.T) {
	svc := NewChatService(&recordingProvider{}, newOfflineCache(t), ChatOptions{})
	_, err := svc.Reply(context.Background(), ChatRequest{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestChatService_ProviderErrorAndFallback(t *testing.T) {
	rp := &recordingProvider{err: &providers.APIError{Provider: "anthropic", StatusCode: 529, Message: "Overloaded"}}
	svc := NewChatService(rp, newOfflineCache(t), ChatOptions{})
	_, err := svc.Reply(context.Background(), ChatRequest{Message: "hello"})
	require.Error(t, err)

	label, fallback := FallbackFor(err)
	assert.Equal(t, "AI service temporarily unavailable", label)
	assert.Equal(t, ServiceUnavailableFallback, fallback)

	label, fallback = FallbackFor(errors.New("decode failure"))
	assert.Equal(t, "Internal server error", label)
	assert.Equal(t, InternalErrorFallback, fallback)
}
