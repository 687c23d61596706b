package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theracowch/cowch/pkg/compression"
	"github.com/theracowch/cowch/pkg/persona"
	"github.com/theracowch/cowch/pkg/profile"
	"github.com/theracowch/cowch/pkg/providers"
	"github.com/theracowch/cowch/pkg/storage"
)

type stubProvider struct {
	reply string
	err   error
	calls int32
}

func (p *stubProvider) Chat(context.Context, []providers.Message, string, map[string]interface{}) (*providers.LLMResponse, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return nil, p.err
	}
	return &providers.LLMResponse{Content: p.reply}, nil
}

func (p *stubProvider) GetDefaultModel() string { return "stub" }

type fixture struct {
	server     *Server
	store      *profile.Store
	provider   *stubProvider
	summarized int32
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	framework := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("TEST FRAMEWORK"))
	}))
	t.Cleanup(framework.Close)

	f := &fixture{provider: &stubProvider{reply: "I'm here with you."}}
	f.store = profile.NewStore(storage.NewAdapter(storage.NewMemoryBackend(), "cowch"))
	summarizer := compression.SummarizerFunc(func(_ context.Context, prompt string) (string, error) {
		atomic.AddInt32(&f.summarized, 1)
		if prompt == "explode" {
			return "", errors.New("upstream down")
		}
		return `{"patterns":["anxiety"],"lastSessionSummary":"Checked in."}`, nil
	})
	compressor := compression.NewCompressor(f.store, summarizer, compression.Options{Threshold: 8, Window: 8})
	chat := persona.NewChatService(f.provider, persona.NewPromptCache(framework.URL, time.Hour, nil), persona.ChatOptions{})

	if opts.Mode == "" {
		opts.Mode = gin.TestMode
	}
	f.server = New(Deps{Store: f.store, Compressor: compressor, Chat: chat, Summarizer: summarizer}, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.server.Shutdown(ctx)
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthReadyMetrics(t *testing.T) {
	f := newFixture(t, Options{})
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/ready", "", nil).Code)

	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cowch_")
}

func TestChat_ReplyAndHistory(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodPost, "/api/chat", "alice", map[string]string{"message": "I feel anxious about work"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var reply struct {
		Response     string    `json:"response"`
		Pattern      string    `json:"pattern"`
		Timestamp    time.Time `json:"timestamp"`
		SessionPhase string    `json:"sessionPhase"`
	}
	decode(t, rec, &reply)
	assert.Equal(t, "I'm here with you.", reply.Response)
	assert.Equal(t, "anxiety", reply.Pattern)
	assert.Equal(t, "exploring", reply.SessionPhase)
	assert.False(t, reply.Timestamp.IsZero())

	history := f.store.GetFullHistory(context.Background(), "alice")
	require.Len(t, history, 2)
	assert.Equal(t, profile.RoleUser, history[0].Role)
	assert.Equal(t, profile.RoleAssistant, history[1].Role)
	assert.Empty(t, f.store.GetFullHistory(context.Background(), "bob"))
}

func TestChat_EmptyMessage(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodPost, "/api/chat", "", map[string]string{"message": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.provider.calls))
}

func TestChat_ProviderFailureReturnsFallback(t *testing.T) {
	f := newFixture(t, Options{})
	f.provider.err = &providers.APIError{Provider: "anthropic", StatusCode: 529, Message: "Overloaded"}

	rec := f.do(t, http.MethodPost, "/api/chat", "", map[string]string{"message": "hello"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "AI service temporarily unavailable", body["error"])
	assert.Equal(t, persona.ServiceUnavailableFallback, body["fallback"])
}

func TestChat_TriggersBackgroundCompression(t *testing.T) {
	f := newFixture(t, Options{})
	for i := 0; i < 4; i++ {
		rec := f.do(t, http.MethodPost, "/api/chat", "carol", map[string]string{"message": "talking it through"})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	f.server.WaitBackground()

	p := f.store.GetProfile(context.Background(), "carol")
	assert.Equal(t, 0, p.MessagesSinceCompression)
	assert.Equal(t, 8, p.MessageCount)
	assert.Equal(t, 1, p.SessionCount)
	assert.Equal(t, []string{"anxiety"}, p.Patterns)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.summarized))
}

func TestCompressProfileEndpoint(t *testing.T) {
	f := newFixture(t, Options{})

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/compress-profile", "", map[string]string{"prompt": ""}).Code)

	rec := f.do(t, http.MethodPost, "/api/compress-profile", "", map[string]string{"prompt": "summarize"})
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Contains(t, body["compressed"], `"patterns"`)

	rec = f.do(t, http.MethodPost, "/api/compress-profile", "", map[string]string{"prompt": "explode"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHTTPSummarizerAgainstServer(t *testing.T) {
	f := newFixture(t, Options{})
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	s := compression.NewHTTPSummarizer(ts.URL+"/api/compress-profile", time.Second)
	raw, err := s.Summarize(context.Background(), "summarize")
	require.NoError(t, err)
	u, err := profile.ParseCompressionUpdate(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"anxiety"}, u.Patterns)
}

func TestHistoryEndpoints(t *testing.T) {
	f := newFixture(t, Options{})

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/history", "", map[string]string{"role": "system", "content": "x"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/history", "", map[string]string{"role": "user", "content": ""}).Code)

	rec := f.do(t, http.MethodPost, "/api/history", "", map[string]string{"role": "User", "content": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/history", "", nil)
	var body struct {
		History []profile.HistoryEntry `json:"history"`
	}
	decode(t, rec, &body)
	require.Len(t, body.History, 1)
	assert.Equal(t, "hi", body.History[0].Content)
	assert.Equal(t, profile.RoleUser, body.History[0].Role)
}

func TestContextEndpoint(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.store.Update(ctx, DefaultUserID, func(p profile.TherapyProfile) (profile.TherapyProfile, bool) {
		p.Patterns = []string{"anxiety", "stress"}
		p.Insights = []string{"i1", "i2", "i3", "i4"}
		return p, true
	})

	rec := f.do(t, http.MethodGet, "/api/context", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got profile.APIContext
	decode(t, rec, &got)
	assert.Equal(t, "anxiety, stress", got.Profile.Patterns)
	assert.Equal(t, "i1; i2; i3", got.Profile.Insights)
}

func TestImagineAndClear(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPost, "/api/imagine", "dave", map[string]string{"domain": "gratitude"})
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Imagine profile.Imagine `json:"imagine"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 1, body.Imagine.G)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/imagine", "dave", map[string]string{"domain": "nope"}).Code)

	f.do(t, http.MethodPost, "/api/history", "dave", map[string]string{"role": "user", "content": "hi"})
	rec = f.do(t, http.MethodDelete, "/api/data", "dave", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/profile", "dave", nil)
	var p profile.TherapyProfile
	decode(t, rec, &p)
	assert.Equal(t, 0, p.Imagine.G)
	assert.Equal(t, 0, p.MessageCount)
	assert.Empty(t, f.store.GetFullHistory(context.Background(), "dave"))
}

func TestForceCompress(t *testing.T) {
	f := newFixture(t, Options{})
	f.do(t, http.MethodPost, "/api/history", "erin", map[string]string{"role": "user", "content": "hello"})

	rec := f.do(t, http.MethodPost, "/api/profile/compress", "erin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p profile.TherapyProfile
	decode(t, rec, &p)
	assert.Equal(t, 1, p.SessionCount)
	assert.Equal(t, 0, p.MessagesSinceCompression)
}

func TestInvalidUserHeader(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodGet, "/api/profile", "has space", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Options{RateLimitRPS: 0.001, RateLimitBurst: 2})
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/profile", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/profile", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodGet, "/api/profile", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "", nil).Code)
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	f := newFixture(t, Options{AllowOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://theracowch.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
