// Package persona builds the therapist persona prompt and runs chat turns
// against the configured LLM provider.
package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/theracowch/cowch/pkg/logger"
	"github.com/theracowch/cowch/pkg/metrics"
	"github.com/theracowch/cowch/pkg/profile"
	"github.com/theracowch/cowch/pkg/providers"
)

const (
	DefaultSessionPhase = "exploring"
	DefaultMaxTokens    = 500
	historyTurns        = 6
)

// ErrEmptyMessage is returned for blank chat input.
var ErrEmptyMessage = errors.New("message is required")

type ChatRequest struct {
	Message        string
	SessionPhase   string
	CurrentPattern string
	// History holds prior turns, oldest first. Only the last few are sent.
	History []profile.Message
	Context *profile.APIContext
}

type ChatReply struct {
	Response     string    `json:"response"`
	Pattern      string    `json:"pattern"`
	Timestamp    time.Time `json:"timestamp"`
	SessionPhase string    `json:"sessionPhase"`
}

type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Now         func() time.Time
}

type ChatService struct {
	provider providers.LLMProvider
	prompts  *PromptCache
	opts     ChatOptions
}

func NewChatService(provider providers.LLMProvider, prompts *PromptCache, opts ChatOptions) *ChatService {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if prompts == nil {
		prompts = NewPromptCache("", 0, nil)
	}
	return &ChatService{provider: provider, prompts: prompts, opts: opts}
}

// Reply runs one chat turn.
func (s *ChatService) Reply(ctx context.Context, req ChatRequest) (ChatReply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return ChatReply{}, ErrEmptyMessage
	}
	if s.provider == nil {
		return ChatReply{}, fmt.Errorf("chat provider not configured")
	}

	pattern := DetectPattern(message)
	focus := strings.TrimSpace(req.CurrentPattern)
	if focus == "" {
		focus = pattern
	}
	phase := strings.TrimSpace(req.SessionPhase)

	system := BuildSystemPrompt(s.prompts.Get(ctx), focus, phase, req.Context)
	messages := make([]providers.Message, 0, historyTurns+2)
	messages = append(messages, providers.Message{Role: "system", Content: system})
	history := req.History
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	for _, m := range history {
		switch m.Role {
		case profile.RoleUser, profile.RoleAssistant:
			messages = append(messages, providers.Message{Role: m.Role, Content: m.Content})
		}
	}
	messages = append(messages, providers.Message{Role: profile.RoleUser, Content: message})

	options := map[string]interface{}{"max_tokens": s.opts.MaxTokens}
	if s.opts.Temperature > 0 {
		options["temperature"] = s.opts.Temperature
	}

	resp, err := s.provider.Chat(ctx, messages, s.opts.Model, options)
	if err != nil {
		metrics.ChatRequestsTotal.WithLabelValues(pattern, "error").Inc()
		logger.ErrorCF("persona", "Chat completion failed", map[string]interface{}{
			"pattern": pattern,
			"error":   err.Error(),
		})
		return ChatReply{}, fmt.Errorf("chat completion: %w", err)
	}

	if phase == "" {
		phase = DefaultSessionPhase
	}
	metrics.ChatRequestsTotal.WithLabelValues(pattern, "ok").Inc()
	return ChatReply{
		Response:     resp.Content,
		Pattern:      pattern,
		Timestamp:    s.opts.Now().UTC(),
		SessionPhase: phase,
	}, nil
}

// FallbackFor maps a Reply error to the public error label and the
// fallback text shown to the user.
func FallbackFor(err error) (string, string) {
	var apiErr *providers.APIError
	if errors.As(err, &apiErr) {
		return "AI service temporarily unavailable", ServiceUnavailableFallback
	}
	return "Internal server error", InternalErrorFallback
}
