package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/theracowch/cowch/pkg/config"
)

const (
	defaultAnthropicAPIBase   = "https://api.anthropic.com"
	defaultAnthropicModel     = "claude-sonnet-4-20250514"
	defaultAnthropicMaxTokens = 1024
	anthropicAPIVersion       = "2023-06-01"
)

func init() {
	RegisterFactory(ProviderAnthropic, newAnthropicProviderFromConfig, validateAnthropicConfig, anthropicCredentialStatus)
}

func validateAnthropicConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if strings.TrimSpace(cfg.Providers.Anthropic.APIKey) == "" {
		return fmt.Errorf("Anthropic API key is required (set providers.anthropic.api_key or COWCH_PROVIDERS_ANTHROPIC_API_KEY)")
	}
	return nil
}

func anthropicCredentialStatus(cfg *config.Config) (bool, string) {
	if cfg == nil || strings.TrimSpace(cfg.Providers.Anthropic.APIKey) == "" {
		return false, ""
	}
	return true, authModeHeaderKey
}

func newAnthropicProviderFromConfig(cfg *config.Config) (LLMProvider, error) {
	if err := validateAnthropicConfig(cfg); err != nil {
		return nil, err
	}
	apiBase := strings.TrimSpace(cfg.Providers.Anthropic.APIBase)
	if apiBase == "" {
		apiBase = defaultAnthropicAPIBase
	}
	auth := NewHeaderKeyAuth("x-api-key", NewStaticTokenSource(cfg.Providers.Anthropic.APIKey, "providers.anthropic.api_key"))
	return newAnthropicProvider(apiBase, defaultAnthropicModel, cfg.Providers.Anthropic.Proxy, requestTimeout(cfg), auth)
}

// anthropicProvider speaks the Messages API. System messages are lifted
// into a single cacheable system block.
type anthropicProvider struct {
	apiBase      string
	defaultModel string
	auth         AuthStrategy
	httpClient   *http.Client
}

func newAnthropicProvider(apiBase, defaultModel, proxy string, timeout time.Duration, auth AuthStrategy) (*anthropicProvider, error) {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		return nil, fmt.Errorf("anthropic API base not configured")
	}
	if auth == nil {
		return nil, fmt.Errorf("anthropic auth is not configured")
	}
	client, err := newHTTPClient(ProviderAnthropic, proxy, timeout)
	if err != nil {
		return nil, err
	}
	return &anthropicProvider{
		apiBase:      apiBase,
		defaultModel: strings.TrimSpace(defaultModel),
		auth:         auth,
		httpClient:   client,
	}, nil
}

type anthropicCacheControl struct {
	Type string `json:"type"`
}

type anthropicSystemBlock struct {
	Type         string                 `json:"type"`
	Text         string                 `json:"text"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string                 `json:"model"`
	MaxTokens   int                    `json:"max_tokens"`
	System      []anthropicSystemBlock `json:"system,omitempty"`
	Messages    []anthropicMessage     `json:"messages"`
	Temperature *float64               `json:"temperature,omitempty"`
}

func (p *anthropicProvider) Chat(ctx context.Context, messages []Message, model string, options map[string]interface{}) (*LLMResponse, error) {
	if p == nil {
		return nil, fmt.Errorf("provider not initialized")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = p.GetDefaultModel()
	}

	system, turns := splitAnthropicMessages(messages)
	if len(turns) == 0 {
		return nil, fmt.Errorf("anthropic request needs at least one user message")
	}

	reqBody := anthropicRequest{
		Model:     model,
		MaxTokens: defaultAnthropicMaxTokens,
		Messages:  turns,
	}
	if maxTokens, ok := optionAsInt(options, "max_tokens"); ok && maxTokens > 0 {
		reqBody.MaxTokens = maxTokens
	}
	if temperature, ok := optionAsFloat(options, "temperature"); ok {
		reqBody.Temperature = &temperature
	}
	if system != "" {
		reqBody.System = []anthropicSystemBlock{{
			Type:         "text",
			Text:         system,
			CacheControl: &anthropicCacheControl{Type: "ephemeral"},
		}}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	if err := p.auth.Apply(ctx, req); err != nil {
		return nil, fmt.Errorf("apply anthropic auth: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send anthropic request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read anthropic response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := augmentProviderError(ProviderAnthropic, extractAPIError(body))
		return nil, &APIError{Provider: ProviderAnthropic, StatusCode: resp.StatusCode, Message: msg}
	}

	result, err := parseAnthropicResponse(body)
	if err != nil {
		return nil, fmt.Errorf("parse anthropic response: %w", err)
	}
	return result, nil
}

func (p *anthropicProvider) GetDefaultModel() string {
	if p == nil {
		return ""
	}
	return p.defaultModel
}

// splitAnthropicMessages joins system messages, drops leading assistant
// turns and merges consecutive same-role turns, since the Messages API
// requires strict user/assistant alternation starting with user.
func splitAnthropicMessages(messages []Message) (string, []anthropicMessage) {
	var system []string
	turns := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch role {
		case "system":
			system = append(system, content)
			continue
		case "user", "assistant":
		default:
			role = "user"
		}
		if len(turns) == 0 && role != "user" {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content += "\n\n" + content
			continue
		}
		turns = append(turns, anthropicMessage{Role: role, Content: content})
	}
	return strings.Join(system, "\n\n"), turns
}

func parseAnthropicResponse(body []byte) (*LLMResponse, error) {
	var apiResponse struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      *struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, block := range apiResponse.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	out := &LLMResponse{
		Content:      sb.String(),
		FinishReason: apiResponse.StopReason,
	}
	if apiResponse.Usage != nil {
		out.Usage = &UsageInfo{
			PromptTokens:     apiResponse.Usage.InputTokens,
			CompletionTokens: apiResponse.Usage.OutputTokens,
			TotalTokens:      apiResponse.Usage.InputTokens + apiResponse.Usage.OutputTokens,
		}
	}
	return out, nil
}
