package providers

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// APIError is a non-2xx response from a provider API.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API request failed: status=%d error=%s", e.Provider, e.StatusCode, e.Message)
}

func extractAPIError(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "empty response body"
	}

	var payload struct {
		Error struct {
			Message string      `json:"message"`
			Type    string      `json:"type"`
			Code    interface{} `json:"code"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := strings.TrimSpace(payload.Error.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
	}

	if len(trimmed) > 2000 {
		return trimmed[:2000] + "..."
	}
	return trimmed
}

func augmentProviderError(providerName, message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return msg
	}

	lower := strings.ToLower(msg)
	providerName = NormalizeProviderName(providerName)

	switch providerName {
	case ProviderOpenAI:
		if strings.Contains(lower, "incorrect api key provided") {
			return msg + " Hint: provider openai expects a Platform API key in providers.openai.api_key."
		}
	case ProviderOpenRouter:
		if strings.Contains(lower, "no auth credentials found") || strings.Contains(lower, "user not found") {
			return msg + " Hint: check providers.openrouter.api_key or COWCH_PROVIDERS_OPENROUTER_API_KEY."
		}
	case ProviderAnthropic:
		if strings.Contains(lower, "invalid x-api-key") {
			return msg + " Hint: check providers.anthropic.api_key or COWCH_PROVIDERS_ANTHROPIC_API_KEY."
		}
		if strings.Contains(lower, "credit balance is too low") {
			return msg + " Hint: the Anthropic account has no remaining credits; top up or switch agents.defaults.provider."
		}
	}

	return msg
}
