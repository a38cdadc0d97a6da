package provider

import (
	"fmt"
	"log/slog"

	"github.com/h1v3-io/ticketbot/internal/config"
)

// FromConfig builds the provider described by pc, wrapped with retries.
func FromConfig(pc config.ProviderConfig, logger *slog.Logger) (Provider, error) {
	var p Provider
	switch pc.Type {
	case "", "openai":
		opts := []OpenAIOption{WithModel(pc.Model)}
		if pc.BaseURL != "" {
			opts = append(opts, WithBaseURL(pc.BaseURL))
		}
		p = NewOpenAI(pc.APIKey, opts...)
	case "anthropic":
		opts := []AnthropicOption{WithAnthropicModel(pc.Model)}
		if pc.BaseURL != "" {
			opts = append(opts, WithAnthropicBaseURL(pc.BaseURL))
		}
		p = NewAnthropic(pc.APIKey, opts...)
	case "gemini":
		opts := []GeminiOption{WithGeminiModel(pc.Model)}
		if pc.BaseURL != "" {
			opts = append(opts, WithGeminiBaseURL(pc.BaseURL))
		}
		p = NewGemini(pc.APIKey, opts...)
	default:
		return nil, fmt.Errorf("provider: unknown type %q", pc.Type)
	}

	retry := DefaultRetryConfig()
	if pc.MaxRetries > 0 {
		retry.MaxAttempts = pc.MaxRetries + 1
	}
	return NewRetrying(p, retry, logger), nil
}
