package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/neilberkman/groupsum/internal/core/config"
)

// Provider is the interface for LLM backends
type Provider interface {
	// Complete sends one system + user exchange and returns the reply text
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name (e.g., "openai", "bedrock")
	Name() string
}

// Request is a single-turn completion request.
type Request struct {
	Model       string  `json:"model"`
	System      string  `json:"system"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type Response struct {
	Text  string
	Model string
}

// BackendError is a failed call to a provider. StatusCode and Body are set
// when the backend answered with an HTTP error.
type BackendError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *BackendError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("llm/%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("llm/%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("llm/%s: request failed", e.Provider)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Retryable reports rate limiting, server-side failures and transport errors.
func (e *BackendError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// FromConfig builds the provider selected by cfg.Provider.
func FromConfig(ctx context.Context, cfg config.SummaryConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAI(OpenAIConfig{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Timeout:  cfg.Timeout,
		})
	case "bedrock":
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return NewBedrockProvider(ctx, BedrockConfig{
			Region:  cfg.BedrockRegion,
			ModelID: cfg.Model,
		})
	}
	return nil, fmt.Errorf("unknown summary provider %q", cfg.Provider)
}
