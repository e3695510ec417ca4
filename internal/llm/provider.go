// Package llm contains the editor model providers. Providers make a single
// call; retries and reply validation belong to the editor client.
package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderGemini     ProviderType = "gemini"
	ProviderGroq       ProviderType = "groq"
	ProviderOpenRouter ProviderType = "openrouter"
)

// ProviderConfig holds configuration for a single provider instance
type ProviderConfig struct {
	Type           ProviderType `yaml:"type"`
	APIKey         string       `yaml:"api_key"`
	ModelName      string       `yaml:"model_name"`
	BaseURL        string       `yaml:"base_url"`
	TimeoutSeconds int          `yaml:"timeout_seconds"`
	// Rate limiting per provider
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

func (c ProviderConfig) timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Request is one non-streaming completion request.
type Request struct {
	System    string
	User      string
	MaxTokens int
}

// Completion is the provider reply. Complete is the provider's own
// end-of-response marker (stop reason / finish reason).
type Completion struct {
	Text       string
	Complete   bool
	StopReason string
	Provider   string
	Model      string
}

// Provider interface for any LLM provider
type Provider interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
	Close() error
	GetModelInfo() map[string]interface{}
}

// APIError is a non-2xx answer from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode == 408 || e.StatusCode >= 500
}

// NewProvider builds a provider from its config, wrapped in a rate limiter.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	var (
		provider Provider
		err      error
	)

	switch cfg.Type {
	case ProviderAnthropic, "":
		provider, err = NewAnthropicClient(cfg, logger)
	case ProviderGroq, ProviderOpenRouter:
		provider, err = NewChatClient(cfg, logger)
	case ProviderGemini:
		provider, err = NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	rateLimit := cfg.RequestsPerMinute
	if rateLimit == 0 {
		rateLimit = 20
	}
	return NewRateLimitedProvider(provider, rateLimit, logger), nil
}
