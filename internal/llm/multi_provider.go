package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// MultiProviderClient manages multiple LLM providers with fallback.
// A provider that failed maxFailures calls in a row, or answered 429,
// is rotated out in favour of the next one.
type MultiProviderClient struct {
	providers    []Provider
	currentIndex int
	mu           sync.RWMutex
	logger       *zap.Logger
	failureCount map[int]int
	maxFailures  int
}

// NewMultiProviderClient creates a client over already built providers.
func NewMultiProviderClient(providers []Provider, maxFailures int, logger *zap.Logger) (*MultiProviderClient, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &MultiProviderClient{
		providers:    providers,
		logger:       logger,
		failureCount: make(map[int]int),
		maxFailures:  maxFailures,
	}, nil
}

// NewProviders builds every configured provider, skipping the ones that fail to initialize.
func NewProviders(cfgs []ProviderConfig, logger *zap.Logger) ([]Provider, error) {
	providers := make([]Provider, 0, len(cfgs))
	for i, cfg := range cfgs {
		p, err := NewProvider(cfg, logger)
		if err != nil {
			logger.Error("Failed to create provider",
				zap.String("type", string(cfg.Type)),
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers could be initialized")
	}
	return providers, nil
}

func (c *MultiProviderClient) current() (Provider, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.providers[c.currentIndex], c.currentIndex
}

// Complete calls the current provider. On failure the failure is recorded
// and the error returned; the caller's retry policy decides whether to call again.
func (c *MultiProviderClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	provider, index := c.current()

	completion, err := provider.Complete(ctx, req)
	if err == nil {
		c.resetFailureCount(index)
		return completion, nil
	}

	c.logger.Error("Provider failed", zap.Int("provider_index", index), zap.Error(err))
	if c.recordFailure(index) || isRateLimitError(err) {
		c.switchToNextProvider(index)
	}
	return nil, err
}

func (c *MultiProviderClient) recordFailure(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failureCount[index]++
	if c.failureCount[index] >= c.maxFailures {
		c.logger.Warn("Provider reached max failures",
			zap.Int("provider_index", index),
			zap.Int("failures", c.failureCount[index]))
		return true
	}
	return false
}

func (c *MultiProviderClient) resetFailureCount(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount[index] = 0
}

// switchToNextProvider moves past from unless another caller already did.
func (c *MultiProviderClient) switchToNextProvider(from int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentIndex != from || len(c.providers) == 1 {
		return
	}
	c.failureCount[from] = 0
	c.currentIndex = (from + 1) % len(c.providers)

	c.logger.Info("Switching provider",
		zap.Int("from_index", from),
		zap.Int("to_index", c.currentIndex),
		zap.Int("total_providers", len(c.providers)))
}

func isRateLimitError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}

// Close closes all providers
func (c *MultiProviderClient) Close() error {
	var errs []error
	for i, provider := range c.providers {
		if err := provider.Close(); err != nil {
			c.logger.Error("Failed to close provider", zap.Int("index", i), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetModelInfo returns information about the current provider
func (c *MultiProviderClient) GetModelInfo() map[string]interface{} {
	provider, index := c.current()
	info := provider.GetModelInfo()

	c.mu.RLock()
	defer c.mu.RUnlock()
	info["provider_index"] = index
	info["total_providers"] = len(c.providers)
	info["failure_count"] = c.failureCount[index]
	return info
}
