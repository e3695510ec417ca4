// Package editor asks the editor model to turn a news group into a post.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dnodevkis/tg-news-bot/internal/failure"
	"github.com/dnodevkis/tg-news-bot/internal/llm"
	"github.com/dnodevkis/tg-news-bot/internal/models"
	"github.com/dnodevkis/tg-news-bot/internal/repair"
	"github.com/dnodevkis/tg-news-bot/internal/retry"
)

// ErrEditorUnavailable is returned once every attempt to get a complete reply failed.
var ErrEditorUnavailable = errors.New("editor unavailable")

// Config for the editor client
type Config struct {
	SystemPrompt   string
	MaxTokens      int
	MinReplyLength int
	Timeout        time.Duration
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxJitter      time.Duration
}

func (c Config) withDefaults() Config {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4000
	}
	if c.MinReplyLength == 0 {
		c.MinReplyLength = 15
	}
	if c.Timeout == 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = 2 * time.Second
	}
	return c
}

// Client produces EditorResults for news groups.
type Client struct {
	provider llm.Provider
	parser   *repair.Parser
	cfg      Config
	logger   *zap.Logger
}

// NewClient creates a new editor client
func NewClient(provider llm.Provider, parser *repair.Parser, cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	logger.Info("Editor client initialized",
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("max_tokens", cfg.MaxTokens))
	return &Client{provider: provider, parser: parser, cfg: cfg, logger: logger}
}

// Generate asks the editor for a verdict on the group. Transient and
// incomplete replies are retried; a reply that cannot be parsed is not.
func (c *Client) Generate(ctx context.Context, group models.NewsGroup) (*models.EditorResult, error) {
	req := llm.Request{
		System:    c.cfg.SystemPrompt,
		User:      BuildUserMessage(group.Bodies(), c.cfg.SystemPrompt),
		MaxTokens: c.cfg.MaxTokens,
	}

	policy := retry.Policy{
		MaxAttempts: c.cfg.MaxAttempts,
		BaseDelay:   c.cfg.BaseDelay,
		MaxJitter:   c.cfg.MaxJitter,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.logger.Warn("Retrying editor request",
				zap.String("group_id", group.GroupID),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", c.cfg.MaxAttempts),
				zap.Duration("wait", wait),
				zap.Error(err))
		},
	}

	text, err := retry.Value(ctx, policy, func(ctx context.Context, attempt int) (string, error) {
		return c.complete(ctx, req)
	})
	if err != nil {
		c.logger.Error("Editor unavailable", zap.String("group_id", group.GroupID), zap.Error(err))
		return nil, &failure.Error{
			Kind:    failure.KindEditorUnavailable,
			GroupID: group.GroupID,
			Op:      "generate",
			Err:     fmt.Errorf("%w: %w", ErrEditorUnavailable, err),
		}
	}

	result, err := c.parser.Parse(text)
	if err != nil {
		return nil, failure.Wrap(group.GroupID, failure.KindUnparseableResponse, "parse", err)
	}

	c.logger.Info("Editor verdict received",
		zap.String("group_id", group.GroupID),
		zap.String("resolution", result.Resolution))
	return result, nil
}

// complete makes one call and validates that the reply is whole.
func (c *Client) complete(ctx context.Context, req llm.Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	completion, err := c.provider.Complete(callCtx, req)
	if err != nil {
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return "", retry.Permanent(failure.New(failure.KindTransientProvider, "complete", err))
		}
		return "", failure.New(failure.KindTransientProvider, "complete", err)
	}

	text := strings.TrimSpace(completion.Text)
	if len([]rune(text)) < c.cfg.MinReplyLength {
		return "", failure.New(failure.KindIncompleteResponse, "complete",
			fmt.Errorf("reply too short (%d chars)", len([]rune(text))))
	}
	if !completion.Complete {
		return "", failure.New(failure.KindIncompleteResponse, "complete",
			fmt.Errorf("reply not finished (stop reason %q)", completion.StopReason))
	}
	return text, nil
}
