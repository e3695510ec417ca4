// Package imagegen requests illustrations from the OpenAI images API.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dnodevkis/tg-news-bot/internal/retry"
)

// Config for the image client
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Size        string
	Quality     string
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
}

// Client generates one illustration per prompt.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// NewClient creates a new image client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "dall-e-3"
	}
	if cfg.Size == "" {
		cfg.Size = "1024x1024"
	}
	if cfg.Quality == "" {
		cfg.Quality = "hd"
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 90 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Generate returns an image URL, or "" when the prompt is blank or every
// attempt failed. Failures are logged, never returned: a post is published
// without an illustration rather than not at all.
func (c *Client) Generate(ctx context.Context, prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ""
	}
	if c.cfg.APIKey == "" {
		c.logger.Warn("Image generation skipped: no API key configured")
		return ""
	}

	policy := retry.Policy{
		MaxAttempts: c.cfg.MaxAttempts,
		BaseDelay:   c.cfg.BaseDelay,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.logger.Warn("Retrying image request", zap.Int("attempt", attempt+1), zap.Error(err))
		},
	}

	url, err := retry.Value(ctx, policy, func(ctx context.Context, attempt int) (string, error) {
		return c.request(ctx, prompt)
	})
	if err != nil {
		c.logger.Error("Image generation failed", zap.String("prompt", prompt), zap.Error(err))
		return ""
	}

	c.logger.Debug("Image generated", zap.String("url", url))
	return url
}

func (c *Client) request(ctx context.Context, prompt string) (string, error) {
	reqBody := imageRequest{
		Model:          c.cfg.Model,
		Prompt:         prompt,
		N:              1,
		Size:           c.cfg.Size,
		Quality:        c.cfg.Quality,
		ResponseFormat: "url",
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/images/generations", bytes.NewReader(jsonData))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("images API error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("images API returned status %d: %s", resp.StatusCode, string(body))
		// Content policy rejections and bad requests will not change on retry.
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return "", retry.Permanent(err)
		}
		return "", err
	}

	var parsed imageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].URL == "" {
		return "", errors.New("empty response from images API")
	}
	return parsed.Data[0].URL, nil
}
