package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

var chatDefaults = map[ProviderType]struct{ baseURL, model string }{
	ProviderGroq:       {"https://api.groq.com/openai/v1", "llama-3.3-70b-versatile"},
	ProviderOpenRouter: {"https://openrouter.ai/api/v1", "meta-llama/llama-3.3-70b-instruct"},
}

// ChatClient talks to OpenAI-compatible chat completion APIs (Groq, OpenRouter).
type ChatClient struct {
	provider   ProviderType
	apiKey     string
	baseURL    string
	modelName  string
	httpClient *http.Client
	logger     *zap.Logger
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewChatClient creates a client for an OpenAI-compatible provider.
func NewChatClient(cfg ProviderConfig, logger *zap.Logger) (*ChatClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", cfg.Type)
	}
	defaults := chatDefaults[cfg.Type]
	if cfg.ModelName == "" {
		cfg.ModelName = defaults.model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.baseURL
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required for provider %q", cfg.Type)
	}

	logger.Info("Chat completion client initialized",
		zap.String("provider", string(cfg.Type)),
		zap.String("model", cfg.ModelName))

	return &ChatClient{
		provider:   cfg.Type,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		modelName:  cfg.ModelName,
		httpClient: &http.Client{Timeout: cfg.timeout()},
		logger:     logger,
	}, nil
}

// Complete sends one chat completion request.
func (c *ChatClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	reqBody := chatRequest{
		Model: c.modelName,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Stream:      false,
		MaxTokens:   req.MaxTokens,
		Temperature: 0.7,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", c.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Chat completion API error",
			zap.String("provider", string(c.provider)),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return nil, &APIError{Provider: string(c.provider), StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return &Completion{Provider: string(c.provider), Model: c.modelName}, nil
	}

	choice := parsed.Choices[0]
	return &Completion{
		Text:       choice.Message.Content,
		Complete:   choice.FinishReason == "stop",
		StopReason: choice.FinishReason,
		Provider:   string(c.provider),
		Model:      c.modelName,
	}, nil
}

// Close closes the client
func (c *ChatClient) Close() error {
	return nil
}

// GetModelInfo returns model information
func (c *ChatClient) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"provider": string(c.provider),
		"model":    c.modelName,
		"base_url": c.baseURL,
	}
}
