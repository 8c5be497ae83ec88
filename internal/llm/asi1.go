// Package llm talks to the ASI:One API through its OpenAI-compatible
// chat completions endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.asi1.ai/v1"
	DefaultModel   = "asi1-mini"

	completionTimeout = 30 * time.Second
)

// ErrDisabled is returned by Complete when no API key was configured. The
// chat layer treats it as "answer with the fixed format instead".
var ErrDisabled = errors.New("ASI:One is not configured")

// Client is a thin wrapper over the OpenAI-compatible API. A client built
// without an API key is valid and reports ErrDisabled on every call.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient builds a client. Empty baseURL and model select the ASI:One
// defaults; an empty apiKey yields a disabled client.
func NewClient(apiKey, baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	c := &Client{model: model}
	if apiKey != "" {
		cfg := openai.DefaultConfig(apiKey)
		cfg.BaseURL = baseURL
		c.api = openai.NewClientWithConfig(cfg)
	}
	return c
}

// Enabled reports whether an API key was configured.
func (c *Client) Enabled() bool {
	return c != nil && c.api != nil
}

// Complete runs one system+user chat completion and returns the trimmed
// answer text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.2,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", fmt.Errorf("ASI:One completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("ASI:One returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
