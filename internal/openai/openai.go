// Package openai implements the chat completion capability used by the ai:
// command. It is a stateless single-turn wrapper: a fixed system instruction
// plus the user's text in, the model's reply text out.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/ycwu/pulseline/internal/config"
)

// ErrEmptyMessage is returned when the user text is empty after trimming.
var ErrEmptyMessage = errors.New("empty user message")

// Completer generates a single-turn chat completion for the given user text.
type Completer interface {
	Complete(ctx context.Context, userText string) (string, error)
}

// Client wraps the OpenAI chat completion API.
type Client struct {
	api         *goopenai.Client
	model       string
	temperature float32
	instruction string
	timeout     time.Duration
	logger      *slog.Logger
}

// NewClient creates a chat completion client from the configuration. The base
// URL is configurable so tests can point the client at a local server.
func NewClient(cfg config.OpenAIConfig, logger *slog.Logger) *Client {
	apiCfg := goopenai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:         goopenai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		instruction: cfg.Instruction,
		timeout:     cfg.Timeout,
		logger:      logger.With("component", "openai_client"),
	}
}

// Complete sends the user text as the sole user turn with the configured
// system instruction and returns the first choice's message content unmodified.
func (c *Client) Complete(ctx context.Context, userText string) (string, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return "", ErrEmptyMessage
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(reqCtx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role:    goopenai.ChatMessageRoleSystem,
				Content: c.instruction,
			},
			{
				Role:    goopenai.ChatMessageRoleUser,
				Content: userText,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	c.logger.DebugContext(ctx, "completion generated", "model", c.model, "prompt_len", len(userText))
	return resp.Choices[0].Message.Content, nil
}
