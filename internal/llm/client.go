// Package llm calls an OpenAI-compatible chat completions API.
package llm

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

	"github.com/aimerfeng/scribe/internal/config"
	"github.com/aimerfeng/scribe/internal/monitoring"
	"github.com/rs/zerolog/log"
)

var (
	ErrUpstreamError   = errors.New("upstream service error")
	ErrUpstreamTimeout = errors.New("upstream service timeout")
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrEmptyPrompt     = errors.New("prompt is empty")
)

// Completion is the generated text plus token accounting
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Client sends single-turn prompts to the provider
type Client struct {
	config     *config.LLMConfig
	httpClient *http.Client
	breaker    *Breaker
}

// NewClient creates a provider client guarded by a circuit breaker
func NewClient(cfg *config.LLMConfig, breakerCfg *BreakerConfig) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout + 5*time.Second,
		},
		breaker: NewBreaker(cfg.Provider, breakerCfg),
	}
}

// Provider returns the configured provider name
func (c *Client) Provider() string {
	return c.config.Provider
}

// Model returns the configured model
func (c *Client) Model() string {
	return c.config.Model
}

// Breaker exposes the circuit breaker for health reporting
func (c *Client) Breaker() *Breaker {
	return c.breaker
}

// Complete sends prompt as a single user message and returns the first choice
func (c *Client) Complete(ctx context.Context, prompt string) (*Completion, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	completion, err := c.breaker.Execute(ctx, func() (*Completion, error) {
		return c.call(ctx, prompt)
	})
	latency := time.Since(start)

	monitoring.RecordLLMLatency(c.config.Provider, c.config.Model, latency)
	if err != nil {
		monitoring.RecordLLMRequest(c.config.Provider, c.config.Model, "error")
		monitoring.RecordLLMError(c.config.Provider, c.config.Model, ErrorType(err))
		return nil, err
	}
	monitoring.RecordLLMRequest(c.config.Provider, c.config.Model, "success")

	completion.Latency = latency
	return completion, nil
}

func (c *Client) call(ctx context.Context, prompt string) (*Completion, error) {
	body, err := json.Marshal(chatRequest{
		Model:     c.config.Model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: c.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		switch ctxErr := ctx.Err(); {
		case errors.Is(ctxErr, context.DeadlineExceeded):
			return nil, ErrUpstreamTimeout
		case errors.Is(ctxErr, context.Canceled):
			// the caller went away; the provider did nothing wrong
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", string(raw)).
			Msg("Upstream error")
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamError, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstreamError, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUpstreamError, parsed.Error.Message, parsed.Error.Type)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrUpstreamError)
	}

	model := parsed.Model
	if model == "" {
		model = c.config.Model
	}
	return &Completion{
		Text:             parsed.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// ErrorType classifies a Complete error for logs and metrics
func ErrorType(err error) string {
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstreamError):
		return "upstream"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
