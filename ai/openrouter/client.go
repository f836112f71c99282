// Package openrouter is a single-attempt client for the OpenRouter.ai chat
// completions API. Failures come back as generation errors classified for
// the scheduler's retry wrapper: rate limits, 5xx and network errors are
// retryable, everything else is terminal.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/itgyani/blogpulse/errors"
	"github.com/itgyani/blogpulse/internal/httpclient"
	"github.com/itgyani/blogpulse/version"
)

const (
	// DefaultModel is used when none is configured. Keep in sync with am defaults.
	DefaultModel = "openai/gpt-4o-mini"

	DefaultBaseURL = "https://openrouter.ai/api/v1"

	defaultTemperature = 0.7
	defaultMaxTokens   = 2500
	defaultTimeout     = 120 * time.Second

	// maxErrorBody bounds how much of an error response ends up in job records
	maxErrorBody = 512
)

// Client talks to OpenRouter
type Client struct {
	config     Config
	baseURL    string
	httpClient *httpclient.SaferClient
	logger     *zap.SugaredLogger
}

// Config holds client configuration
type Config struct {
	APIKey      string
	Model       string
	Temperature *float64 // nil = 0.7
	MaxTokens   *int     // nil = 2500
	Timeout     time.Duration
	Referer     string // sent as HTTP-Referer for OpenRouter attribution
	Title       string // sent as X-Title
	Logger      *zap.SugaredLogger
}

// NewClient creates a client with defaults applied
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == nil {
		t := defaultTemperature
		config.Temperature = &t
	}
	if config.MaxTokens == nil {
		n := defaultMaxTokens
		config.MaxTokens = &n
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.Title == "" {
		config.Title = "blogpulse"
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		config:     config,
		baseURL:    DefaultBaseURL,
		httpClient: httpclient.NewSaferClient(config.Timeout),
		logger:     logger,
	}
}

// Message is one chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the wire request for /chat/completions
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat asks the model for a JSON object
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatCompletionResponse is the wire response
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage reports token counts
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ChatRequest is a high-level request
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	JSON         bool    // request a JSON object response
	Model        *string // overrides the configured model
}

// ChatResponse is the trimmed model output
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
	Cost    float64 // USD estimate
}

// Chat makes exactly one completion call
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !c.IsConfigured() {
		return nil, errors.NewTerminalGenerationError(
			errors.WithHint(errors.New("OpenRouter API key not configured"),
				"set openrouter.api_key in am.toml or BLOGPULSE_OPENROUTER_API_KEY"))
	}

	model := c.config.Model
	if req.Model != nil {
		model = *req.Model
	}

	messages := []Message{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}
	wire := ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: *c.config.Temperature,
		MaxTokens:   *c.config.MaxTokens,
	}
	if req.JSON {
		wire.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	c.logger.Debugw("OpenRouter request",
		"model", model,
		"max_tokens", wire.MaxTokens,
		"prompt_length", len(req.UserPrompt))

	start := time.Now()
	resp, err := c.CreateChatCompletion(ctx, wire)
	if err != nil {
		c.logger.Warnw("OpenRouter request failed",
			"model", model,
			"retryable", errors.IsRetryable(err),
			"error", err)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.NewRetryableGenerationError(errors.New("no response choices from OpenRouter"))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, errors.NewRetryableGenerationError(errors.New("empty completion from OpenRouter"))
	}
	if resp.Model != "" {
		model = resp.Model
	}
	cost := CalculateCost(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	c.logger.Infow("OpenRouter response",
		"model", model,
		"duration_ms", time.Since(start).Milliseconds(),
		"total_tokens", resp.Usage.TotalTokens,
		"cost_usd", cost)

	return &ChatResponse{Content: content, Model: model, Usage: resp.Usage, Cost: cost}, nil
}

// CreateChatCompletion sends one request and classifies any failure
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.NewTerminalGenerationError(errors.Wrap(err, "failed to marshal request"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewTerminalGenerationError(errors.Wrap(err, "failed to create request"))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("X-Title", c.config.Title)
	httpReq.Header.Set("User-Agent", version.Get().UserAgent())
	if c.config.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.config.Referer)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyTransportError(errors.Wrap(err, "failed to send request"))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewRetryableGenerationError(errors.Wrap(err, "failed to read response"))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, StatusError(resp.StatusCode, respBody)
	}

	var out ChatCompletionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errors.NewRetryableGenerationError(errors.Wrap(err, "failed to unmarshal response"))
	}
	return &out, nil
}

// StatusError classifies a non-200 response: 408, 429 and 5xx are retryable
func StatusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var parsed apiError
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}

	err := errors.Newf("OpenRouter API error: HTTP %d: %s", status, msg)
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return errors.NewRetryableGenerationError(err)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return errors.NewTerminalGenerationError(errors.WithHint(err, "check the OpenRouter API key"))
	case status == http.StatusPaymentRequired:
		return errors.NewTerminalGenerationError(errors.WithHint(err, "the OpenRouter account is out of credits"))
	default:
		return errors.NewTerminalGenerationError(err)
	}
}

// classifyTransportError marks network-level failures retryable
func classifyTransportError(err error) error {
	if isNetworkError(err) {
		return errors.NewRetryableGenerationError(err)
	}
	return errors.NewTerminalGenerationError(err)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection reset by peer",
		"connection refused",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"no such host",
		"eof",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// IsConfigured reports whether an API key is set
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// Model returns the configured model
func (c *Client) Model() string {
	return c.config.Model
}

// SetHTTPClient overrides the HTTP client. Tests only; it drops SSRF protection.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

// SetBaseURL points the client at another endpoint, e.g. an httptest server
func (c *Client) SetBaseURL(url string) {
	c.baseURL = strings.TrimRight(url, "/")
}
