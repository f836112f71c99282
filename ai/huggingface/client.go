// Package huggingface generates blog images through the Hugging Face
// inference API. Like the OpenRouter client it makes one attempt per call
// and classifies failures for the scheduler's retry wrapper.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/itgyani/blogpulse/ai/openrouter"
	"github.com/itgyani/blogpulse/errors"
	"github.com/itgyani/blogpulse/internal/httpclient"
	"github.com/itgyani/blogpulse/version"
)

const (
	DefaultModel   = "stabilityai/stable-diffusion-xl-base-1.0"
	DefaultBaseURL = "https://api-inference.huggingface.co/models"

	defaultTimeout = 120 * time.Second

	// maxImageBytes caps a single downloaded image
	maxImageBytes = 16 << 20
)

// Config holds client configuration
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  *zap.SugaredLogger
}

// Image is one generated image
type Image struct {
	Prompt      string
	ContentType string
	Model       string
	Data        []byte
}

// Client calls the text-to-image inference endpoint
type Client struct {
	config     Config
	baseURL    string
	httpClient *httpclient.SaferClient
	logger     *zap.SugaredLogger
}

// NewClient creates a client with defaults applied
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
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

type inferenceRequest struct {
	Inputs  string          `json:"inputs"`
	Options map[string]bool `json:"options,omitempty"`
}

// GenerateImage renders prompt to an image
func (c *Client) GenerateImage(ctx context.Context, prompt string) (*Image, error) {
	if !c.IsConfigured() {
		return nil, errors.NewTerminalGenerationError(
			errors.WithHint(errors.New("Hugging Face API key not configured"),
				"set huggingface.api_key in am.toml or BLOGPULSE_HUGGINGFACE_API_KEY"))
	}

	body, err := json.Marshal(inferenceRequest{
		Inputs:  prompt,
		Options: map[string]bool{"wait_for_model": true},
	})
	if err != nil {
		return nil, errors.NewTerminalGenerationError(errors.Wrap(err, "failed to marshal request"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+c.config.Model, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewTerminalGenerationError(errors.Wrap(err, "failed to create request"))
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "image/png")
	httpReq.Header.Set("User-Agent", version.Get().UserAgent())

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewRetryableGenerationError(errors.Wrap(err, "image request failed"))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewRetryableGenerationError(errors.Wrap(err, "failed to read image"))
	}

	if resp.StatusCode != http.StatusOK {
		// 503 means the model is still loading; same classification as OpenRouter
		err := openrouter.StatusError(resp.StatusCode, data)
		return nil, errors.WithDetailf(err, "model: %s", c.config.Model)
	}
	if len(data) > maxImageBytes {
		return nil, errors.NewTerminalGenerationError(errors.Newf("image exceeds %d bytes", maxImageBytes))
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, errors.NewRetryableGenerationError(errors.Newf("expected an image, got %q", contentType))
	}

	c.logger.Infow("Image generated",
		"model", c.config.Model,
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds())

	return &Image{Prompt: prompt, ContentType: contentType, Model: c.config.Model, Data: data}, nil
}

// IsConfigured reports whether an API key is set
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// SetHTTPClient overrides the HTTP client. Tests only; it drops SSRF protection.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

// SetBaseURL points the client at another endpoint
func (c *Client) SetBaseURL(url string) {
	c.baseURL = strings.TrimRight(url, "/")
}
