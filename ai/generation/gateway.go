// Package generation defines how the scheduler reaches the outside world:
// a single-shot content generation call and a publish call. Retry, backoff
// and timeouts belong to the caller.
package generation

import "context"

// Request describes one blog post to generate
type Request struct {
	SeriesID       string   `json:"series_id"`
	JobID          string   `json:"job_id"`
	Topic          string   `json:"topic"`
	Category       string   `json:"category,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
	Tone           string   `json:"tone,omitempty"`
	Audience       string   `json:"audience,omitempty"`
	GenerateImages bool     `json:"generate_images"`
	ImageCount     int      `json:"image_count,omitempty"`
}

// Result is what a successful generation produced.
// ContentRef is an opaque handle the Publisher understands.
type Result struct {
	ContentRef string   `json:"content_ref"`
	Title      string   `json:"title,omitempty"`
	ImageRefs  []string `json:"image_refs,omitempty"`
	Model      string   `json:"model,omitempty"`
}

// Gateway performs one generation attempt.
//
// Failures should be *errors.GenerationError values (see errors.NewRetryableGenerationError
// and errors.NewTerminalGenerationError). Any other error is treated as terminal.
// Implementations must return promptly once ctx is done.
type Gateway interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Publisher makes generated content visible
type Publisher interface {
	Publish(ctx context.Context, contentRef string) error
}

// GatewayFunc adapts a function to Gateway
type GatewayFunc func(ctx context.Context, req Request) (*Result, error)

// Generate calls f(ctx, req)
func (f GatewayFunc) Generate(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, contentRef string) error

// Publish calls f(ctx, contentRef)
func (f PublisherFunc) Publish(ctx context.Context, contentRef string) error {
	return f(ctx, contentRef)
}
