package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/itgyani/blogpulse/ai/huggingface"
	"github.com/itgyani/blogpulse/ai/openrouter"
	"github.com/itgyani/blogpulse/ai/tracker"
	"github.com/itgyani/blogpulse/blog"
	"github.com/itgyani/blogpulse/errors"
	"github.com/itgyani/blogpulse/pulse/budget"
)

const (
	defaultTone      = "professional"
	defaultAudience  = "business"
	defaultWordCount = 1500
	metaDescMaxLen   = 155
	excerptMaxLen    = 200
)

// Chatter is the text completion side of a ContentGateway (*openrouter.Client)
type Chatter interface {
	Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

// ImageGenerator renders one image per prompt (*huggingface.Client)
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (*huggingface.Image, error)
}

// DraftStore persists generated drafts (*blog.Store)
type DraftStore interface {
	SavePost(ctx context.Context, p *blog.Post) error
	AddImage(ctx context.Context, postID string, img blog.Image) (string, error)
	DeletePost(ctx context.Context, postID string) error
}

// UsageRecorder receives one record per model call (*tracker.UsageTracker)
type UsageRecorder interface {
	TrackUsage(ctx context.Context, u *tracker.ModelUsage) error
}

// BudgetChecker vetoes calls once spend limits are reached (*budget.Tracker)
type BudgetChecker interface {
	CheckBudget(ctx context.Context) error
}

// ContentConfig tunes a ContentGateway
type ContentConfig struct {
	// CallsPerMinute caps outbound completion calls. 0 disables the limit.
	CallsPerMinute int
	// WordCount is the target post length given to the model
	WordCount int
	// Brand, when set, is named in the system prompt as the publisher
	Brand string
	// Usage and Budget are optional
	Usage  UsageRecorder
	Budget BudgetChecker
	Logger *zap.SugaredLogger
}

// ContentGateway generates a blog post draft with optional images and
// stores it. The returned ContentRef is the post ID.
type ContentGateway struct {
	chat    Chatter
	images  ImageGenerator
	store   DraftStore
	limiter *rate.Limiter
	config  ContentConfig
	logger  *zap.SugaredLogger
}

// NewContentGateway wires the collaborators. images may be nil, in which case
// image requests are skipped.
func NewContentGateway(chat Chatter, images ImageGenerator, store DraftStore, config ContentConfig) *ContentGateway {
	if config.WordCount <= 0 {
		config.WordCount = defaultWordCount
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	var limiter *rate.Limiter
	if config.CallsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(config.CallsPerMinute)/60.0), 1)
	}
	return &ContentGateway{
		chat:    chat,
		images:  images,
		store:   store,
		limiter: limiter,
		config:  config,
		logger:  logger,
	}
}

// draft is the JSON object the model is asked to return
type draft struct {
	Title           string   `json:"title"`
	MetaDescription string   `json:"metaDescription"`
	Content         string   `json:"content"`
	Tags            []string `json:"tags"`
	Excerpt         string   `json:"excerpt"`
	ImagePrompts    []string `json:"imagePrompts"`
}

// Generate makes one completion call, renders images, and saves the draft
func (g *ContentGateway) Generate(ctx context.Context, req Request) (*Result, error) {
	if g.chat == nil || g.store == nil {
		return nil, errors.NewTerminalGenerationError(
			errors.Mark(errors.New("content gateway is missing a chat client or draft store"), errors.ErrServiceUnavailable))
	}
	if err := g.checkBudget(ctx); err != nil {
		return nil, err
	}
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	started := time.Now()
	resp, err := g.chat.Chat(ctx, openrouter.ChatRequest{
		SystemPrompt: g.systemPrompt(),
		UserPrompt:   g.userPrompt(req),
		JSON:         true,
	})
	g.recordChat(ctx, req, started, resp, err)
	if err != nil {
		return nil, err
	}

	d := parseDraft(resp.Content, req)
	post := &blog.Post{
		SeriesID:        req.SeriesID,
		JobID:           req.JobID,
		Title:           d.Title,
		Category:        req.Category,
		Content:         d.Content,
		MetaDescription: d.MetaDescription,
		Excerpt:         d.Excerpt,
		ReadingMinutes:  blog.ReadingMinutes(d.Content),
		Tags:            d.Tags,
		Model:           resp.Model,
	}
	if err := g.store.SavePost(ctx, post); err != nil {
		return nil, errors.NewTerminalGenerationError(errors.Wrap(err, "failed to save draft"))
	}

	result := &Result{ContentRef: post.ID, Title: post.Title, Model: resp.Model}
	if req.GenerateImages && req.ImageCount > 0 {
		refs, err := g.renderImages(ctx, post, imagePrompts(d, req))
		if err != nil {
			g.discardDraft(ctx, post.ID)
			return nil, err
		}
		result.ImageRefs = refs
	}

	g.logger.Infow("Draft generated",
		"series", req.SeriesID,
		"job", req.JobID,
		"post", post.ID,
		"title", post.Title,
		"images", len(result.ImageRefs),
		"cost_usd", resp.Cost)
	return result, nil
}

// discardDraft removes a draft whose attempt was abandoned, so a retried job
// leaves exactly one post behind.
func (g *ContentGateway) discardDraft(ctx context.Context, postID string) {
	if err := g.store.DeletePost(context.WithoutCancel(ctx), postID); err != nil {
		g.logger.Warnw("Failed to discard abandoned draft", "post", postID, "error", err)
	}
}

// checkBudget turns a spent budget into a terminal failure. A failed spend
// lookup is retryable.
func (g *ContentGateway) checkBudget(ctx context.Context) error {
	if g.config.Budget == nil {
		return nil
	}
	err := g.config.Budget.CheckBudget(ctx)
	switch {
	case err == nil:
		return nil
	case budget.IsExceeded(err):
		return errors.NewTerminalGenerationError(errors.Mark(err, errors.ErrServiceUnavailable))
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return errors.NewRetryableGenerationError(err)
	}
}

func (g *ContentGateway) recordChat(ctx context.Context, req Request, started time.Time, resp *openrouter.ChatResponse, callErr error) {
	u := &tracker.ModelUsage{
		Operation:   tracker.OperationDraft,
		SeriesID:    req.SeriesID,
		JobID:       req.JobID,
		Provider:    "openrouter",
		RequestedAt: started,
		Duration:    time.Since(started),
		Success:     callErr == nil,
	}
	if resp != nil {
		u.Model = resp.Model
		u.PromptTokens = resp.Usage.PromptTokens
		u.CompletionTokens = resp.Usage.CompletionTokens
		u.Cost = resp.Cost
	}
	if callErr != nil {
		u.Error = callErr.Error()
	}
	g.record(ctx, u)
}

// record stores u even when the attempt was cancelled. Failures are logged only.
func (g *ContentGateway) record(ctx context.Context, u *tracker.ModelUsage) {
	if g.config.Usage == nil {
		return
	}
	if err := g.config.Usage.TrackUsage(context.WithoutCancel(ctx), u); err != nil {
		g.logger.Warnw("Failed to record model usage", "operation", u.Operation, "job", u.JobID, "error", err)
	}
}

func (g *ContentGateway) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// the next token lands after the attempt deadline
		return errors.NewRetryableGenerationError(errors.Wrap(err, "rate limited"))
	}
	return nil
}

// renderImages stores what it can. A failed image is logged and skipped;
// only cancellation aborts the attempt.
func (g *ContentGateway) renderImages(ctx context.Context, post *blog.Post, prompts []string) ([]string, error) {
	if g.images == nil {
		g.logger.Warnw("Images requested but no image generator configured", "post", post.ID)
		return nil, nil
	}

	var refs []string
	for i, prompt := range prompts {
		started := time.Now()
		img, err := g.images.GenerateImage(ctx, prompt)
		usage := &tracker.ModelUsage{
			Operation:   tracker.OperationImage,
			SeriesID:    post.SeriesID,
			JobID:       post.JobID,
			Provider:    "huggingface",
			RequestedAt: started,
			Duration:    time.Since(started),
			Success:     err == nil,
		}
		if img != nil {
			usage.Model = img.Model
		}
		if err != nil {
			usage.Error = err.Error()
		}
		g.record(ctx, usage)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Warnw("Image generation failed, skipping",
				"post", post.ID, "index", i, "retryable", errors.IsRetryable(err), "error", err)
			continue
		}
		id, err := g.store.AddImage(ctx, post.ID, blog.Image{
			Prompt:      prompt,
			ContentType: img.ContentType,
			Model:       img.Model,
			Data:        img.Data,
		})
		if err != nil {
			g.logger.Warnw("Failed to store image", "post", post.ID, "index", i, "error", err)
			continue
		}
		refs = append(refs, id)
	}
	return refs, nil
}

func (g *ContentGateway) systemPrompt() string {
	publisher := "a technology publication"
	if g.config.Brand != "" {
		publisher = g.config.Brand
	}
	return fmt.Sprintf(`You are a senior content writer for %s.

Write original, accurate, well-structured articles that give readers practical value.
- Use clear markdown headings, short paragraphs and lists where they help scanning.
- Titles must reflect the content honestly; no clickbait.
- Meta descriptions stay under 160 characters.
- Use keywords naturally; write for people first and search engines second.
- Add disclaimers to anything that reads as medical, legal or financial advice.
- Never produce adult, hateful, deceptive or infringing material.`, publisher)
}

func (g *ContentGateway) userPrompt(req Request) string {
	tone := req.Tone
	if tone == "" {
		tone = defaultTone
	}
	audience := req.Audience
	if audience == "" {
		audience = defaultAudience
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write an SEO-optimized blog post about %q", req.Topic)
	if req.Category != "" {
		fmt.Fprintf(&b, " in the %s category", req.Category)
	}
	b.WriteString(".\n\nRequirements:\n")
	fmt.Fprintf(&b, "- Audience: %s\n", audience)
	fmt.Fprintf(&b, "- Tone: %s\n", tone)
	fmt.Fprintf(&b, "- Length: about %d words\n", g.config.WordCount)
	if len(req.Keywords) > 0 {
		fmt.Fprintf(&b, "- Work in these keywords: %s\n", strings.Join(req.Keywords, ", "))
	}
	b.WriteString("- Structure: hook introduction, sections with subheadings, examples, conclusion with takeaways, call to action\n")
	if req.GenerateImages && req.ImageCount > 0 {
		fmt.Fprintf(&b, "- Suggest %d image prompts describing illustrations for the post\n", req.ImageCount)
	}
	b.WriteString(`
Respond with a single JSON object:
{
  "title": "at most 60 characters",
  "metaDescription": "150-160 characters",
  "content": "the full post in markdown",
  "tags": ["tag"],
  "excerpt": "one or two sentence preview",
  "imagePrompts": ["image prompt"]
}`)
	return b.String()
}

var (
	codeFence    = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
	markdownHead = regexp.MustCompile(`(?m)^#\s*(.+)$`)
)

// parseDraft decodes the model's JSON answer. When the answer is not usable
// JSON the raw text becomes the post body and the rest is derived from it.
func parseDraft(raw string, req Request) draft {
	text := strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	var d draft
	if err := json.Unmarshal([]byte(text), &d); err != nil || strings.TrimSpace(d.Content) == "" {
		d = draft{Content: text}
		if m := markdownHead.FindStringSubmatch(text); m != nil {
			d.Title = strings.TrimSpace(m[1])
		}
	}

	if strings.TrimSpace(d.Title) == "" {
		d.Title = "Blog about " + req.Topic
	}
	if d.MetaDescription == "" {
		d.MetaDescription = blog.Excerpt(d.Content, metaDescMaxLen)
	}
	if d.Excerpt == "" {
		d.Excerpt = blog.Excerpt(d.Content, excerptMaxLen)
	}
	if len(d.Tags) == 0 && req.Category != "" {
		d.Tags = []string{req.Category}
	}
	return d
}

// imagePrompts returns exactly req.ImageCount prompts, padding the model's
// suggestions with generic ones built from the title.
func imagePrompts(d draft, req Request) []string {
	var prompts []string
	for _, p := range d.ImagePrompts {
		if p = strings.TrimSpace(p); p != "" && len(prompts) < req.ImageCount {
			prompts = append(prompts, p)
		}
	}
	for i := len(prompts); i < req.ImageCount; i++ {
		prompts = append(prompts, fmt.Sprintf("Editorial illustration for a blog post titled %q, clean modern style", d.Title))
	}
	return prompts
}
