package generation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/itgyani/blogpulse/ai/huggingface"
	"github.com/itgyani/blogpulse/ai/openrouter"
	"github.com/itgyani/blogpulse/ai/tracker"
	"github.com/itgyani/blogpulse/blog"
	"github.com/itgyani/blogpulse/errors"
	bptest "github.com/itgyani/blogpulse/internal/testing"
	"github.com/itgyani/blogpulse/pulse/budget"
)

type fakeChatter struct {
	content string
	err     error
	got     []openrouter.ChatRequest
}

func (f *fakeChatter) Chat(_ context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return nil, f.err
	}
	return &openrouter.ChatResponse{Content: f.content, Model: "openai/gpt-4o-mini", Cost: 0.001}, nil
}

type fakeImages struct {
	fail    map[int]error
	prompts []string
}

func (f *fakeImages) GenerateImage(_ context.Context, prompt string) (*huggingface.Image, error) {
	idx := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	if err := f.fail[idx]; err != nil {
		return nil, err
	}
	return &huggingface.Image{Prompt: prompt, ContentType: "image/png", Model: "sdxl", Data: []byte{0x89, 'P', 'N', 'G'}}, nil
}

// cancellingImages cancels the attempt from inside the image call, as an
// expiring attempt deadline would
type cancellingImages struct {
	cancel context.CancelFunc
}

func (c *cancellingImages) GenerateImage(ctx context.Context, _ string) (*huggingface.Image, error) {
	c.cancel()
	return nil, ctx.Err()
}

const draftJSON = `{
  "title": "Automating Invoices with AI",
  "metaDescription": "How small teams cut invoice processing time.",
  "content": "# Automating Invoices with AI\n\nInvoices pile up. AI helps.",
  "tags": ["ai", "finance"],
  "excerpt": "Invoices pile up.",
  "imagePrompts": ["robot sorting invoices", "dashboard with charts"]
}`

func newStore(t *testing.T) *blog.Store {
	return blog.NewStore(bptest.CreateTestDB(t), func() time.Time {
		return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	})
}

func TestContentGatewayGeneratesDraft(t *testing.T) {
	store := newStore(t)
	chat := &fakeChatter{content: draftJSON}
	gw := NewContentGateway(chat, nil, store, ContentConfig{Brand: "ITGYANI", Logger: zaptest.NewLogger(t).Sugar()})

	res, err := gw.Generate(context.Background(), Request{
		SeriesID: "s1",
		JobID:    "j1",
		Topic:    "invoice automation",
		Category: "finance",
		Keywords: []string{"ocr", "erp"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Automating Invoices with AI", res.Title)
	assert.Equal(t, "openai/gpt-4o-mini", res.Model)
	assert.Empty(t, res.ImageRefs)

	require.Len(t, chat.got, 1)
	sent := chat.got[0]
	assert.True(t, sent.JSON)
	assert.Contains(t, sent.SystemPrompt, "ITGYANI")
	assert.Contains(t, sent.UserPrompt, `"invoice automation"`)
	assert.Contains(t, sent.UserPrompt, "finance category")
	assert.Contains(t, sent.UserPrompt, "ocr, erp")
	assert.Contains(t, sent.UserPrompt, "Tone: professional")
	assert.Contains(t, sent.UserPrompt, "Audience: business")
	assert.NotContains(t, sent.UserPrompt, "image prompts")

	post, err := store.GetPost(context.Background(), res.ContentRef)
	require.NoError(t, err)
	assert.Equal(t, "automating-invoices-with-ai", post.Slug)
	assert.Equal(t, []string{"ai", "finance"}, post.Tags)
	assert.Equal(t, "s1", post.SeriesID)
	assert.Equal(t, "j1", post.JobID)
	assert.Equal(t, 1, post.ReadingMinutes)
	assert.Equal(t, blog.StatusDraft, post.Status)
}

func TestContentGatewayImages(t *testing.T) {
	store := newStore(t)
	images := &fakeImages{fail: map[int]error{
		1: errors.NewRetryableGenerationError(errors.New("HTTP 503")),
	}}
	gw := NewContentGateway(&fakeChatter{content: draftJSON}, images, store, ContentConfig{})

	res, err := gw.Generate(context.Background(), Request{
		Topic:          "invoice automation",
		GenerateImages: true,
		ImageCount:     3,
	})
	require.NoError(t, err)

	// two model prompts plus one padded prompt; the second image fails and is skipped
	require.Len(t, images.prompts, 3)
	assert.Equal(t, "robot sorting invoices", images.prompts[0])
	assert.Equal(t, "dashboard with charts", images.prompts[1])
	assert.Contains(t, images.prompts[2], "Automating Invoices with AI")
	require.Len(t, res.ImageRefs, 2)

	post, err := store.GetPost(context.Background(), res.ContentRef)
	require.NoError(t, err)
	assert.Equal(t, res.ImageRefs, post.ImageIDs)

	img, err := store.GetImage(context.Background(), res.ImageRefs[1])
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
}

func TestContentGatewayAbandonedAttemptLeavesNoDraft(t *testing.T) {
	store := newStore(t)
	images := &cancellingImages{}
	gw := NewContentGateway(&fakeChatter{content: draftJSON}, images, store, ContentConfig{})
	req := Request{JobID: "j1", Topic: "invoice automation", GenerateImages: true, ImageCount: 1}

	for attempt := 0; attempt < 2; attempt++ {
		ctx, cancel := context.WithCancel(context.Background())
		images.cancel = cancel
		_, err := gw.Generate(ctx, req)
		require.ErrorIs(t, err, context.Canceled)
		cancel()
	}

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Drafts, "cancelled attempts must not leave drafts behind")

	gw = NewContentGateway(&fakeChatter{content: draftJSON}, &fakeImages{}, store, ContentConfig{})
	res, err := gw.Generate(context.Background(), req)
	require.NoError(t, err)
	stats, err = store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Drafts)
	assert.Len(t, res.ImageRefs, 1)
}

func TestContentGatewayImagesWithoutGenerator(t *testing.T) {
	gw := NewContentGateway(&fakeChatter{content: draftJSON}, nil, newStore(t), ContentConfig{})
	res, err := gw.Generate(context.Background(), Request{Topic: "x", GenerateImages: true, ImageCount: 2})
	require.NoError(t, err)
	assert.Empty(t, res.ImageRefs)
}

func TestContentGatewayPropagatesChatErrors(t *testing.T) {
	retryable := errors.NewRetryableGenerationError(errors.New("HTTP 429"))
	gw := NewContentGateway(&fakeChatter{err: retryable}, nil, newStore(t), ContentConfig{})

	_, err := gw.Generate(context.Background(), Request{Topic: "x"})
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestContentGatewayMissingCollaborators(t *testing.T) {
	gw := NewContentGateway(nil, nil, nil, ContentConfig{})
	_, err := gw.Generate(context.Background(), Request{Topic: "x"})
	require.Error(t, err)
	assert.True(t, errors.IsGenerationError(err))
	assert.False(t, errors.IsRetryable(err))
	assert.True(t, errors.IsServiceUnavailableError(err))
}

func TestContentGatewayRateLimit(t *testing.T) {
	gw := NewContentGateway(&fakeChatter{content: draftJSON}, nil, newStore(t), ContentConfig{CallsPerMinute: 1})

	_, err := gw.Generate(context.Background(), Request{Topic: "x"})
	require.NoError(t, err)

	// the next token is a minute away, beyond this deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = gw.Generate(ctx, Request{Topic: "x"})
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestContentGatewayRecordsUsage(t *testing.T) {
	db := bptest.CreateTestDB(t)
	store := blog.NewStore(db, nil)
	usage := tracker.NewUsageTracker(db, nil)
	images := &fakeImages{fail: map[int]error{0: errors.New("HTTP 500")}}
	gw := NewContentGateway(&fakeChatter{content: draftJSON}, images, store, ContentConfig{Usage: usage})

	before := time.Now().Add(-time.Minute)
	_, err := gw.Generate(context.Background(), Request{
		SeriesID:       "s1",
		JobID:          "j1",
		Topic:          "x",
		GenerateImages: true,
		ImageCount:     2,
	})
	require.NoError(t, err)

	stats, err := usage.GetUsageStats(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRequests, "one draft call and two image calls")
	assert.Equal(t, 2, stats.SuccessfulRequests)
	assert.InDelta(t, 0.001, stats.TotalCost, 1e-9)

	breakdown, err := usage.GetModelBreakdown(context.Background(), before)
	require.NoError(t, err)
	require.Len(t, breakdown, 2)
	assert.Equal(t, "openai/gpt-4o-mini", breakdown[0].Model)
	assert.Equal(t, "sdxl", breakdown[1].Model)

	// failed calls are recorded too
	gw = NewContentGateway(&fakeChatter{err: errors.New("HTTP 503")}, nil, store, ContentConfig{Usage: usage})
	_, err = gw.Generate(context.Background(), Request{Topic: "x"})
	require.Error(t, err)
	stats, err = usage.GetUsageStats(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalRequests)
}

type budgetFunc func(ctx context.Context) error

func (f budgetFunc) CheckBudget(ctx context.Context) error { return f(ctx) }

func TestContentGatewayBudget(t *testing.T) {
	t.Run("spent budget is terminal", func(t *testing.T) {
		chat := &fakeChatter{content: draftJSON}
		spent := budgetFunc(func(context.Context) error {
			return errors.Mark(errors.New("daily budget spent"), budget.ErrExceeded)
		})
		gw := NewContentGateway(chat, nil, newStore(t), ContentConfig{Budget: spent})

		_, err := gw.Generate(context.Background(), Request{Topic: "x"})
		require.Error(t, err)
		assert.True(t, errors.IsGenerationError(err))
		assert.False(t, errors.IsRetryable(err))
		assert.True(t, errors.IsServiceUnavailableError(err))
		assert.Empty(t, chat.got, "no call is made over budget")
	})

	t.Run("failed lookup is retryable", func(t *testing.T) {
		broken := budgetFunc(func(context.Context) error { return errors.New("database is locked") })
		gw := NewContentGateway(&fakeChatter{content: draftJSON}, nil, newStore(t), ContentConfig{Budget: broken})

		_, err := gw.Generate(context.Background(), Request{Topic: "x"})
		require.Error(t, err)
		assert.True(t, errors.IsRetryable(err))
	})

	t.Run("within budget", func(t *testing.T) {
		ok := budgetFunc(func(context.Context) error { return nil })
		gw := NewContentGateway(&fakeChatter{content: draftJSON}, nil, newStore(t), ContentConfig{Budget: ok})
		_, err := gw.Generate(context.Background(), Request{Topic: "x"})
		assert.NoError(t, err)
	})
}

func TestParseDraft(t *testing.T) {
	t.Run("fenced json", func(t *testing.T) {
		d := parseDraft("```json\n"+draftJSON+"\n```", Request{Topic: "x"})
		assert.Equal(t, "Automating Invoices with AI", d.Title)
		assert.Equal(t, []string{"ai", "finance"}, d.Tags)
	})

	t.Run("markdown fallback", func(t *testing.T) {
		raw := "# Ten Tips for Remote Teams\n\nRemote work is here to stay. Here is how to thrive."
		d := parseDraft(raw, Request{Topic: "remote", Category: "work"})
		assert.Equal(t, "Ten Tips for Remote Teams", d.Title)
		assert.Equal(t, raw, d.Content)
		assert.Equal(t, []string{"work"}, d.Tags)
		assert.NotEmpty(t, d.MetaDescription)
		assert.LessOrEqual(t, len(d.MetaDescription), metaDescMaxLen+3)
		assert.Empty(t, d.ImagePrompts)
	})

	t.Run("untitled fallback", func(t *testing.T) {
		d := parseDraft("Just some prose without a heading.", Request{Topic: "observability"})
		assert.Equal(t, "Blog about observability", d.Title)
		assert.Nil(t, d.Tags)
	})

	t.Run("json without content", func(t *testing.T) {
		d := parseDraft(`{"title":"Empty"}`, Request{Topic: "x"})
		assert.Equal(t, `{"title":"Empty"}`, d.Content)
		assert.Equal(t, "Blog about x", d.Title)
	})
}

func TestImagePrompts(t *testing.T) {
	d := draft{Title: "T", ImagePrompts: []string{"a", " ", "b", "c"}}
	assert.Equal(t, []string{"a", "b"}, imagePrompts(d, Request{ImageCount: 2}))

	got := imagePrompts(draft{Title: "Go Tips"}, Request{ImageCount: 2})
	require.Len(t, got, 2)
	assert.True(t, strings.Contains(got[0], `"Go Tips"`))
}
