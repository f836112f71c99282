// Package server exposes the scheduler over HTTP: a JSON admin API for
// series, jobs, health and posts, plus a WebSocket feed of job events.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itgyani/blogpulse/ai/tracker"
	"github.com/itgyani/blogpulse/blog"
	"github.com/itgyani/blogpulse/pulse/budget"
	"github.com/itgyani/blogpulse/pulse/schedule"
)

// ShutdownTimeout bounds graceful shutdown of the HTTP server and WebSocket clients
const ShutdownTimeout = 5 * time.Second

// Scheduler is the subset of *schedule.Scheduler the API drives
type Scheduler interface {
	CreateSeries(ctx context.Context, spec schedule.SeriesSpec) (*schedule.Series, error)
	GetSeries(ctx context.Context, id string) (*schedule.Series, error)
	CancelSeries(ctx context.Context, id string) error
	PauseSeries(ctx context.Context, id string) error
	ResumeSeries(ctx context.Context, id string) error
	ListSeries(ctx context.Context, status *schedule.SeriesStatus) ([]*schedule.Series, error)
	ListJobs(ctx context.Context, seriesID string) ([]*schedule.GenerationJob, error)
	Tick(ctx context.Context) (schedule.TickReport, error)
	GetStats() schedule.Stats
}

// HealthReporter produces the classified queue snapshot
type HealthReporter interface {
	Report(ctx context.Context) (*schedule.QueueSnapshot, error)
}

// PostStore is the read and publish side of the blog post store
type PostStore interface {
	GetPost(ctx context.Context, id string) (*blog.Post, error)
	GetImage(ctx context.Context, id string) (*blog.Image, error)
	ListPosts(ctx context.Context, status *blog.Status, limit int) ([]*blog.Post, error)
	Publish(ctx context.Context, postID string) error
	Stats(ctx context.Context) (blog.Stats, error)
}

// UsageReporter aggregates recorded model calls (*tracker.UsageTracker)
type UsageReporter interface {
	GetUsageStats(ctx context.Context, since time.Time) (*tracker.UsageStats, error)
	GetModelBreakdown(ctx context.Context, since time.Time) ([]tracker.ModelBreakdown, error)
}

// BudgetReporter reports spend against the configured caps (*budget.Tracker)
type BudgetReporter interface {
	GetStatus(ctx context.Context) (*budget.Status, error)
}

// Config wires a Server
type Config struct {
	Scheduler Scheduler
	Health    HealthReporter

	// Posts is optional; the post routes answer 503 without it
	Posts PostStore

	// Usage and Budget are optional; /api/usage answers 503 without Usage
	Usage  UsageReporter
	Budget BudgetReporter

	// Hub is the job event feed; pass the one given to the scheduler as its
	// EventBroadcaster. A fresh hub is created when nil.
	Hub *Hub

	AllowedOrigins []string
	Logger         *zap.SugaredLogger
}

// Server is the blogpulse admin API
type Server struct {
	scheduler      Scheduler
	health         HealthReporter
	posts          PostStore
	usage          UsageReporter
	budget         BudgetReporter
	allowedOrigins []string
	hub            *Hub
	logger         *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a server and starts its WebSocket hub
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		scheduler:      cfg.Scheduler,
		health:         cfg.Health,
		posts:          cfg.Posts,
		usage:          cfg.Usage,
		budget:         cfg.Budget,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         log,
		ctx:            ctx,
		cancel:         cancel,
	}
	s.hub = cfg.Hub
	if s.hub == nil {
		s.hub = NewHub(log)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.run(ctx)
	}()
	return s
}

// Hub returns the WebSocket hub. It implements schedule.EventBroadcaster.
func (s *Server) Hub() *Hub {
	return s.hub
}
