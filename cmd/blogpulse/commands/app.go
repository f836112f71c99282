// Package commands implements the blogpulse CLI.
package commands

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/itgyani/blogpulse/ai/generation"
	"github.com/itgyani/blogpulse/ai/huggingface"
	"github.com/itgyani/blogpulse/ai/openrouter"
	"github.com/itgyani/blogpulse/ai/tracker"
	"github.com/itgyani/blogpulse/am"
	"github.com/itgyani/blogpulse/blog"
	"github.com/itgyani/blogpulse/db"
	"github.com/itgyani/blogpulse/errors"
	"github.com/itgyani/blogpulse/internal/util"
	"github.com/itgyani/blogpulse/logger"
	"github.com/itgyani/blogpulse/pulse/budget"
	"github.com/itgyani/blogpulse/pulse/schedule"
)

var configPath string

// SetConfigPath makes every command read configuration from path alone
func SetConfigPath(path string) {
	configPath = path
}

// loadConfig returns the validated configuration
func loadConfig() (*am.Config, error) {
	var (
		cfg *am.Config
		err error
	)
	if configPath != "" {
		cfg, err = am.LoadFromFile(configPath)
	} else {
		cfg, err = am.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "invalid configuration"),
			"run 'blogpulse am validate' for details")
	}
	return cfg, nil
}

// app is the wired engine shared by the commands
type app struct {
	cfg       *am.Config
	db        *sql.DB
	store     schedule.Store
	posts     *blog.Store
	usage     *tracker.UsageTracker
	budget    *budget.Tracker
	scheduler *schedule.Scheduler
	health    *schedule.HealthReporter
	log       *zap.SugaredLogger
}

// openApp opens storage and builds the scheduler. opts are passed to the scheduler.
func openApp(cfg *am.Config, opts ...schedule.Option) (*app, error) {
	log := logger.Logger

	database, err := openDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	var store schedule.Store
	switch cfg.Database.Backend {
	case am.BackendMemory:
		store = schedule.NewMemoryStore()
	default:
		store = schedule.NewSQLStore(database)
	}

	posts := blog.NewStore(database, nil)
	usage := tracker.NewUsageTracker(database, nil)
	spend := budget.NewTracker(usage, budgetConfig(cfg), nil)
	gateway := newGateway(cfg, posts, usage, spend, log)

	opts = append([]schedule.Option{schedule.WithPublisher(posts)}, opts...)
	sched := schedule.NewScheduler(store, gateway, schedulerConfig(cfg), log, opts...)

	return &app{
		cfg:       cfg,
		db:        database,
		store:     store,
		posts:     posts,
		usage:     usage,
		budget:    spend,
		scheduler: sched,
		health:    schedule.NewHealthReporter(store, healthThresholds(cfg), nil),
		log:       log,
	}, nil
}

// Close stops the scheduler and closes the database
func (a *app) Close() {
	a.scheduler.Stop()
	if err := a.db.Close(); err != nil {
		a.log.Warnw("Failed to close database", "error", err)
	}
}

// openDatabase opens and migrates the configured database. The memory backend
// still keeps posts in SQLite, in a private in-memory database.
func openDatabase(cfg *am.Config, log *zap.SugaredLogger) (*sql.DB, error) {
	if cfg.Database.Backend == am.BackendMemory {
		database, err := db.Open(":memory:", log)
		if err != nil {
			return nil, err
		}
		// each connection to :memory: is a separate database
		database.SetMaxOpenConns(1)
		if err := db.Migrate(database, log); err != nil {
			database.Close()
			return nil, err
		}
		return database, nil
	}

	database, err := db.OpenWithMigrations(cfg.Database.Path, log)
	if err != nil {
		return nil, errors.WithHintf(err, "check database.path (%s) in am.toml", cfg.Database.Path)
	}
	return database, nil
}

// newGateway builds the OpenRouter + Hugging Face content gateway.
// Without an OpenRouter key every generation fails terminally with a hint.
func newGateway(cfg *am.Config, posts *blog.Store, usage *tracker.UsageTracker, spend *budget.Tracker, log *zap.SugaredLogger) generation.Gateway {
	chat := openrouter.NewClient(openrouter.Config{
		APIKey:      cfg.OpenRouter.APIKey,
		Model:       cfg.OpenRouter.Model,
		Temperature: util.Ptr(cfg.OpenRouter.Temperature),
		MaxTokens:   util.Ptr(cfg.OpenRouter.MaxTokens),
		Timeout:     time.Duration(cfg.OpenRouter.TimeoutSeconds) * time.Second,
		Logger:      log.Named("openrouter"),
	})
	if !chat.IsConfigured() {
		logger.GenWarnw("OpenRouter API key not configured, generation will fail",
			"hint", "set openrouter.api_key or BLOGPULSE_OPENROUTER_API_KEY")
	}

	var images generation.ImageGenerator
	if cfg.HuggingFace.APIKey != "" {
		images = huggingface.NewClient(huggingface.Config{
			APIKey: cfg.HuggingFace.APIKey,
			Model:  cfg.HuggingFace.Model,
			Logger: log.Named("huggingface"),
		})
	} else {
		logger.GenInfow("Hugging Face API key not configured, series with images get none")
	}

	return generation.NewContentGateway(chat, images, posts, generation.ContentConfig{
		CallsPerMinute: cfg.OpenRouter.MaxCallsPerMinute,
		WordCount:      cfg.Content.WordCount,
		Brand:          cfg.Content.Brand,
		Usage:          usage,
		Budget:         spend,
		Logger:         log.Named("content"),
	})
}

// schedulerConfig maps [pulse] settings onto the scheduler
func schedulerConfig(cfg *am.Config) schedule.Config {
	return schedule.Config{
		TickInterval: cfg.Pulse.TickInterval(),
		Retry: schedule.RetryPolicy{
			MaxRetries:     cfg.Pulse.MaxRetries,
			Base:           cfg.Pulse.RetryBase(),
			Max:            cfg.Pulse.RetryMax(),
			AttemptTimeout: cfg.Pulse.AttemptTimeout(),
		},
		MaxConcurrent: cfg.Pulse.MaxConcurrent,
	}
}

// healthThresholds maps [health] settings onto the reporter
func healthThresholds(cfg *am.Config) schedule.HealthThresholds {
	return schedule.HealthThresholds{
		Window:        cfg.Health.Window(),
		WarningRatio:  cfg.Health.WarningRatio,
		CriticalRatio: cfg.Health.CriticalRatio,
	}
}

// budgetConfig maps the [pulse] spend caps
func budgetConfig(cfg *am.Config) budget.Config {
	return budget.Config{
		DailyUSD:   cfg.Pulse.DailyBudgetUSD,
		MonthlyUSD: cfg.Pulse.MonthlyBudgetUSD,
	}
}
