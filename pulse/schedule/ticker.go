package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itgyani/blogpulse/ai/generation"
	"github.com/itgyani/blogpulse/errors"
	"github.com/itgyani/blogpulse/logger"
	"github.com/itgyani/blogpulse/sym"
)

// Job event types pushed to an EventBroadcaster
const (
	EventJobStarted  = "job_started"
	EventJobFinished = "job_finished"
)

// JobEvent describes a job lifecycle change
type JobEvent struct {
	Type         string    `json:"type"`
	SeriesID     string    `json:"series_id"`
	JobID        string    `json:"job_id"`
	Topic        string    `json:"topic"`
	Status       JobStatus `json:"status"`
	Attempts     int       `json:"attempts,omitempty"`
	ContentRef   string    `json:"content_ref,omitempty"`
	Error        string    `json:"error,omitempty"`
	PublishError string    `json:"publish_error,omitempty"`
	At           time.Time `json:"at"`
}

// EventBroadcaster receives job events.
// Defined here so the schedule package does not depend on the server.
type EventBroadcaster interface {
	BroadcastJobEvent(event JobEvent)
}

// Config holds the tunables of a Scheduler. All of it can be swapped at
// runtime with UpdateConfig.
type Config struct {
	TickInterval  time.Duration // 0 disables the loop; Tick still works on demand
	Retry         RetryPolicy
	MaxConcurrent int
}

// DefaultConfig ticks every minute with at most 16 dispatches in flight
func DefaultConfig() Config {
	return Config{
		TickInterval:  60 * time.Second,
		Retry:         DefaultRetryPolicy(),
		MaxConcurrent: 16,
	}
}

// TickReport summarizes one tick
type TickReport struct {
	At         time.Time `json:"at"`
	Due        int       `json:"due"`
	Dispatched int       `json:"dispatched"`
	Skipped    int       `json:"skipped"` // already generating, raced, or over the concurrency limit
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithPublisher enables auto-publish for series that ask for it
func WithPublisher(p generation.Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// WithBroadcaster attaches a job event sink
func WithBroadcaster(b EventBroadcaster) Option {
	return func(s *Scheduler) { s.broadcaster = b }
}

// WithClock replaces time.Now
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithSleeper replaces the backoff sleep
func WithSleeper(sl Sleeper) Option {
	return func(s *Scheduler) { s.sleep = sl }
}

// WithParentContext derives the scheduler's lifetime from ctx
func WithParentContext(ctx context.Context) Option {
	return func(s *Scheduler) { s.parent = ctx }
}

// Scheduler turns due series into generation jobs.
//
// A loop goroutine calls Tick every TickInterval. Each begun job runs in its
// own goroutine through the retry wrapper and records its outcome in the
// store, which also reschedules the series. Failures are recorded, never
// returned from the loop.
type Scheduler struct {
	store       Store
	gateway     generation.Gateway
	publisher   generation.Publisher
	broadcaster EventBroadcaster
	clock       Clock
	sleep       Sleeper

	parent   context.Context
	ctx      context.Context
	cancel   context.CancelFunc
	loopWG   sync.WaitGroup
	flightWG sync.WaitGroup
	resetCh  chan time.Duration

	logger   *zap.SugaredLogger
	pulseLog *zap.SugaredLogger

	mu              sync.Mutex
	cfg             Config
	inFlight        int
	running         bool
	lastTickAt      time.Time
	ticksSinceStart int64
	lastReport      TickReport
}

// NewScheduler creates a scheduler. Call Start for periodic ticking or Tick directly.
func NewScheduler(store Store, gateway generation.Gateway, cfg Config, log *zap.SugaredLogger, opts ...Option) *Scheduler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}

	s := &Scheduler{
		store:   store,
		gateway: gateway,
		clock:   time.Now,
		sleep:   sleepContext,
		parent:  context.Background(),
		resetCh: make(chan time.Duration, 1),
		cfg:     cfg,
		logger:  log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pulseLog = logger.AddPulseSymbol(log)
	s.ctx, s.cancel = context.WithCancel(s.parent)
	return s
}

// ErrStopped is returned by Start once the scheduler has been stopped
var ErrStopped = errors.New("scheduler stopped")

// Start begins the tick loop. A zero TickInterval leaves ticking to callers.
// A scheduler runs once: after Stop, or once its parent context is done,
// Start returns ErrStopped. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return errors.WithHint(ErrStopped, "create a new scheduler to run again")
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	interval := s.cfg.TickInterval
	s.mu.Unlock()

	s.loopWG.Add(1)
	go s.run(interval)
	s.logger.Infow("Pulse scheduler started",
		logger.FieldSymbol, sym.PulseOpen,
		"interval", interval,
		"max_concurrent", s.config().MaxConcurrent)
	return nil
}

// Stop cancels the loop and in-flight dispatches, then waits for them to
// record their outcome.
func (s *Scheduler) Stop() {
	s.cancel()
	s.loopWG.Wait()
	s.flightWG.Wait()

	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()
	if wasRunning {
		s.logger.Infow("Pulse scheduler stopped", logger.FieldSymbol, sym.PulseClose)
	}
}

// Wait blocks until every dispatched job has finished
func (s *Scheduler) Wait() {
	s.flightWG.Wait()
}

// UpdateConfig swaps tunables. Jobs already retrying keep the policy they started with.
func (s *Scheduler) UpdateConfig(cfg Config) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	s.mu.Lock()
	changed := cfg.TickInterval != s.cfg.TickInterval
	s.cfg = cfg
	s.mu.Unlock()

	if changed {
		select {
		case s.resetCh <- cfg.TickInterval:
		default:
		}
	}
	s.pulseLog.Infow("Pulse scheduler config updated",
		"interval", cfg.TickInterval,
		"max_retries", cfg.Retry.MaxRetries,
		"max_concurrent", cfg.MaxConcurrent)
}

func (s *Scheduler) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Scheduler) retryPolicy() RetryPolicy {
	return s.config().Retry
}

func (s *Scheduler) run(interval time.Duration) {
	defer s.loopWG.Done()

	var tickC <-chan time.Time
	var ticker *time.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()
	if interval > 0 {
		ticker = time.NewTicker(interval)
		tickC = ticker.C
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case d := <-s.resetCh:
			if ticker != nil {
				ticker.Stop()
			}
			ticker, tickC = nil, nil
			if d > 0 {
				ticker = time.NewTicker(d)
				tickC = ticker.C
			}
		case <-tickC:
			report, err := s.Tick(s.ctx)
			if err != nil {
				s.pulseLog.Warnw("Pulse tick error", logger.FieldError, err)
				continue
			}
			s.logHeartbeat(report)
		}
	}
}

// Tick begins a job for every due series, in NextDueAt order, and dispatches
// it. It does not wait for the dispatches; see Wait.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	now := s.clock()
	report := TickReport{At: now}

	s.mu.Lock()
	s.lastTickAt = now
	s.ticksSinceStart++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.lastReport = report
		s.mu.Unlock()
	}()

	due, err := s.store.GetDueSeries(ctx, now)
	if err != nil {
		return report, errors.Wrap(err, "failed to list due series")
	}
	report.Due = len(due)

	for _, series := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if !s.acquire() {
			report.Skipped++
			continue
		}

		job, err := s.store.BeginJob(ctx, series.ID, now)
		if err != nil {
			s.release()
			report.Skipped++
			if !errors.IsConflictError(err) {
				s.pulseLog.Errorw("Failed to begin job", logger.FieldSeriesID, series.ID, logger.FieldError, err)
			}
			continue
		}

		report.Dispatched++
		s.flightWG.Add(1)
		go s.dispatch(series, job)
	}

	if report.Due > 0 {
		s.pulseLog.Infow("Pulse tick",
			"due", report.Due,
			"dispatched", report.Dispatched,
			"skipped", report.Skipped)
	}
	return report, nil
}

func (s *Scheduler) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight >= s.cfg.MaxConcurrent {
		return false
	}
	s.inFlight++
	return true
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}

// dispatch runs one job to a recorded outcome
func (s *Scheduler) dispatch(series *Series, job *GenerationJob) {
	defer s.flightWG.Done()
	defer s.release()

	ctx := logger.WithJobID(logger.WithSeriesID(s.ctx, series.ID), job.ID)
	log := logger.AddPulseSymbol(logger.LoggerFromContext(ctx))
	started := s.clock()

	log.Infow("Job dispatched",
		logger.FieldTopic, series.Topic,
		logger.FieldDueAt, job.ScheduledFor.Format(time.RFC3339))
	s.broadcast(JobEvent{Type: EventJobStarted, SeriesID: series.ID, JobID: job.ID, Topic: series.Topic, Status: JobGenerating, At: started})

	result, attempts, genErr := s.generateWithRetry(ctx, job, requestFor(series, job))

	// Outcomes are recorded even when the scheduler is stopping
	recordCtx := context.WithoutCancel(ctx)
	finished := s.clock()
	next := AdvancePast(series.Frequency, job.ScheduledFor, finished)
	event := JobEvent{Type: EventJobFinished, SeriesID: series.ID, JobID: job.ID, Topic: series.Topic, Attempts: attempts, At: finished}

	if genErr != nil {
		cause := genErr.Error()
		if err := s.store.FailJob(recordCtx, job.ID, cause, attempts, next); err != nil {
			log.Errorw("Failed to record job failure", logger.FieldError, err)
		}
		log.Warnw("Job failed",
			logger.FieldAttempts, attempts,
			logger.FieldNextDueAt, next.Format(time.RFC3339),
			logger.FieldDurationMS, finished.Sub(started).Milliseconds(),
			logger.FieldError, cause)
		event.Status, event.Error = JobFailed, cause
		s.broadcast(event)
		return
	}

	jobResult := JobResult{ContentRef: result.ContentRef, ImageRefs: result.ImageRefs}
	if err := s.store.CompleteJob(recordCtx, job.ID, jobResult, next); err != nil {
		log.Errorw("Failed to record job success", logger.FieldError, err)
	}
	log.Infow("Job succeeded",
		logger.FieldAttempts, attempts,
		"content_ref", result.ContentRef,
		logger.FieldNextDueAt, next.Format(time.RFC3339),
		logger.FieldDurationMS, finished.Sub(started).Milliseconds())
	event.Status, event.ContentRef = JobSucceeded, result.ContentRef

	if series.AutoPublish && s.publisher != nil {
		event.PublishError = s.publish(recordCtx, log, job.ID, result.ContentRef)
	}
	s.broadcast(event)
}

// publish returns the publish error message, empty on success.
// A failed publish never fails the job.
func (s *Scheduler) publish(ctx context.Context, log *zap.SugaredLogger, jobID, contentRef string) string {
	if err := s.publisher.Publish(ctx, contentRef); err != nil {
		msg := err.Error()
		log.Warnw("Auto-publish failed", "content_ref", contentRef, logger.FieldError, err)
		if recErr := s.store.RecordPublishError(ctx, jobID, msg); recErr != nil {
			log.Errorw("Failed to record publish error", logger.FieldError, recErr)
		}
		return msg
	}
	if err := s.store.MarkPublished(ctx, jobID); err != nil {
		log.Errorw("Failed to mark job published", logger.FieldError, err)
	}
	return ""
}

func (s *Scheduler) broadcast(event JobEvent) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastJobEvent(event)
	}
}

func requestFor(series *Series, job *GenerationJob) generation.Request {
	return generation.Request{
		SeriesID:       series.ID,
		JobID:          job.ID,
		Topic:          series.Topic,
		Category:       series.Category,
		Keywords:       append([]string(nil), series.Keywords...),
		Tone:           series.Tone,
		Audience:       series.Audience,
		GenerateImages: series.GenerateImages,
		ImageCount:     series.ImageCount,
	}
}

// logHeartbeat logs a one-line status after each loop tick
func (s *Scheduler) logHeartbeat(report TickReport) {
	metrics := s.GetSystemMetrics()
	indicator := ""
	if metrics.InFlight > 0 {
		n := metrics.InFlight/5 + 1
		if n > 20 {
			n = 20
		}
		indicator = strings.Repeat(sym.Pulse, n) + " "
	}

	msg := fmt.Sprintf("%sPulse - %d due, %d dispatched │ in flight %d/%d",
		indicator, report.Due, report.Dispatched, metrics.InFlight, metrics.MaxConcurrent)
	if metrics.MemoryTotalGB > 0 {
		msg += fmt.Sprintf(" │ Mem: %.1f/%.1fGB (%.0f%%)", metrics.MemoryUsedGB, metrics.MemoryTotalGB, metrics.MemoryPercent)
	}
	s.pulseLog.Debugw(msg)
}

// Stats reports loop state for the admin API
type Stats struct {
	Running         bool          `json:"running"`
	Interval        time.Duration `json:"interval"`
	LastTickAt      time.Time     `json:"last_tick_at"`
	TicksSinceStart int64         `json:"ticks_since_start"`
	LastTick        TickReport    `json:"last_tick"`
	System          SystemMetrics `json:"system"`
}

// GetStats returns scheduler statistics
func (s *Scheduler) GetStats() Stats {
	system := s.GetSystemMetrics()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Running:         s.running && s.ctx.Err() == nil,
		Interval:        s.cfg.TickInterval,
		LastTickAt:      s.lastTickAt,
		TicksSinceStart: s.ticksSinceStart,
		LastTick:        s.lastReport,
		System:          system,
	}
}

// CreateSeries validates spec and registers it, due first at FirstDueAt
func (s *Scheduler) CreateSeries(ctx context.Context, spec SeriesSpec) (*Series, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	series, err := s.store.CreateSeries(ctx, spec, FirstDueAt(spec, s.clock()))
	if err != nil {
		return nil, err
	}
	s.pulseLog.Infow("Series created",
		logger.FieldSeriesID, series.ID,
		logger.FieldTopic, series.Topic,
		logger.FieldFrequency, series.Frequency.String(),
		logger.FieldNextDueAt, series.NextDueAt.Format(time.RFC3339))
	return series, nil
}

// GetSeries returns one series
func (s *Scheduler) GetSeries(ctx context.Context, id string) (*Series, error) {
	return s.store.GetSeries(ctx, id)
}

// CancelSeries stops future jobs for a series. An in-flight job still finishes and is recorded.
func (s *Scheduler) CancelSeries(ctx context.Context, id string) error {
	if err := s.store.CancelSeries(ctx, id); err != nil {
		return err
	}
	s.pulseLog.Infow("Series cancelled", logger.FieldSeriesID, id)
	return nil
}

// PauseSeries stops a series from becoming due until resumed
func (s *Scheduler) PauseSeries(ctx context.Context, id string) error {
	return s.store.PauseSeries(ctx, id)
}

// ResumeSeries re-activates a paused series
func (s *Scheduler) ResumeSeries(ctx context.Context, id string) error {
	return s.store.ResumeSeries(ctx, id)
}

// ListSeries lists series, optionally by status
func (s *Scheduler) ListSeries(ctx context.Context, status *SeriesStatus) ([]*Series, error) {
	return s.store.ListSeries(ctx, status)
}

// Snapshot aggregates queue counts with the window starting at windowStart.
// Health classification is HealthReporter's job.
func (s *Scheduler) Snapshot(ctx context.Context, windowStart time.Time) (*QueueSnapshot, error) {
	return s.store.Snapshot(ctx, windowStart)
}

// ListJobs lists a series' jobs oldest first
func (s *Scheduler) ListJobs(ctx context.Context, seriesID string) ([]*GenerationJob, error) {
	return s.store.ListJobs(ctx, seriesID)
}
