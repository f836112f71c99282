package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store owns series and job records. Every method is atomic with respect to
// every other, and callers only ever receive copies.
type Store interface {
	// CreateSeries validates spec and persists a new active series due at firstDueAt
	CreateSeries(ctx context.Context, spec SeriesSpec, firstDueAt time.Time) (*Series, error)
	GetSeries(ctx context.Context, id string) (*Series, error)
	// ListSeries returns series in creation order, optionally filtered by status
	ListSeries(ctx context.Context, status *SeriesStatus) ([]*Series, error)
	// GetDueSeries returns active series with NextDueAt <= asOf, earliest first (ties by ID)
	GetDueSeries(ctx context.Context, asOf time.Time) ([]*Series, error)

	// BeginJob re-checks that the series is active, due at asOf and has no
	// generating job, then creates a job and moves it to generating.
	// Any failed check is a ConflictError.
	BeginJob(ctx context.Context, seriesID string, asOf time.Time) (*GenerationJob, error)
	// RecordAttempt stores the number of gateway calls made so far
	RecordAttempt(ctx context.Context, jobID string, attempts int) error
	// CompleteJob marks a generating job succeeded and reschedules its series
	CompleteJob(ctx context.Context, jobID string, result JobResult, nextDueAt time.Time) error
	// FailJob marks a generating job failed and reschedules its series
	FailJob(ctx context.Context, jobID string, cause string, attempts int, nextDueAt time.Time) error
	// MarkPublished records that a succeeded job's content was published
	MarkPublished(ctx context.Context, jobID string) error
	// RecordPublishError records a publish failure; the job stays succeeded
	RecordPublishError(ctx context.Context, jobID string, msg string) error

	// CancelSeries is idempotent and terminal
	CancelSeries(ctx context.Context, id string) error
	PauseSeries(ctx context.Context, id string) error
	ResumeSeries(ctx context.Context, id string) error

	// ListJobs returns a series' jobs in creation order
	ListJobs(ctx context.Context, seriesID string) ([]*GenerationJob, error)
	// Snapshot aggregates counts; window figures cover jobs completed at or after windowStart
	Snapshot(ctx context.Context, windowStart time.Time) (*QueueSnapshot, error)
}

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// StoreOption configures a Store implementation
type StoreOption func(*storeOptions)

type storeOptions struct {
	clock Clock
	newID func() string
}

// WithStoreClock sets the clock used for created/started/completed timestamps
func WithStoreClock(clock Clock) StoreOption {
	return func(o *storeOptions) { o.clock = clock }
}

// WithIDGenerator replaces the UUID generator for series and job IDs
func WithIDGenerator(newID func() string) StoreOption {
	return func(o *storeOptions) { o.newID = newID }
}

func buildStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{clock: time.Now, newID: newID}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newID() string {
	return uuid.NewString()
}
