package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/itgyani/blogpulse/errors"
)

// MemoryStore keeps series and jobs in process memory behind one mutex.
// State does not survive a restart.
type MemoryStore struct {
	mu   sync.Mutex
	opts storeOptions

	series      map[string]*Series
	seriesOrder []string
	jobs        map[string]*GenerationJob
	seriesJobs  map[string][]string // series ID -> job IDs in creation order
	generating  map[string]string   // series ID -> generating job ID
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	return &MemoryStore{
		opts:       buildStoreOptions(opts),
		series:     make(map[string]*Series),
		jobs:       make(map[string]*GenerationJob),
		seriesJobs: make(map[string][]string),
		generating: make(map[string]string),
	}
}

func (m *MemoryStore) CreateSeries(ctx context.Context, spec SeriesSpec, firstDueAt time.Time) (*Series, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.clock()
	s := &Series{
		ID:         m.opts.newID(),
		SeriesSpec: spec.Normalized(),
		NextDueAt:  firstDueAt,
		Status:     SeriesActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.series[s.ID] = s
	m.seriesOrder = append(m.seriesOrder, s.ID)
	return s.Clone(), nil
}

func (m *MemoryStore) GetSeries(ctx context.Context, id string) (*Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.getSeriesLocked(id)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

func (m *MemoryStore) ListSeries(ctx context.Context, status *SeriesStatus) ([]*Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Series, 0, len(m.seriesOrder))
	for _, id := range m.seriesOrder {
		s := m.series[id]
		if status != nil && s.Status != *status {
			continue
		}
		out = append(out, s.Clone())
	}
	return out, nil
}

func (m *MemoryStore) GetDueSeries(ctx context.Context, asOf time.Time) ([]*Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*Series
	for _, id := range m.seriesOrder {
		if s := m.series[id]; s.IsDue(asOf) {
			due = append(due, s.Clone())
		}
	}
	sortDue(due)
	return due, nil
}

func (m *MemoryStore) BeginJob(ctx context.Context, seriesID string, asOf time.Time) (*GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.getSeriesLocked(seriesID)
	if err != nil {
		return nil, err
	}
	if err := checkBeginnable(s, asOf, m.generating[seriesID]); err != nil {
		return nil, err
	}

	now := m.opts.clock()
	job := &GenerationJob{
		ID:           m.opts.newID(),
		SeriesID:     seriesID,
		ScheduledFor: s.NextDueAt,
		Status:       JobPending,
		CreatedAt:    now,
	}
	job.Status = JobGenerating
	job.StartedAt = &now

	m.jobs[job.ID] = job
	m.seriesJobs[seriesID] = append(m.seriesJobs[seriesID], job.ID)
	m.generating[seriesID] = job.ID
	return job.Clone(), nil
}

func (m *MemoryStore) RecordAttempt(ctx context.Context, jobID string, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.getJobLocked(jobID)
	if err != nil {
		return err
	}
	if job.Status != JobGenerating {
		return errors.NewConflictError("job %s is %s, not generating", jobID, job.Status)
	}
	job.Attempts = attempts
	return nil
}

func (m *MemoryStore) CompleteJob(ctx context.Context, jobID string, result JobResult, nextDueAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, s, err := m.finishableLocked(jobID)
	if err != nil {
		return err
	}

	now := m.opts.clock()
	job.Status = JobSucceeded
	job.CompletedAt = &now
	job.ResultRef = result.ContentRef
	job.ImageRefs = append([]string(nil), result.ImageRefs...)
	delete(m.generating, job.SeriesID)

	s.GeneratedCount++
	s.LastError = ""
	rescheduleAfterRun(s, nextDueAt, now)
	return nil
}

func (m *MemoryStore) FailJob(ctx context.Context, jobID string, cause string, attempts int, nextDueAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, s, err := m.finishableLocked(jobID)
	if err != nil {
		return err
	}

	now := m.opts.clock()
	job.Status = JobFailed
	job.CompletedAt = &now
	job.Attempts = attempts
	job.Error = cause
	delete(m.generating, job.SeriesID)

	s.FailedCount++
	s.LastError = cause
	rescheduleAfterRun(s, nextDueAt, now)
	return nil
}

func (m *MemoryStore) MarkPublished(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.succeededLocked(jobID)
	if err != nil {
		return err
	}
	job.Published = true
	job.PublishError = ""
	return nil
}

func (m *MemoryStore) RecordPublishError(ctx context.Context, jobID string, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.succeededLocked(jobID)
	if err != nil {
		return err
	}
	job.Published = false
	job.PublishError = msg
	return nil
}

func (m *MemoryStore) CancelSeries(ctx context.Context, id string) error {
	return m.transition(id, func(s *Series) error {
		s.Status = SeriesCancelled
		return nil
	})
}

func (m *MemoryStore) PauseSeries(ctx context.Context, id string) error {
	return m.transition(id, func(s *Series) error {
		return applyPause(s)
	})
}

func (m *MemoryStore) ResumeSeries(ctx context.Context, id string) error {
	return m.transition(id, func(s *Series) error {
		return applyResume(s)
	})
}

func (m *MemoryStore) ListJobs(ctx context.Context, seriesID string) ([]*GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.getSeriesLocked(seriesID); err != nil {
		return nil, err
	}
	ids := m.seriesJobs[seriesID]
	out := make([]*GenerationJob, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.jobs[id].Clone())
	}
	return out, nil
}

func (m *MemoryStore) Snapshot(ctx context.Context, windowStart time.Time) (*QueueSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := newSnapshot(windowStart)
	for _, s := range m.series {
		snap.TotalSeries++
		snap.SeriesByStatus[s.Status]++
		if s.Status == SeriesActive && (snap.NextDueAt == nil || s.NextDueAt.Before(*snap.NextDueAt)) {
			snap.NextDueAt = copyTime(&s.NextDueAt)
		}
	}
	for _, j := range m.jobs {
		snap.JobsByStatus[j.Status]++
		if j.Published {
			snap.Published++
		}
		if j.IsTerminal() && j.CompletedAt != nil && !j.CompletedAt.Before(windowStart) {
			snap.WindowJobs++
			if j.Status == JobFailed {
				snap.WindowFailed++
			}
		}
	}
	return snap, nil
}

func (m *MemoryStore) transition(id string, apply func(*Series) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.getSeriesLocked(id)
	if err != nil {
		return err
	}
	before := s.Status
	if err := apply(s); err != nil {
		return err
	}
	if s.Status != before {
		s.UpdatedAt = m.opts.clock()
	}
	return nil
}

func (m *MemoryStore) getSeriesLocked(id string) (*Series, error) {
	s, ok := m.series[id]
	if !ok {
		return nil, errors.NewNotFoundError("series %s not found", id)
	}
	return s, nil
}

func (m *MemoryStore) getJobLocked(id string) (*GenerationJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, errors.NewNotFoundError("job %s not found", id)
	}
	return job, nil
}

func (m *MemoryStore) finishableLocked(jobID string) (*GenerationJob, *Series, error) {
	job, err := m.getJobLocked(jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != JobGenerating {
		return nil, nil, errors.NewConflictError("job %s is %s, not generating", jobID, job.Status)
	}
	s, err := m.getSeriesLocked(job.SeriesID)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "job %s", jobID)
	}
	return job, s, nil
}

func (m *MemoryStore) succeededLocked(jobID string) (*GenerationJob, error) {
	job, err := m.getJobLocked(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != JobSucceeded {
		return nil, errors.NewConflictError("job %s is %s, not succeeded", jobID, job.Status)
	}
	return job, nil
}

// checkBeginnable holds the BeginJob preconditions shared by both stores
func checkBeginnable(s *Series, asOf time.Time, generatingJobID string) error {
	if s.Status != SeriesActive {
		return errors.NewConflictError("series %s is %s", s.ID, s.Status)
	}
	if s.NextDueAt.After(asOf) {
		return errors.NewConflictError("series %s is not due until %s", s.ID, s.NextDueAt.Format(time.RFC3339))
	}
	if generatingJobID != "" {
		return errors.NewConflictError("series %s already generating (job %s)", s.ID, generatingJobID)
	}
	return nil
}

// rescheduleAfterRun applies the post-run series update.
// A cancelled series keeps its counters current but is never revived.
func rescheduleAfterRun(s *Series, nextDueAt, now time.Time) {
	s.LastRunAt = &now
	s.UpdatedAt = now
	if s.Status != SeriesCancelled {
		s.NextDueAt = nextDueAt
	}
}

func applyPause(s *Series) error {
	switch s.Status {
	case SeriesCancelled:
		return errors.NewConflictError("series %s is cancelled", s.ID)
	default:
		s.Status = SeriesPaused
		return nil
	}
}

func applyResume(s *Series) error {
	switch s.Status {
	case SeriesCancelled:
		return errors.NewConflictError("series %s is cancelled", s.ID)
	default:
		s.Status = SeriesActive
		return nil
	}
}

func sortDue(due []*Series) {
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].NextDueAt.Equal(due[j].NextDueAt) {
			return due[i].NextDueAt.Before(due[j].NextDueAt)
		}
		return due[i].ID < due[j].ID
	})
}
