package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/itgyani/blogpulse/errors"
)

// timeLayout is fixed-width UTC so that text comparison in SQL orders by time
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid stored time %q", s)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SQLStore persists series and jobs in SQLite (schema from db migrations).
// Mutations hold a process mutex and run in one transaction each; the
// idx_jobs_one_generating index backs the one-generating-job rule.
// Times come back in UTC.
type SQLStore struct {
	db   *sql.DB
	mu   sync.Mutex
	opts storeOptions
}

// NewSQLStore creates a store over a migrated database
func NewSQLStore(db *sql.DB, opts ...StoreOption) *SQLStore {
	return &SQLStore{db: db, opts: buildStoreOptions(opts)}
}

const seriesColumns = `id, topic, category, frequency, keywords, tone, audience,
	auto_publish, generate_images, image_count, start_at, next_due_at, status,
	last_error, generated_count, failed_count, last_run_at, created_at, updated_at`

const jobColumns = `id, series_id, scheduled_for, status, attempts, started_at,
	completed_at, result_ref, image_refs, error, published, publish_error, created_at`

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLStore) CreateSeries(ctx context.Context, spec SeriesSpec, firstDueAt time.Time) (*Series, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec = spec.Normalized()

	keywords, err := json.Marshal(nonNil(spec.Keywords))
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode keywords")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.clock()
	series := &Series{
		ID:         s.opts.newID(),
		SeriesSpec: spec,
		NextDueAt:  firstDueAt,
		Status:     SeriesActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO series (
				id, seq, topic, category, frequency, keywords, tone, audience,
				auto_publish, generate_images, image_count, start_at, next_due_at,
				status, created_at, updated_at
			) VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM series), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			series.ID, spec.Topic, spec.Category, spec.Frequency.String(), string(keywords),
			spec.Tone, spec.Audience, spec.AutoPublish, spec.GenerateImages, spec.ImageCount,
			formatTimePtr(spec.StartAt), formatTime(firstDueAt), string(SeriesActive),
			formatTime(now), formatTime(now),
		)
		return errors.Wrap(err, "failed to insert series")
	})
	if err != nil {
		return nil, errors.WithDetailf(err, "topic: %s", spec.Topic)
	}

	return s.getSeries(ctx, s.db, series.ID)
}

func (s *SQLStore) GetSeries(ctx context.Context, id string) (*Series, error) {
	return s.getSeries(ctx, s.db, id)
}

func (s *SQLStore) ListSeries(ctx context.Context, status *SeriesStatus) ([]*Series, error) {
	query := `SELECT ` + seriesColumns + ` FROM series`
	var args []interface{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY seq`
	return s.querySeries(ctx, query, args...)
}

func (s *SQLStore) GetDueSeries(ctx context.Context, asOf time.Time) ([]*Series, error) {
	return s.querySeries(ctx, `SELECT `+seriesColumns+` FROM series
		WHERE status = ? AND next_due_at <= ?
		ORDER BY next_due_at, id`, string(SeriesActive), formatTime(asOf))
}

func (s *SQLStore) BeginJob(ctx context.Context, seriesID string, asOf time.Time) (*GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.clock()
	jobID := s.opts.newID()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		series, err := s.getSeries(ctx, tx, seriesID)
		if err != nil {
			return err
		}

		var generatingID string
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM generation_jobs WHERE series_id = ? AND status = ?`,
			seriesID, string(JobGenerating)).Scan(&generatingID)
		if err != nil && err != sql.ErrNoRows {
			return errors.Wrap(err, "failed to check generating job")
		}
		if err := checkBeginnable(series, asOf, generatingID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO generation_jobs (id, seq, series_id, scheduled_for, status, created_at)
			VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM generation_jobs), ?, ?, ?, ?)`,
			jobID, seriesID, formatTime(series.NextDueAt), string(JobPending), formatTime(now))
		if err != nil {
			return errors.Wrap(err, "failed to insert job")
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE generation_jobs SET status = ?, started_at = ? WHERE id = ?`,
			string(JobGenerating), formatTime(now), jobID)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.NewConflictError("series %s already generating", seriesID)
			}
			return errors.Wrap(err, "failed to start job")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.getJob(ctx, s.db, jobID)
}

func (s *SQLStore) RecordAttempt(ctx context.Context, jobID string, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		job, err := s.getJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Status != JobGenerating {
			return errors.NewConflictError("job %s is %s, not generating", jobID, job.Status)
		}
		_, err = tx.ExecContext(ctx, `UPDATE generation_jobs SET attempts = ? WHERE id = ?`, attempts, jobID)
		return errors.Wrap(err, "failed to record attempt")
	})
}

func (s *SQLStore) CompleteJob(ctx context.Context, jobID string, result JobResult, nextDueAt time.Time) error {
	imageRefs, err := json.Marshal(nonNil(result.ImageRefs))
	if err != nil {
		return errors.Wrap(err, "failed to encode image refs")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.clock()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		job, err := s.finishable(ctx, tx, jobID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE generation_jobs
			SET status = ?, completed_at = ?, result_ref = ?, image_refs = ?
			WHERE id = ?`,
			string(JobSucceeded), formatTime(now), result.ContentRef, string(imageRefs), jobID)
		if err != nil {
			return errors.Wrap(err, "failed to complete job")
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE series
			SET generated_count = generated_count + 1, last_error = '', last_run_at = ?, updated_at = ?,
			    next_due_at = CASE WHEN status = ? THEN next_due_at ELSE ? END
			WHERE id = ?`,
			formatTime(now), formatTime(now), string(SeriesCancelled), formatTime(nextDueAt), job.SeriesID)
		return errors.Wrap(err, "failed to reschedule series")
	})
}

func (s *SQLStore) FailJob(ctx context.Context, jobID string, cause string, attempts int, nextDueAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.clock()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		job, err := s.finishable(ctx, tx, jobID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE generation_jobs
			SET status = ?, completed_at = ?, attempts = ?, error = ?
			WHERE id = ?`,
			string(JobFailed), formatTime(now), attempts, cause, jobID)
		if err != nil {
			return errors.Wrap(err, "failed to fail job")
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE series
			SET failed_count = failed_count + 1, last_error = ?, last_run_at = ?, updated_at = ?,
			    next_due_at = CASE WHEN status = ? THEN next_due_at ELSE ? END
			WHERE id = ?`,
			cause, formatTime(now), formatTime(now), string(SeriesCancelled), formatTime(nextDueAt), job.SeriesID)
		return errors.Wrap(err, "failed to reschedule series")
	})
}

func (s *SQLStore) MarkPublished(ctx context.Context, jobID string) error {
	return s.annotateSucceeded(ctx, jobID, true, "")
}

func (s *SQLStore) RecordPublishError(ctx context.Context, jobID string, msg string) error {
	return s.annotateSucceeded(ctx, jobID, false, msg)
}

func (s *SQLStore) annotateSucceeded(ctx context.Context, jobID string, published bool, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		job, err := s.getJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Status != JobSucceeded {
			return errors.NewConflictError("job %s is %s, not succeeded", jobID, job.Status)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE generation_jobs SET published = ?, publish_error = ? WHERE id = ?`,
			published, msg, jobID)
		return errors.Wrap(err, "failed to record publish outcome")
	})
}

func (s *SQLStore) CancelSeries(ctx context.Context, id string) error {
	return s.transition(ctx, id, func(series *Series) error {
		series.Status = SeriesCancelled
		return nil
	})
}

func (s *SQLStore) PauseSeries(ctx context.Context, id string) error {
	return s.transition(ctx, id, applyPause)
}

func (s *SQLStore) ResumeSeries(ctx context.Context, id string) error {
	return s.transition(ctx, id, applyResume)
}

func (s *SQLStore) transition(ctx context.Context, id string, apply func(*Series) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		series, err := s.getSeries(ctx, tx, id)
		if err != nil {
			return err
		}
		before := series.Status
		if err := apply(series); err != nil {
			return err
		}
		if series.Status == before {
			return nil
		}
		_, err = tx.ExecContext(ctx, `UPDATE series SET status = ?, updated_at = ? WHERE id = ?`,
			string(series.Status), formatTime(s.opts.clock()), id)
		return errors.Wrapf(err, "failed to set series %s %s", id, series.Status)
	})
}

func (s *SQLStore) ListJobs(ctx context.Context, seriesID string) ([]*GenerationJob, error) {
	if _, err := s.getSeries(ctx, s.db, seriesID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE series_id = ? ORDER BY seq`, seriesID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query jobs")
	}
	defer rows.Close()

	var jobs []*GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate jobs")
	}
	if jobs == nil {
		jobs = []*GenerationJob{}
	}
	return jobs, nil
}

func (s *SQLStore) Snapshot(ctx context.Context, windowStart time.Time) (*QueueSnapshot, error) {
	snap := newSnapshot(windowStart)

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM series GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count series")
	}
	if err := scanCounts(rows, func(status string, n int) {
		snap.SeriesByStatus[SeriesStatus(status)] = n
		snap.TotalSeries += n
	}); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM generation_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	if err := scanCounts(rows, func(status string, n int) {
		snap.JobsByStatus[JobStatus(status)] = n
	}); err != nil {
		return nil, err
	}

	var nextDue sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM generation_jobs WHERE published = 1),
			(SELECT COUNT(*) FROM generation_jobs WHERE status IN (?, ?) AND completed_at >= ?),
			(SELECT COUNT(*) FROM generation_jobs WHERE status = ? AND completed_at >= ?),
			(SELECT MIN(next_due_at) FROM series WHERE status = ?)`,
		string(JobSucceeded), string(JobFailed), formatTime(windowStart),
		string(JobFailed), formatTime(windowStart),
		string(SeriesActive),
	).Scan(&snap.Published, &snap.WindowJobs, &snap.WindowFailed, &nextDue)
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate queue")
	}
	if snap.NextDueAt, err = parseNullTime(nextDue); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SQLStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func (s *SQLStore) finishable(ctx context.Context, q queryer, jobID string) (*GenerationJob, error) {
	job, err := s.getJob(ctx, q, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != JobGenerating {
		return nil, errors.NewConflictError("job %s is %s, not generating", jobID, job.Status)
	}
	return job, nil
}

func (s *SQLStore) getSeries(ctx context.Context, q queryer, id string) (*Series, error) {
	row := q.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM series WHERE id = ?`, id)
	series, err := scanSeries(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("series %s not found", id)
	}
	return series, err
}

func (s *SQLStore) getJob(ctx context.Context, q queryer, id string) (*GenerationJob, error) {
	row := q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("job %s not found", id)
	}
	return job, err
}

func (s *SQLStore) querySeries(ctx context.Context, query string, args ...interface{}) ([]*Series, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query series")
	}
	defer rows.Close()

	out := []*Series{}
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, series)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate series")
	}
	return out, nil
}

// scanSeries returns sql.ErrNoRows unwrapped so callers can map it to NotFound
func scanSeries(row rowScanner) (*Series, error) {
	var (
		series                          Series
		frequency, keywords, status     string
		nextDueAt, createdAt, updatedAt string
		startAt, lastRunAt              sql.NullString
	)
	err := row.Scan(
		&series.ID, &series.Topic, &series.Category, &frequency, &keywords,
		&series.Tone, &series.Audience, &series.AutoPublish, &series.GenerateImages,
		&series.ImageCount, &startAt, &nextDueAt, &status, &series.LastError,
		&series.GeneratedCount, &series.FailedCount, &lastRunAt, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan series")
	}

	series.Status = SeriesStatus(status)
	if series.Frequency, err = ParseFrequency(frequency); err != nil {
		return nil, errors.Wrapf(err, "series %s has corrupt frequency", series.ID)
	}
	if err := json.Unmarshal([]byte(keywords), &series.Keywords); err != nil {
		return nil, errors.Wrapf(err, "series %s has corrupt keywords", series.ID)
	}
	if len(series.Keywords) == 0 {
		series.Keywords = nil
	}
	if series.StartAt, err = parseNullTime(startAt); err != nil {
		return nil, err
	}
	if series.LastRunAt, err = parseNullTime(lastRunAt); err != nil {
		return nil, err
	}
	if series.NextDueAt, err = parseTime(nextDueAt); err != nil {
		return nil, err
	}
	if series.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if series.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &series, nil
}

func scanJob(row rowScanner) (*GenerationJob, error) {
	var (
		job                             GenerationJob
		scheduledFor, status, createdAt string
		imageRefs                       string
		startedAt, completedAt          sql.NullString
	)
	err := row.Scan(
		&job.ID, &job.SeriesID, &scheduledFor, &status, &job.Attempts, &startedAt,
		&completedAt, &job.ResultRef, &imageRefs, &job.Error, &job.Published,
		&job.PublishError, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan job")
	}

	job.Status = JobStatus(status)
	if err := json.Unmarshal([]byte(imageRefs), &job.ImageRefs); err != nil {
		return nil, errors.Wrapf(err, "job %s has corrupt image refs", job.ID)
	}
	if len(job.ImageRefs) == 0 {
		job.ImageRefs = nil
	}
	if job.ScheduledFor, err = parseTime(scheduledFor); err != nil {
		return nil, err
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if job.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	return &job, nil
}

func scanCounts(rows *sql.Rows, fn func(status string, n int)) error {
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return errors.Wrap(err, "failed to scan count")
		}
		fn(status, n)
	}
	return errors.Wrap(rows.Err(), "failed to iterate counts")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
