package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itgyani/blogpulse/errors"
	"github.com/itgyani/blogpulse/internal/util"
)

func TestStoreCreateSeries(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()
		start := baseTime.Add(-time.Hour)
		spec := SeriesSpec{
			Topic:          "  Go concurrency ",
			Category:       "engineering",
			Frequency:      Custom(UnitHours, 6),
			Keywords:       []string{"goroutines", " channels "},
			Tone:           "friendly",
			Audience:       "backend devs",
			AutoPublish:    true,
			GenerateImages: true,
			StartAt:        &start,
		}

		created, err := store.CreateSeries(ctx, spec, start)
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, SeriesActive, created.Status)
		assert.Equal(t, "Go concurrency", created.Topic)
		assert.Equal(t, []string{"goroutines", "channels"}, created.Keywords)
		assert.Equal(t, 1, created.ImageCount)
		assert.True(t, start.Equal(created.NextDueAt))

		got, err := store.GetSeries(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, Custom(UnitHours, 6), got.Frequency)
		assert.Equal(t, "friendly", got.Tone)
		assert.Equal(t, "backend devs", got.Audience)
		assert.True(t, got.AutoPublish)
		assert.True(t, got.GenerateImages)
		require.NotNil(t, got.StartAt)
		assert.True(t, start.Equal(*got.StartAt))
		assert.True(t, start.Equal(got.NextDueAt))
		assert.True(t, baseTime.Equal(got.CreatedAt))
		assert.Zero(t, got.GeneratedCount)
		assert.Nil(t, got.LastRunAt)
	})
}

func TestStoreCreateSeriesRejectsInvalidSpec(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()

		_, err := store.CreateSeries(ctx, SeriesSpec{Topic: "   ", Frequency: Daily()}, baseTime)
		assert.True(t, errors.IsValidationError(err))

		_, err = store.CreateSeries(ctx, SeriesSpec{Topic: "Go", Frequency: Custom(UnitHours, 0)}, baseTime)
		assert.True(t, errors.IsValidationError(err))

		all, err := store.ListSeries(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestStoreReturnsCopies(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()
		created, err := store.CreateSeries(ctx, SeriesSpec{Topic: "Go", Frequency: Daily(), Keywords: []string{"a"}}, baseTime)
		require.NoError(t, err)

		created.Keywords[0] = "mutated"
		created.Status = SeriesCancelled

		got, err := store.GetSeries(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, got.Keywords)
		assert.Equal(t, SeriesActive, got.Status)
	})
}

func TestStoreUnknownIDs(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()

		_, err := store.GetSeries(ctx, "missing")
		assert.True(t, errors.IsNotFoundError(err))
		_, err = store.BeginJob(ctx, "missing", baseTime)
		assert.True(t, errors.IsNotFoundError(err))
		_, err = store.ListJobs(ctx, "missing")
		assert.True(t, errors.IsNotFoundError(err))
		assert.True(t, errors.IsNotFoundError(store.CancelSeries(ctx, "missing")))
		assert.True(t, errors.IsNotFoundError(store.PauseSeries(ctx, "missing")))
		assert.True(t, errors.IsNotFoundError(store.ResumeSeries(ctx, "missing")))
		assert.True(t, errors.IsNotFoundError(store.CompleteJob(ctx, "missing", JobResult{}, baseTime)))
		assert.True(t, errors.IsNotFoundError(store.FailJob(ctx, "missing", "boom", 1, baseTime)))
		assert.True(t, errors.IsNotFoundError(store.RecordAttempt(ctx, "missing", 1)))
		assert.True(t, errors.IsNotFoundError(store.MarkPublished(ctx, "missing")))
	})
}

func TestStoreListSeries(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()
		var ids []string
		for _, topic := range []string{"first", "second", "third"} {
			s, err := store.CreateSeries(ctx, weeklySpec(topic), baseTime)
			require.NoError(t, err)
			ids = append(ids, s.ID)
		}
		require.NoError(t, store.PauseSeries(ctx, ids[1]))

		all, err := store.ListSeries(ctx, nil)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "first", all[0].Topic)
		assert.Equal(t, "third", all[2].Topic)

		paused, err := store.ListSeries(ctx, util.Ptr(SeriesPaused))
		require.NoError(t, err)
		require.Len(t, paused, 1)
		assert.Equal(t, ids[1], paused[0].ID)

		active, err := store.ListSeries(ctx, util.Ptr(SeriesActive))
		require.NoError(t, err)
		assert.Len(t, active, 2)
	})
}

func TestStoreGetDueSeriesOrdering(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()
		mk := func(topic string, due time.Time) *Series {
			s, err := store.CreateSeries(ctx, weeklySpec(topic), due)
			require.NoError(t, err)
			return s
		}

		late := mk("late", baseTime.Add(-time.Minute))
		tieB := mk("tie-b", baseTime.Add(-time.Hour))
		tieA := mk("tie-a", baseTime.Add(-time.Hour))
		mk("future", baseTime.Add(time.Minute))
		paused := mk("paused", baseTime.Add(-2*time.Hour))
		cancelled := mk("cancelled", baseTime.Add(-3*time.Hour))
		onTheDot := mk("exact", baseTime)

		require.NoError(t, store.PauseSeries(ctx, paused.ID))
		require.NoError(t, store.CancelSeries(ctx, cancelled.ID))

		due, err := store.GetDueSeries(ctx, baseTime)
		require.NoError(t, err)

		var got []string
		for _, s := range due {
			got = append(got, s.ID)
		}
		// Equal due times fall back to ID order; tieB was created first so has the smaller ID
		assert.Equal(t, []string{tieB.ID, tieA.ID, late.ID, onTheDot.ID}, got)
	})
}

func TestStoreBeginJob(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()
		due := baseTime.Add(-time.Hour)
		s, err := store.CreateSeries(ctx, weeklySpec("Go"), due)
		require.NoError(t, err)

		job, err := store.BeginJob(ctx, s.ID, baseTime)
		require.NoError(t, err)
		assert.Equal(t, JobGenerating, job.Status)
		assert.Equal(t, s.ID, job.SeriesID)
		assert.True(t, due.Equal(job.ScheduledFor))
		require.NotNil(t, job.StartedAt)
		assert.True(t, baseTime.Equal(*job.StartedAt))
		assert.Nil(t, job.CompletedAt)

		_, err = store.BeginJob(ctx, s.ID, baseTime)
		assert.True(t, errors.IsConflictError(err), "second begin must conflict, got %v", err)

		jobs, err := store.ListJobs(ctx, s.ID)
		require.NoError(t, err)
		assert.Len(t, jobs, 1)
	})
}

func TestStoreBeginJobPreconditions(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()

		future, err := store.CreateSeries(ctx, weeklySpec("future"), baseTime.Add(time.Hour))
		require.NoError(t, err)
		_, err = store.BeginJob(ctx, future.ID, baseTime)
		assert.True(t, errors.IsConflictError(err))

		paused, err := store.CreateSeries(ctx, weeklySpec("paused"), baseTime)
		require.NoError(t, err)
		require.NoError(t, store.PauseSeries(ctx, paused.ID))
		_, err = store.BeginJob(ctx, paused.ID, baseTime)
		assert.True(t, errors.IsConflictError(err))

		cancelled, err := store.CreateSeries(ctx, weeklySpec("cancelled"), baseTime)
		require.NoError(t, err)
		require.NoError(t, store.CancelSeries(ctx, cancelled.ID))
		_, err = store.BeginJob(ctx, cancelled.ID, baseTime)
		assert.True(t, errors.IsConflictError(err))
	})
}

func TestStoreConcurrentBeginJob(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()
		s, err := store.CreateSeries(ctx, weeklySpec("Go"), baseTime)
		require.NoError(t, err)

		const workers = 20
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			conflicts int
		)
		start := make(chan struct{})
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := store.BeginJob(ctx, s.ID, baseTime)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.IsConflictError(err):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, workers-1, conflicts)

		jobs, err := store.ListJobs(ctx, s.ID)
		require.NoError(t, err)
		assert.Len(t, jobs, 1)
	})
}

func TestStoreCompleteJob(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()
		due := baseTime.Add(-time.Minute)
		s, err := store.CreateSeries(ctx, weeklySpec("Go"), due)
		require.NoError(t, err)
		job, err := store.BeginJob(ctx, s.ID, baseTime)
		require.NoError(t, err)

		require.NoError(t, store.RecordAttempt(ctx, job.ID, 2))
		clock.Advance(5 * time.Minute)
		next := due.Add(7 * 24 * time.Hour)
		require.NoError(t, store.CompleteJob(ctx, job.ID, JobResult{ContentRef: "post-1", ImageRefs: []string{"img-1"}}, next))

		got, err := store.GetSeries(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.GeneratedCount)
		assert.Zero(t, got.FailedCount)
		assert.Empty(t, got.LastError)
		assert.True(t, next.Equal(got.NextDueAt))
		require.NotNil(t, got.LastRunAt)
		assert.True(t, clock.Now().Equal(*got.LastRunAt))

		jobs, err := store.ListJobs(ctx, s.ID)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, JobSucceeded, jobs[0].Status)
		assert.Equal(t, 2, jobs[0].Attempts)
		assert.Equal(t, "post-1", jobs[0].ResultRef)
		assert.Equal(t, []string{"img-1"}, jobs[0].ImageRefs)
		require.NotNil(t, jobs[0].CompletedAt)
		assert.True(t, clock.Now().Equal(*jobs[0].CompletedAt))

		// Terminal jobs are immutable
		assert.True(t, errors.IsConflictError(store.CompleteJob(ctx, job.ID, JobResult{}, next)))
		assert.True(t, errors.IsConflictError(store.FailJob(ctx, job.ID, "late", 1, next)))
		assert.True(t, errors.IsConflictError(store.RecordAttempt(ctx, job.ID, 3)))

		// The series can run again once due
		_, err = store.BeginJob(ctx, s.ID, next)
		assert.NoError(t, err)
	})
}

func TestStoreFailJob(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()
		s, err := store.CreateSeries(ctx, weeklySpec("Go"), baseTime)
		require.NoError(t, err)
		job, err := store.BeginJob(ctx, s.ID, baseTime)
		require.NoError(t, err)

		next := baseTime.Add(7 * 24 * time.Hour)
		require.NoError(t, store.FailJob(ctx, job.ID, "HTTP 503", 4, next))

		got, err := store.GetSeries(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, SeriesActive, got.Status, "failures never change series status")
		assert.Equal(t, 1, got.FailedCount)
		assert.Equal(t, "HTTP 503", got.LastError)
		assert.True(t, next.Equal(got.NextDueAt))

		jobs, err := store.ListJobs(ctx, s.ID)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, JobFailed, jobs[0].Status)
		assert.Equal(t, 4, jobs[0].Attempts)
		assert.Equal(t, "HTTP 503", jobs[0].Error)

		// A later success clears the last error
		job2, err := store.BeginJob(ctx, s.ID, next)
		require.NoError(t, err)
		require.NoError(t, store.CompleteJob(ctx, job2.ID, JobResult{ContentRef: "post"}, next.Add(7*24*time.Hour)))
		got, err = store.GetSeries(ctx, s.ID)
		require.NoError(t, err)
		assert.Empty(t, got.LastError)
		assert.Equal(t, 1, got.GeneratedCount)
		assert.Equal(t, 1, got.FailedCount)
	})
}

func TestStoreCancelSeries(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()
		s, err := store.CreateSeries(ctx, weeklySpec("Go"), baseTime)
		require.NoError(t, err)

		require.NoError(t, store.CancelSeries(ctx, s.ID))
		require.NoError(t, store.CancelSeries(ctx, s.ID), "cancel is idempotent")

		got, err := store.GetSeries(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, SeriesCancelled, got.Status)

		assert.True(t, errors.IsConflictError(store.PauseSeries(ctx, s.ID)))
		assert.True(t, errors.IsConflictError(store.ResumeSeries(ctx, s.ID)))

		due, err := store.GetDueSeries(ctx, baseTime.Add(365*24*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, due)
	})
}

func TestStoreCancelDuringGeneration(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()
		s, err := store.CreateSeries(ctx, weeklySpec("Go"), baseTime)
		require.NoError(t, err)
		job, err := store.BeginJob(ctx, s.ID, baseTime)
		require.NoError(t, err)

		require.NoError(t, store.CancelSeries(ctx, s.ID))
		require.NoError(t, store.CompleteJob(ctx, job.ID, JobResult{ContentRef: "post"}, baseTime.Add(7*24*time.Hour)))

		got, err := store.GetSeries(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, SeriesCancelled, got.Status, "completion must not revive a cancelled series")
		assert.Equal(t, 1, got.GeneratedCount)
		assert.True(t, baseTime.Equal(got.NextDueAt))
	})
}

func TestStorePauseResume(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()
		s, err := store.CreateSeries(ctx, weeklySpec("Go"), baseTime)
		require.NoError(t, err)

		require.NoError(t, store.PauseSeries(ctx, s.ID))
		require.NoError(t, store.PauseSeries(ctx, s.ID))
		due, err := store.GetDueSeries(ctx, baseTime)
		require.NoError(t, err)
		assert.Empty(t, due)

		require.NoError(t, store.ResumeSeries(ctx, s.ID))
		due, err = store.GetDueSeries(ctx, baseTime)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, s.ID, due[0].ID)
	})
}

func TestStorePublishAnnotations(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()
		s, err := store.CreateSeries(ctx, weeklySpec("Go"), baseTime)
		require.NoError(t, err)
		job, err := store.BeginJob(ctx, s.ID, baseTime)
		require.NoError(t, err)

		assert.True(t, errors.IsConflictError(store.MarkPublished(ctx, job.ID)), "generating jobs cannot be published")

		require.NoError(t, store.CompleteJob(ctx, job.ID, JobResult{ContentRef: "post"}, baseTime.Add(time.Hour)))
		require.NoError(t, store.RecordPublishError(ctx, job.ID, "blog offline"))

		jobs, err := store.ListJobs(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, JobSucceeded, jobs[0].Status)
		assert.Equal(t, "blog offline", jobs[0].PublishError)
		assert.False(t, jobs[0].Published)

		require.NoError(t, store.MarkPublished(ctx, job.ID))
		jobs, err = store.ListJobs(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, jobs[0].Published)
		assert.Empty(t, jobs[0].PublishError)
	})
}

func TestStoreSnapshot(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()

		empty, err := store.Snapshot(ctx, baseTime.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Zero(t, empty.TotalSeries)
		assert.Zero(t, empty.WindowJobs)
		assert.Nil(t, empty.NextDueAt)
		assert.Contains(t, empty.JobsByStatus, JobFailed)

		a, err := store.CreateSeries(ctx, weeklySpec("a"), baseTime.Add(-48*time.Hour))
		require.NoError(t, err)
		b, err := store.CreateSeries(ctx, weeklySpec("b"), baseTime.Add(-48*time.Hour))
		require.NoError(t, err)
		c, err := store.CreateSeries(ctx, weeklySpec("c"), baseTime.Add(2*time.Hour))
		require.NoError(t, err)
		paused, err := store.CreateSeries(ctx, weeklySpec("paused"), baseTime.Add(time.Hour))
		require.NoError(t, err)
		require.NoError(t, store.PauseSeries(ctx, paused.ID))

		// An old failure, outside the window
		clock.Set(baseTime.Add(-30 * time.Hour))
		old, err := store.BeginJob(ctx, a.ID, clock.Now())
		require.NoError(t, err)
		require.NoError(t, store.FailJob(ctx, old.ID, "boom", 1, baseTime.Add(-time.Hour)))

		clock.Set(baseTime)
		ok, err := store.BeginJob(ctx, a.ID, clock.Now())
		require.NoError(t, err)
		require.NoError(t, store.CompleteJob(ctx, ok.ID, JobResult{ContentRef: "post"}, baseTime.Add(3*time.Hour)))
		require.NoError(t, store.MarkPublished(ctx, ok.ID))

		bad, err := store.BeginJob(ctx, b.ID, clock.Now())
		require.NoError(t, err)
		require.NoError(t, store.FailJob(ctx, bad.ID, "boom", 4, baseTime.Add(4*time.Hour)))

		_, err = store.BeginJob(ctx, b.ID, baseTime.Add(5*time.Hour))
		require.NoError(t, err)

		snap, err := store.Snapshot(ctx, baseTime.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 4, snap.TotalSeries)
		assert.Equal(t, 3, snap.SeriesByStatus[SeriesActive])
		assert.Equal(t, 1, snap.SeriesByStatus[SeriesPaused])
		assert.Equal(t, 0, snap.SeriesByStatus[SeriesCancelled])
		assert.Equal(t, 1, snap.JobsByStatus[JobSucceeded])
		assert.Equal(t, 2, snap.JobsByStatus[JobFailed])
		assert.Equal(t, 1, snap.JobsByStatus[JobGenerating])
		assert.Equal(t, 1, snap.Published)
		assert.Equal(t, 2, snap.WindowJobs)
		assert.Equal(t, 1, snap.WindowFailed)

		require.NotNil(t, snap.NextDueAt)
		assert.True(t, c.NextDueAt.Equal(*snap.NextDueAt), "paused series are not counted for next due")
	})
}
