package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHealth(t *testing.T) {
	th := DefaultHealthThresholds()
	tests := []struct {
		name          string
		failed, total int
		want          HealthStatus
	}{
		{"no jobs", 0, 0, HealthGood},
		{"all good", 0, 10, HealthGood},
		{"just under warning", 9, 100, HealthGood},
		{"warning boundary", 1, 10, HealthWarning},
		{"half is still warning", 5, 10, HealthWarning},
		{"over half", 6, 10, HealthCritical},
		{"all failed", 3, 3, HealthCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := ClassifyHealth(tt.failed, tt.total, th)
			assert.Equal(t, tt.want, got)
		})
	}

	ratio, _ := ClassifyHealth(1, 4, th)
	assert.InDelta(t, 0.25, ratio, 1e-9)
}

// runJob begins and finishes one job for seriesID at the clock's current time
func runJob(t *testing.T, store Store, clock *fakeClock, seriesID string, fail bool) {
	t.Helper()
	ctx := context.Background()
	job, err := store.BeginJob(ctx, seriesID, clock.Now())
	require.NoError(t, err)
	next := clock.Now().Add(time.Minute)
	if fail {
		require.NoError(t, store.FailJob(ctx, job.ID, "boom", 1, next))
	} else {
		require.NoError(t, store.CompleteJob(ctx, job.ID, JobResult{ContentRef: "post"}, next))
	}
	clock.Advance(time.Minute)
}

func TestHealthReporterTransitions(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()
		reporter := NewHealthReporter(store, DefaultHealthThresholds(), clock.Now)

		snap, err := reporter.Report(ctx)
		require.NoError(t, err)
		assert.Equal(t, HealthGood, snap.Health, "an empty queue is healthy")
		assert.Zero(t, snap.FailureRatio)

		s, err := store.CreateSeries(ctx, SeriesSpec{Topic: "Go", Frequency: Custom(UnitHours, 1)}, clock.Now())
		require.NoError(t, err)

		for i := 0; i < 9; i++ {
			runJob(t, store, clock, s.ID, false)
		}
		snap, err = reporter.Report(ctx)
		require.NoError(t, err)
		assert.Equal(t, HealthGood, snap.Health)
		assert.Equal(t, 9, snap.WindowJobs)

		runJob(t, store, clock, s.ID, true)
		snap, err = reporter.Report(ctx)
		require.NoError(t, err)
		assert.Equal(t, HealthWarning, snap.Health)
		assert.InDelta(t, 0.10, snap.FailureRatio, 1e-9)

		for i := 0; i < 9; i++ {
			runJob(t, store, clock, s.ID, true)
		}
		snap, err = reporter.Report(ctx)
		require.NoError(t, err)
		assert.Equal(t, HealthWarning, snap.Health, "exactly half is not critical")
		assert.Equal(t, 20, snap.WindowJobs)

		runJob(t, store, clock, s.ID, true)
		snap, err = reporter.Report(ctx)
		require.NoError(t, err)
		assert.Equal(t, HealthCritical, snap.Health)
		assert.True(t, clock.Now().Equal(snap.GeneratedAt))
	})
}

func TestHealthReporterWindowExcludesOldJobs(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()
		s, err := store.CreateSeries(ctx, SeriesSpec{Topic: "Go", Frequency: Daily()}, clock.Now())
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			runJob(t, store, clock, s.ID, true)
		}

		clock.Advance(25 * time.Hour)
		reporter := NewHealthReporter(store, DefaultHealthThresholds(), clock.Now)
		snap, err := reporter.Report(ctx)
		require.NoError(t, err)
		assert.Equal(t, HealthGood, snap.Health)
		assert.Zero(t, snap.WindowJobs)
		assert.Equal(t, 3, snap.JobsByStatus[JobFailed], "lifetime counts still include old jobs")
	})
}

func TestHealthReporterSetThresholds(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store, clock *fakeClock) {
		ctx := context.Background()
		s, err := store.CreateSeries(ctx, SeriesSpec{Topic: "Go", Frequency: Daily()}, clock.Now())
		require.NoError(t, err)
		runJob(t, store, clock, s.ID, true)
		clock.Advance(2 * time.Hour)

		reporter := NewHealthReporter(store, DefaultHealthThresholds(), clock.Now)
		snap, err := reporter.Report(ctx)
		require.NoError(t, err)
		assert.Equal(t, HealthCritical, snap.Health)

		th := DefaultHealthThresholds()
		th.Window = time.Hour
		reporter.SetThresholds(th)
		assert.Equal(t, time.Hour, reporter.Thresholds().Window)

		snap, err = reporter.Report(ctx)
		require.NoError(t, err)
		assert.Equal(t, HealthGood, snap.Health)
	})
}
