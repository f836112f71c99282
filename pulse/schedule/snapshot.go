package schedule

import "time"

// HealthStatus classifies the recent failure ratio
type HealthStatus string

const (
	HealthGood     HealthStatus = "good"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// QueueSnapshot is an aggregate view of series and jobs.
// Stores fill the counts; HealthReporter fills the ratio, Health and GeneratedAt.
type QueueSnapshot struct {
	TotalSeries    int                  `json:"total_series"`
	SeriesByStatus map[SeriesStatus]int `json:"series_by_status"`
	JobsByStatus   map[JobStatus]int    `json:"jobs_by_status"`
	Published      int                  `json:"published"`
	NextDueAt      *time.Time           `json:"next_due_at,omitempty"`

	WindowStart  time.Time    `json:"window_start"`
	WindowJobs   int          `json:"window_jobs"`   // jobs completed (succeeded or failed) since WindowStart
	WindowFailed int          `json:"window_failed"` // failed jobs completed since WindowStart
	FailureRatio float64      `json:"failure_ratio"`
	Health       HealthStatus `json:"health"`
	GeneratedAt  time.Time    `json:"generated_at"`
}

func newSnapshot(windowStart time.Time) *QueueSnapshot {
	return &QueueSnapshot{
		SeriesByStatus: map[SeriesStatus]int{SeriesActive: 0, SeriesPaused: 0, SeriesCancelled: 0},
		JobsByStatus:   map[JobStatus]int{JobPending: 0, JobGenerating: 0, JobSucceeded: 0, JobFailed: 0},
		WindowStart:    windowStart,
	}
}
