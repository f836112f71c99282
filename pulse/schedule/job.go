package schedule

import "time"

// JobStatus is the lifecycle state of a generation job
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobGenerating JobStatus = "generating"
	JobSucceeded  JobStatus = "succeeded"
	JobFailed     JobStatus = "failed"
)

// GenerationJob is one due occurrence of a series.
// A job is immutable once it reaches a terminal status, apart from the
// publish annotations recorded after success.
type GenerationJob struct {
	ID           string     `json:"id"`
	SeriesID     string     `json:"series_id"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	Status       JobStatus  `json:"status"`
	Attempts     int        `json:"attempts"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ResultRef    string     `json:"result_ref,omitempty"`
	ImageRefs    []string   `json:"image_refs,omitempty"`
	Error        string     `json:"error,omitempty"`
	Published    bool       `json:"published"`
	PublishError string     `json:"publish_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsTerminal reports whether the job finished
func (j *GenerationJob) IsTerminal() bool {
	return j.Status == JobSucceeded || j.Status == JobFailed
}

// Clone returns a deep copy
func (j *GenerationJob) Clone() *GenerationJob {
	out := *j
	out.ImageRefs = append([]string(nil), j.ImageRefs...)
	out.StartedAt = copyTime(j.StartedAt)
	out.CompletedAt = copyTime(j.CompletedAt)
	return &out
}

// JobResult is recorded on a job that succeeded
type JobResult struct {
	ContentRef string
	ImageRefs  []string
}
