package schedule

import (
	"strings"
	"time"

	"github.com/itgyani/blogpulse/errors"
)

// SeriesStatus is the lifecycle state of a recurring series
type SeriesStatus string

const (
	SeriesActive    SeriesStatus = "active"
	SeriesPaused    SeriesStatus = "paused"
	SeriesCancelled SeriesStatus = "cancelled" // terminal
)

// ParseSeriesStatus validates a status filter value
func ParseSeriesStatus(s string) (SeriesStatus, error) {
	switch status := SeriesStatus(strings.ToLower(strings.TrimSpace(s))); status {
	case SeriesActive, SeriesPaused, SeriesCancelled:
		return status, nil
	default:
		return "", errors.NewValidationError("unknown series status %q", s)
	}
}

// SeriesSpec is what a caller declares when registering a series
type SeriesSpec struct {
	Topic          string          `json:"topic"`
	Category       string          `json:"category,omitempty"`
	Frequency      FrequencyPolicy `json:"frequency"`
	Keywords       []string        `json:"keywords,omitempty"`
	Tone           string          `json:"tone,omitempty"`
	Audience       string          `json:"audience,omitempty"`
	AutoPublish    bool            `json:"auto_publish"`
	GenerateImages bool            `json:"generate_images"`
	ImageCount     int             `json:"image_count,omitempty"`
	StartAt        *time.Time      `json:"start_at,omitempty"`
}

// Normalized returns a copy with trimmed text fields and the image count defaulted
func (s SeriesSpec) Normalized() SeriesSpec {
	out := s
	out.Topic = strings.TrimSpace(s.Topic)
	out.Category = strings.TrimSpace(s.Category)
	out.Tone = strings.TrimSpace(s.Tone)
	out.Audience = strings.TrimSpace(s.Audience)

	out.Keywords = nil
	for _, kw := range s.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			out.Keywords = append(out.Keywords, kw)
		}
	}

	switch {
	case !out.GenerateImages:
		out.ImageCount = 0
	case out.ImageCount <= 0:
		out.ImageCount = 1
	}

	out.StartAt = copyTime(s.StartAt)
	return out
}

// Validate rejects specs that can never produce a job
func (s SeriesSpec) Validate() error {
	if strings.TrimSpace(s.Topic) == "" {
		return errors.NewValidationError("topic cannot be empty")
	}
	if err := s.Frequency.Validate(); err != nil {
		return err
	}
	if s.ImageCount < 0 {
		return errors.NewValidationError("image_count must be >= 0, got %d", s.ImageCount)
	}
	return nil
}

// FirstDueAt is when a new series first becomes due.
// A start date is used as given, so a past one is due immediately.
// Without one the series waits a full period from now.
func FirstDueAt(spec SeriesSpec, now time.Time) time.Time {
	if spec.StartAt != nil {
		return *spec.StartAt
	}
	return NextDueAt(spec.Frequency, now)
}

// Series is a registered recurring generation series.
// Series are never deleted; cancellation is terminal.
type Series struct {
	ID string `json:"id"`
	SeriesSpec

	NextDueAt      time.Time    `json:"next_due_at"`
	Status         SeriesStatus `json:"status"`
	LastError      string       `json:"last_error,omitempty"`
	GeneratedCount int          `json:"generated_count"`
	FailedCount    int          `json:"failed_count"`
	LastRunAt      *time.Time   `json:"last_run_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// IsDue reports whether the series should run at asOf
func (s *Series) IsDue(asOf time.Time) bool {
	return s.Status == SeriesActive && !s.NextDueAt.After(asOf)
}

// Clone returns a deep copy
func (s *Series) Clone() *Series {
	out := *s
	out.Keywords = append([]string(nil), s.Keywords...)
	out.StartAt = copyTime(s.StartAt)
	out.LastRunAt = copyTime(s.LastRunAt)
	return &out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
