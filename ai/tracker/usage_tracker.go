// Package tracker records every outbound model call in the ai_usage table and
// aggregates spend for reporting and budget enforcement.
package tracker

import (
	"context"
	"database/sql"
	"time"

	"github.com/itgyani/blogpulse/errors"
)

// Operations recorded by the content gateway
const (
	OperationDraft = "draft"
	OperationImage = "image"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ModelUsage is one model call
type ModelUsage struct {
	ID               int64         `json:"id"`
	Operation        string        `json:"operation"`
	SeriesID         string        `json:"series_id,omitempty"`
	JobID            string        `json:"job_id,omitempty"`
	Model            string        `json:"model"`
	Provider         string        `json:"provider"`
	RequestedAt      time.Time     `json:"requested_at"`
	Duration         time.Duration `json:"duration"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	Cost             float64       `json:"cost"`
	Success          bool          `json:"success"`
	Error            string        `json:"error,omitempty"`
}

// UsageStats aggregates usage since a point in time
type UsageStats struct {
	Since              time.Time `json:"since"`
	TotalRequests      int       `json:"total_requests"`
	SuccessfulRequests int       `json:"successful_requests"`
	SuccessRate        float64   `json:"success_rate"`
	TotalTokens        int       `json:"total_tokens"`
	TotalCost          float64   `json:"total_cost"`
	UniqueModels       int       `json:"unique_models"`
}

// ModelBreakdown is usage for one model
type ModelBreakdown struct {
	Model             string  `json:"model"`
	Provider          string  `json:"provider"`
	RequestCount      int     `json:"request_count"`
	TotalTokens       int     `json:"total_tokens"`
	TotalCost         float64 `json:"total_cost"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}

// UsageTracker reads and writes the ai_usage table
type UsageTracker struct {
	db    *sql.DB
	clock func() time.Time
}

// NewUsageTracker creates a tracker over a migrated database. A nil clock means time.Now.
func NewUsageTracker(db *sql.DB, clock func() time.Time) *UsageTracker {
	if clock == nil {
		clock = time.Now
	}
	return &UsageTracker{db: db, clock: clock}
}

// TrackUsage inserts u and sets its ID. A zero RequestedAt is stamped with the clock.
func (t *UsageTracker) TrackUsage(ctx context.Context, u *ModelUsage) error {
	if u.Operation == "" || u.Provider == "" {
		return errors.NewValidationError("usage needs an operation and a provider")
	}
	if u.RequestedAt.IsZero() {
		u.RequestedAt = t.clock()
	}

	res, err := t.db.ExecContext(ctx, `
		INSERT INTO ai_usage (
			operation, series_id, job_id, model, provider, requested_at, duration_ms,
			prompt_tokens, completion_tokens, cost, success, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Operation, u.SeriesID, u.JobID, u.Model, u.Provider,
		u.RequestedAt.UTC().Format(timeLayout), u.Duration.Milliseconds(),
		u.PromptTokens, u.CompletionTokens, u.Cost, u.Success, u.Error,
	)
	if err != nil {
		return errors.Wrap(err, "failed to record model usage")
	}
	if id, err := res.LastInsertId(); err == nil {
		u.ID = id
	}
	return nil
}

// GetUsageStats aggregates every call requested at or after since
func (t *UsageTracker) GetUsageStats(ctx context.Context, since time.Time) (*UsageStats, error) {
	stats := UsageStats{Since: since}
	err := t.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN success = 1 THEN 1 END),
			COALESCE(SUM(prompt_tokens + completion_tokens), 0),
			COALESCE(SUM(cost), 0),
			COUNT(DISTINCT CASE WHEN model != '' THEN model END)
		FROM ai_usage
		WHERE requested_at >= ?`, since.UTC().Format(timeLayout),
	).Scan(&stats.TotalRequests, &stats.SuccessfulRequests, &stats.TotalTokens, &stats.TotalCost, &stats.UniqueModels)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query usage stats")
	}
	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	}
	return &stats, nil
}

// GetModelBreakdown returns successful usage per model, most expensive first
func (t *UsageTracker) GetModelBreakdown(ctx context.Context, since time.Time) ([]ModelBreakdown, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT
			model,
			provider,
			COUNT(*),
			COALESCE(SUM(prompt_tokens + completion_tokens), 0),
			COALESCE(SUM(cost), 0),
			COALESCE(AVG(duration_ms), 0)
		FROM ai_usage
		WHERE requested_at >= ? AND success = 1
		GROUP BY model, provider
		ORDER BY SUM(cost) DESC, model ASC`, since.UTC().Format(timeLayout))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query model breakdown")
	}
	defer rows.Close()

	breakdown := []ModelBreakdown{}
	for rows.Next() {
		var mb ModelBreakdown
		if err := rows.Scan(&mb.Model, &mb.Provider, &mb.RequestCount,
			&mb.TotalTokens, &mb.TotalCost, &mb.AvgResponseTimeMs); err != nil {
			return nil, errors.Wrap(err, "failed to scan model breakdown")
		}
		breakdown = append(breakdown, mb)
	}
	return breakdown, rows.Err()
}

// Spend sums the cost of successful calls requested at or after since
func (t *UsageTracker) Spend(ctx context.Context, since time.Time) (float64, int, error) {
	var (
		cost float64
		ops  int
	)
	err := t.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost), 0), COUNT(*)
		FROM ai_usage
		WHERE requested_at >= ? AND success = 1`, since.UTC().Format(timeLayout),
	).Scan(&cost, &ops)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to query spend")
	}
	return cost, ops, nil
}
