// Package budget caps model spend over sliding windows (the last 24 hours and
// the last 30 days) so a runaway series cannot exhaust the provider account.
package budget

import (
	"context"
	"sync"
	"time"

	"github.com/itgyani/blogpulse/errors"
)

// Sliding windows. A sliding day cannot be gamed at midnight.
const (
	DailyWindow   = 24 * time.Hour
	MonthlyWindow = 30 * 24 * time.Hour
)

// ErrExceeded marks a rejected call
var ErrExceeded = errors.New("budget exceeded")

// Config holds the limits in USD. Zero means unlimited.
type Config struct {
	DailyUSD   float64 `json:"daily_usd"`
	MonthlyUSD float64 `json:"monthly_usd"`
}

// Validate rejects negative limits
func (c Config) Validate() error {
	if c.DailyUSD < 0 || c.MonthlyUSD < 0 {
		return errors.NewValidationError("budgets cannot be negative (daily %.2f, monthly %.2f)", c.DailyUSD, c.MonthlyUSD)
	}
	return nil
}

// SpendSource sums successful spend since a point in time (*tracker.UsageTracker)
type SpendSource interface {
	Spend(ctx context.Context, since time.Time) (cost float64, ops int, err error)
}

// Status is spend against the limits. Remaining is negative once over;
// it is meaningless when the matching limit is zero.
type Status struct {
	Limits           Config  `json:"limits"`
	DailySpend       float64 `json:"daily_spend"`
	MonthlySpend     float64 `json:"monthly_spend"`
	DailyRemaining   float64 `json:"daily_remaining"`
	MonthlyRemaining float64 `json:"monthly_remaining"`
	DailyOps         int     `json:"daily_ops"`
	MonthlyOps       int     `json:"monthly_ops"`
}

// Tracker enforces Config against a SpendSource
type Tracker struct {
	spend SpendSource
	clock func() time.Time

	mu     sync.RWMutex
	config Config
}

// NewTracker creates a tracker. A nil clock means time.Now.
func NewTracker(spend SpendSource, config Config, clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{spend: spend, config: config, clock: clock}
}

// Limits returns the limits in force
func (bt *Tracker) Limits() Config {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return bt.config
}

// UpdateLimits swaps the limits (config hot reload)
func (bt *Tracker) UpdateLimits(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	bt.mu.Lock()
	bt.config = config
	bt.mu.Unlock()
	return nil
}

// GetStatus reads spend over both windows
func (bt *Tracker) GetStatus(ctx context.Context) (*Status, error) {
	now := bt.clock()
	dailySpend, dailyOps, err := bt.spend.Spend(ctx, now.Add(-DailyWindow))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get daily spend")
	}
	monthlySpend, monthlyOps, err := bt.spend.Spend(ctx, now.Add(-MonthlyWindow))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get monthly spend")
	}

	limits := bt.Limits()
	return &Status{
		Limits:           limits,
		DailySpend:       dailySpend,
		MonthlySpend:     monthlySpend,
		DailyRemaining:   limits.DailyUSD - dailySpend,
		MonthlyRemaining: limits.MonthlyUSD - monthlySpend,
		DailyOps:         dailyOps,
		MonthlyOps:       monthlyOps,
	}, nil
}

// CheckBudget returns an ErrExceeded error when either window is spent.
// With no limits set it does not query at all.
func (bt *Tracker) CheckBudget(ctx context.Context) error {
	limits := bt.Limits()
	if limits.DailyUSD == 0 && limits.MonthlyUSD == 0 {
		return nil
	}

	status, err := bt.GetStatus(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get budget status")
	}

	if limits.DailyUSD > 0 && status.DailySpend >= limits.DailyUSD {
		return errors.WithHint(
			errors.Mark(errors.Newf("daily budget spent: $%.3f of $%.2f in the last 24h", status.DailySpend, limits.DailyUSD), ErrExceeded),
			"raise pulse.daily_budget_usd or wait for older calls to leave the window")
	}
	if limits.MonthlyUSD > 0 && status.MonthlySpend >= limits.MonthlyUSD {
		return errors.WithHint(
			errors.Mark(errors.Newf("monthly budget spent: $%.3f of $%.2f in the last 30 days", status.MonthlySpend, limits.MonthlyUSD), ErrExceeded),
			"raise pulse.monthly_budget_usd")
	}
	return nil
}

// IsExceeded reports whether err came from CheckBudget rejecting a call
func IsExceeded(err error) bool {
	return errors.Is(err, ErrExceeded)
}
