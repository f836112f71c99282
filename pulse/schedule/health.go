package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/itgyani/blogpulse/errors"
)

// HealthThresholds configures queue health classification
type HealthThresholds struct {
	Window        time.Duration
	WarningRatio  float64 // ratio at or above this is a warning
	CriticalRatio float64 // ratio above this is critical
}

// DefaultHealthThresholds uses a 24h window, warning at 10% and critical above 50%
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		Window:        24 * time.Hour,
		WarningRatio:  0.10,
		CriticalRatio: 0.50,
	}
}

// ClassifyHealth maps failed/total to a status. No jobs means good.
func ClassifyHealth(failed, total int, th HealthThresholds) (float64, HealthStatus) {
	if total <= 0 {
		return 0, HealthGood
	}
	ratio := float64(failed) / float64(total)
	switch {
	case ratio > th.CriticalRatio:
		return ratio, HealthCritical
	case ratio >= th.WarningRatio:
		return ratio, HealthWarning
	default:
		return ratio, HealthGood
	}
}

// HealthReporter derives queue health from store aggregates. It never writes.
type HealthReporter struct {
	store Store
	clock Clock

	mu         sync.RWMutex
	thresholds HealthThresholds
}

// NewHealthReporter creates a reporter; a nil clock means time.Now
func NewHealthReporter(store Store, thresholds HealthThresholds, clock Clock) *HealthReporter {
	if clock == nil {
		clock = time.Now
	}
	return &HealthReporter{store: store, thresholds: thresholds, clock: clock}
}

// Report returns a snapshot with the failure ratio over the trailing window
func (h *HealthReporter) Report(ctx context.Context) (*QueueSnapshot, error) {
	th := h.Thresholds()
	now := h.clock()
	snap, err := h.store.Snapshot(ctx, now.Add(-th.Window))
	if err != nil {
		return nil, errors.Wrap(err, "failed to snapshot queue")
	}
	snap.FailureRatio, snap.Health = ClassifyHealth(snap.WindowFailed, snap.WindowJobs, th)
	snap.GeneratedAt = now
	return snap, nil
}

// Thresholds returns the thresholds in use
func (h *HealthReporter) Thresholds() HealthThresholds {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.thresholds
}

// SetThresholds replaces the thresholds used by later reports
func (h *HealthReporter) SetThresholds(th HealthThresholds) {
	h.mu.Lock()
	h.thresholds = th
	h.mu.Unlock()
}
