package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/itgyani/blogpulse/ai/tracker"
	"github.com/itgyani/blogpulse/errors"
	"github.com/itgyani/blogpulse/pulse/budget"
)

const (
	defaultUsageHours = 24
	maxUsageHours     = 24 * 90
)

// UsageResponse is returned by GET /api/usage
type UsageResponse struct {
	WindowHours int                      `json:"window_hours"`
	Stats       *tracker.UsageStats      `json:"stats"`
	Models      []tracker.ModelBreakdown `json:"models"`
	Budget      *budget.Status           `json:"budget,omitempty"`
}

// handleUsage handles GET /api/usage?hours=N
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.writeServiceError(w, r, errors.Mark(errors.New("usage tracking not configured"), errors.ErrServiceUnavailable))
		return
	}

	hours := defaultUsageHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxUsageHours {
			writeError(w, http.StatusBadRequest, "hours must be an integer in 1..2160")
			return
		}
		hours = n
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	stats, err := s.usage.GetUsageStats(r.Context(), since)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	models, err := s.usage.GetModelBreakdown(r.Context(), since)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := UsageResponse{WindowHours: hours, Stats: stats, Models: models}
	if s.budget != nil {
		status, err := s.budget.GetStatus(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		resp.Budget = status
	}
	writeJSON(w, http.StatusOK, resp)
}
