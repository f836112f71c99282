package server

import (
	"net/http"

	"github.com/itgyani/blogpulse/logger"
	"github.com/itgyani/blogpulse/pulse/schedule"
)

// SeriesListResponse is returned by GET /api/series
type SeriesListResponse struct {
	Series []*schedule.Series `json:"series"`
	Count  int                `json:"count"`
}

// JobListResponse is returned by GET /api/series/{id}/jobs
type JobListResponse struct {
	SeriesID string                    `json:"series_id"`
	Jobs     []*schedule.GenerationJob `json:"jobs"`
	Count    int                       `json:"count"`
}

// handleListSeries handles GET /api/series?status=active|paused|cancelled
func (s *Server) handleListSeries(w http.ResponseWriter, r *http.Request) {
	var filter *schedule.SeriesStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := schedule.ParseSeriesStatus(raw)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		filter = &status
	}

	series, err := s.scheduler.ListSeries(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if series == nil {
		series = []*schedule.Series{}
	}
	writeJSON(w, http.StatusOK, SeriesListResponse{Series: series, Count: len(series)})
}

// handleCreateSeries handles POST /api/series with a SeriesSpec body
func (s *Server) handleCreateSeries(w http.ResponseWriter, r *http.Request) {
	var spec schedule.SeriesSpec
	if err := readJSON(w, r, &spec); err != nil {
		return
	}

	series, err := s.scheduler.CreateSeries(r.Context(), spec)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	logger.AddPulseSymbol(s.logger).Infow("Series created via API",
		logger.FieldSeriesID, shortID(series.ID),
		logger.FieldTopic, series.Topic)
	writeJSON(w, http.StatusCreated, series)
}

// handleGetSeries handles GET /api/series/{id}
func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	series, err := s.scheduler.GetSeries(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// handleCancelSeries handles DELETE /api/series/{id}. Cancelling twice succeeds.
func (s *Server) handleCancelSeries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.scheduler.CancelSeries(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeSeries(w, r, id)
}

// handlePauseSeries handles POST /api/series/{id}/pause
func (s *Server) handlePauseSeries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.scheduler.PauseSeries(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeSeries(w, r, id)
}

// handleResumeSeries handles POST /api/series/{id}/resume
func (s *Server) handleResumeSeries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.scheduler.ResumeSeries(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeSeries(w, r, id)
}

// writeSeries answers a state change with the series as stored afterwards
func (s *Server) writeSeries(w http.ResponseWriter, r *http.Request, id string) {
	series, err := s.scheduler.GetSeries(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// handleListJobs handles GET /api/series/{id}/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.scheduler.GetSeries(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	jobs, err := s.scheduler.ListJobs(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*schedule.GenerationJob{}
	}
	writeJSON(w, http.StatusOK, JobListResponse{SeriesID: id, Jobs: jobs, Count: len(jobs)})
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.health.Report(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.GetStats())
}

// handleTick handles POST /api/tick. Dispatched jobs keep running after the response.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	report, err := s.scheduler.Tick(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	logger.AddPulseSymbol(s.logger).Infow("Manual tick",
		"due", report.Due,
		"dispatched", report.Dispatched,
		"skipped", report.Skipped)
	writeJSON(w, http.StatusOK, report)
}
