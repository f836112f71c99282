package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/itgyani/blogpulse/logger"
)

// Handler returns the routed API with CORS and request logging applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/series", s.handleListSeries)
	mux.HandleFunc("POST /api/series", s.handleCreateSeries)
	mux.HandleFunc("GET /api/series/{id}", s.handleGetSeries)
	mux.HandleFunc("DELETE /api/series/{id}", s.handleCancelSeries)
	mux.HandleFunc("POST /api/series/{id}/pause", s.handlePauseSeries)
	mux.HandleFunc("POST /api/series/{id}/resume", s.handleResumeSeries)
	mux.HandleFunc("GET /api/series/{id}/jobs", s.handleListJobs)

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/tick", s.handleTick)
	mux.HandleFunc("GET /api/usage", s.handleUsage)

	mux.HandleFunc("GET /api/posts", s.handleListPosts)
	mux.HandleFunc("GET /api/posts/{id}", s.handleGetPost)
	mux.HandleFunc("POST /api/posts/{id}/publish", s.handlePublishPost)
	mux.HandleFunc("GET /api/images/{id}", s.handleGetImage)

	mux.HandleFunc("GET /ws", s.HandleWebSocket)

	return s.corsMiddleware(s.logRequests(mux))
}

// corsMiddleware sets CORS headers for allowed origins and answers preflights
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkOrigin allows requests without an Origin header and origins matching a
// configured prefix, so any port on an allowed host is accepted.
// With no configuration only localhost is allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := s.allowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"http://localhost", "https://localhost", "http://127.0.0.1"}
	}
	for _, prefix := range allowed {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests logs API calls. The WebSocket route is skipped because the
// upgrade needs the raw ResponseWriter.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(logger.WithRequestID(r.Context(), requestID))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debugw("HTTP request",
			logger.FieldRequestID, requestID,
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, rec.status,
			logger.FieldDurationMS, time.Since(start).Milliseconds())
	})
}
