package server

import (
	"net/http"
	"strconv"

	"github.com/itgyani/blogpulse/blog"
	"github.com/itgyani/blogpulse/errors"
)

const defaultPostLimit = 50

// PostListResponse is returned by GET /api/posts
type PostListResponse struct {
	Posts []*blog.Post `json:"posts"`
	Count int          `json:"count"`
	Stats blog.Stats   `json:"stats"`
}

func (s *Server) requirePosts(w http.ResponseWriter, r *http.Request) bool {
	if s.posts == nil {
		s.writeServiceError(w, r, errors.Mark(errors.New("post store not configured"), errors.ErrServiceUnavailable))
		return false
	}
	return true
}

// handleListPosts handles GET /api/posts?status=draft|published&limit=N
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	if !s.requirePosts(w, r) {
		return
	}

	var filter *blog.Status
	switch raw := blog.Status(r.URL.Query().Get("status")); raw {
	case "":
	case blog.StatusDraft, blog.StatusPublished:
		filter = &raw
	default:
		writeError(w, http.StatusBadRequest, "status must be draft or published")
		return
	}

	limit := defaultPostLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	posts, err := s.posts.ListPosts(r.Context(), filter, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	stats, err := s.posts.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PostListResponse{Posts: posts, Count: len(posts), Stats: stats})
}

// handleGetPost handles GET /api/posts/{id}
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	if !s.requirePosts(w, r) {
		return
	}
	post, err := s.posts.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// handlePublishPost handles POST /api/posts/{id}/publish for drafts that were
// not auto-published
func (s *Server) handlePublishPost(w http.ResponseWriter, r *http.Request) {
	if !s.requirePosts(w, r) {
		return
	}
	id := r.PathValue("id")
	if err := s.posts.Publish(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	post, err := s.posts.GetPost(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// handleGetImage handles GET /api/images/{id} and serves the raw bytes
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	if !s.requirePosts(w, r) {
		return
	}
	img, err := s.posts.GetImage(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}
