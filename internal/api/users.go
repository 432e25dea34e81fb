package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/analytics"
	"github.com/patrickwarner/flagdesk/internal/models"
)

// ListUsers returns users, optionally filtered by ?role= (exact match).
func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.Store.ListUsers(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		s.storeError(w, r, err, "users")
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// GetQuiz returns a quiz with its questions.
func (s *Server) GetQuiz(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	q, err := s.Store.GetQuiz(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err, "quiz")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// GetQuizAttempt returns a student's submission.
func (s *Server) GetQuizAttempt(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	a, err := s.Store.GetQuizAttempt(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err, "quiz attempt")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListNotifications returns the caller's resolution notifications. The Redis
// inbox is read first; the store is the fallback when Redis is unavailable or
// empty.
func (s *Server) ListNotifications(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	if s.Redis != nil && s.Redis.Client != nil {
		ns, err := s.Redis.RecentNotifications(r.Context(), claims.UserID, 0)
		if err == nil && len(ns) > 0 {
			writeJSON(w, http.StatusOK, ns)
			return
		}
		if err != nil {
			s.Logger.Warn("read notification inbox", zap.Int("user_id", claims.UserID), zap.Error(err))
		}
	}
	ns, err := s.Store.ListNotifications(r.Context(), claims.UserID)
	if err != nil {
		s.storeError(w, r, err, "notifications")
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

// FlagActivity reports lifecycle action counts from analytics. ?since accepts a
// duration such as 24h and defaults to seven days.
func (s *Server) FlagActivity(w http.ResponseWriter, r *http.Request) {
	if s.Analytics == nil {
		writeError(w, http.StatusServiceUnavailable, "analytics unavailable")
		return
	}
	window := 7 * 24 * time.Hour
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "since must be a positive duration")
			return
		}
		window = d
	}
	counts, err := s.Analytics.ActionCounts(r.Context(), s.now().Add(-window))
	if errors.Is(err, analytics.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "analytics unavailable")
		return
	}
	if err != nil {
		s.storeError(w, r, err, "activity")
		return
	}
	if counts == nil {
		counts = []models.ActionCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}
