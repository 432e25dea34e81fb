package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/analytics"
	"github.com/patrickwarner/flagdesk/internal/middleware"
	"github.com/patrickwarner/flagdesk/internal/models"
)

var errAssignedElsewhere = errors.New("flag is assigned to another faculty member")

func pathInt(r *http.Request, name string) (int, error) {
	return strconv.Atoi(mux.Vars(r)[name])
}

// ifMatch returns the version the caller expects, or 0 when the header is absent.
// Quoted entity tags are accepted.
func ifMatch(r *http.Request) (int, error) {
	v := strings.Trim(strings.TrimSpace(r.Header.Get("If-Match")), `"`)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid If-Match %q", v)
	}
	return n, nil
}

// ListFlagged returns flags newest first. An unrecognized ?status is rejected.
func (s *Server) ListFlagged(w http.ResponseWriter, r *http.Request) {
	var filter *models.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := models.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
			return
		}
		filter = &st
	}
	items, err := s.Store.ListFlags(r.Context(), filter)
	if err != nil {
		s.storeError(w, r, err, "flags")
		return
	}
	if items == nil {
		items = []models.FlaggedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// GetFlagged returns one flag.
func (s *Server) GetFlagged(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	f, err := s.Store.GetFlag(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err, "flag")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// AssignedToMe returns the flags assigned to the calling faculty member.
func (s *Server) AssignedToMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	items, err := s.Store.ListAssignedTo(r.Context(), claims.UserID)
	if err != nil {
		s.storeError(w, r, err, "flags")
		return
	}
	if items == nil {
		items = []models.FlaggedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// MessageContext returns the surrounding messages of a flagged chat message.
func (s *Server) MessageContext(w http.ResponseWriter, r *http.Request) {
	convID, err := pathInt(r, "conversationId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	msgID, err := pathInt(r, "messageId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	size := s.Config.ContextWindow
	if raw := r.URL.Query().Get("windowSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "windowSize must be a non-negative integer")
			return
		}
		size = n
	}
	if size > maxContextWindow {
		size = maxContextWindow
	}

	msgs, err := s.Store.ListMessages(r.Context(), convID)
	if err != nil {
		s.storeError(w, r, err, "conversation")
		return
	}
	mc, err := models.Window(convID, msgID, msgs, size)
	if err != nil {
		s.storeError(w, r, err, "message")
		return
	}
	writeJSON(w, http.StatusOK, mc)
}

// AssignFlag routes a flag to a faculty member. Reassigning an Assigned flag is
// allowed; Resolved flags are rejected with 409.
func (s *Server) AssignFlag(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	claims, _ := ClaimsFromContext(r.Context())
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	expected, err := ifMatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req models.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.FacultyID <= 0 {
		writeError(w, http.StatusBadRequest, "facultyId is required")
		return
	}

	faculty, err := s.Store.GetUser(r.Context(), req.FacultyID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && faculty.Role != models.RoleFaculty) {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("user %d is not a faculty member", req.FacultyID))
		return
	}
	if err != nil {
		s.storeError(w, r, err, "user")
		return
	}

	updated, err := s.Store.UpdateFlag(r.Context(), id, expected, func(f *models.FlaggedItem) error {
		return f.Assign(faculty.ID, faculty.Name)
	})
	ev := analytics.FlagEvent{Action: "assign", FlagID: id, ActorID: claims.UserID, ActorRole: claims.Role}
	assignee := int32(faculty.ID)
	ev.AssigneeID = &assignee
	if err != nil {
		ev.Outcome = outcome(err)
		s.recordEvent(r.Context(), ev)
		s.storeError(w, r, err, "flag")
		return
	}
	ev.Outcome = "ok"
	ev.FlagType = string(updated.Type)
	ev.Status = updated.Status.WireValue()
	s.recordEvent(r.Context(), ev)

	logger.Info("flag assigned", zap.Int("flag_id", id), zap.Int("faculty_id", faculty.ID), zap.Int("version", updated.Version))
	s.notifyUpdate(r.Context(), updated, "assign", claims.UserID)
	s.refreshBacklog(r.Context())
	writeJSON(w, http.StatusOK, updated)
}

// ResolveFlag records the resolution and stores the student notification. Faculty
// may only resolve flags assigned to them; admins may resolve any open flag.
func (s *Server) ResolveFlag(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	claims, _ := ClaimsFromContext(r.Context())
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	expected, err := ifMatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var res models.Resolution
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(res.KnowledgeGapFix) == "" {
		writeError(w, http.StatusBadRequest, "knowledgeGapFix is required")
		return
	}

	updated, err := s.Store.UpdateFlag(r.Context(), id, expected, func(f *models.FlaggedItem) error {
		if claims.Role == models.RoleFaculty && f.AssignedToID != nil && *f.AssignedToID != claims.UserID {
			return errAssignedElsewhere
		}
		return f.Resolve(claims.UserID, claims.Name, res.KnowledgeGapFix, s.now(), s.Config.AllowDirectResolve)
	})
	payload := models.DecodeResolutionPayload(res.KnowledgeGapFix)
	resType := string(payload.Type)
	ev := analytics.FlagEvent{Action: "resolve", FlagID: id, ActorID: claims.UserID, ActorRole: claims.Role, ResolutionType: &resType}
	if err != nil {
		ev.Outcome = outcome(err)
		s.recordEvent(r.Context(), ev)
		if errors.Is(err, errAssignedElsewhere) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		s.storeError(w, r, err, "flag")
		return
	}
	ev.Outcome = "ok"
	ev.FlagType = string(updated.Type)
	ev.Status = updated.Status.WireValue()
	s.recordEvent(r.Context(), ev)
	logger.Info("flag resolved", zap.Int("flag_id", id), zap.Int("resolver_id", claims.UserID), zap.String("resolution_type", resType))

	text := res.StudentNotification
	if strings.TrimSpace(text) == "" {
		text = payload.Notification()
	}
	s.deliverNotification(r, updated, text)
	s.notifyUpdate(r.Context(), updated, "resolve", claims.UserID)
	s.refreshBacklog(r.Context())
	writeJSON(w, http.StatusOK, updated)
}

// deliverNotification stores the student message and pushes it to the Redis
// inbox. Flags without a known reporter are skipped.
func (s *Server) deliverNotification(r *http.Request, f *models.FlaggedItem, text string) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	studentID := reporterID(f.Metadata)
	if studentID == 0 || text == "" {
		logger.Debug("no reporter on flag, skipping notification", zap.Int("flag_id", f.ID))
		return
	}
	n := models.StudentNotification{FlagID: f.ID, UserID: studentID, Text: text, CreatedAt: s.now().UTC()}
	if err := s.Store.InsertNotification(r.Context(), n); err != nil {
		logger.Error("store notification", zap.Int("flag_id", f.ID), zap.Error(err))
		return
	}
	s.Metrics.IncrementNotifications()
	if s.Redis != nil && s.Redis.Client != nil {
		if err := s.Redis.PushNotification(r.Context(), n); err != nil {
			s.Metrics.IncrementPublishErrors("redis")
			logger.Warn("push notification", zap.Int("flag_id", f.ID), zap.Error(err))
		}
	}
}

func reporterID(m models.Metadata) int {
	switch v := m.(type) {
	case models.MessageMetadata:
		return v.FlaggedByID
	case models.QuizMetadata:
		return v.FlaggedByID
	case models.ContentMetadata:
		return v.FlaggedByID
	}
	return 0
}

func outcome(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrVersionMismatch):
		return "conflict"
	case errors.Is(err, models.ErrInvalidTransition):
		return "invalid"
	case errors.Is(err, errAssignedElsewhere):
		return "forbidden"
	}
	return "error"
}
