package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/analytics"
	"github.com/patrickwarner/flagdesk/internal/config"
	"github.com/patrickwarner/flagdesk/internal/db"
	"github.com/patrickwarner/flagdesk/internal/middleware"
	"github.com/patrickwarner/flagdesk/internal/models"
	"github.com/patrickwarner/flagdesk/internal/observability"
	"github.com/patrickwarner/flagdesk/internal/ratelimit"
)

// maxContextWindow caps windowSize on the context route.
const maxContextWindow = 50

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger      *zap.Logger
	Store       models.FlagStore
	Redis       *db.RedisStore
	Analytics   analytics.AnalyticsService
	Metrics     observability.MetricsRegistry
	Config      config.Config
	TokenSecret []byte
	// Limiter throttles assign and resolve calls per user.
	Limiter     *ratelimit.KeyedLimiter
	now         func() time.Time
}

// NewServer constructs a Server. redis and analytics may be nil.
func NewServer(logger *zap.Logger, store models.FlagStore, redis *db.RedisStore, analyticsSvc analytics.AnalyticsService, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	limiter := ratelimit.NewKeyedLimiter("mutations", ratelimit.Config{
		Capacity:   cfg.RateLimitBurst,
		RefillRate: cfg.RateLimitPerSecond,
		Enabled:    cfg.RateLimitEnabled,
	}, metrics)
	return &Server{
		Logger:      logger,
		Store:       store,
		Redis:       redis,
		Analytics:   analyticsSvc,
		Metrics:     metrics,
		Config:      cfg,
		TokenSecret: []byte(cfg.TokenSecret),
		Limiter:     limiter,
		now:         time.Now,
	}
}

// Router wires every route on a gorilla/mux router. The whole router is wrapped in
// otelhttp so each request gets a server span.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.WithTraceLogger(s.Logger), middleware.Metrics(s.Metrics))

	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	staff := []string{models.RoleAdmin, models.RoleFaculty}
	admin := []string{models.RoleAdmin}
	anyone := []string{models.RoleAdmin, models.RoleFaculty, models.RoleStudent}

	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/Conversations/flagged", s.requireRole(staff, s.ListFlagged)).Methods("GET")
	api.Handle("/Conversations/flagged/{id:[0-9]+}", s.requireRole(staff, s.GetFlagged)).Methods("GET")
	api.Handle("/Conversations/flagged/{id:[0-9]+}/assign", s.requireRole(admin, s.limited(s.AssignFlag))).Methods("POST")
	api.Handle("/Conversations/flagged/{id:[0-9]+}/resolve", s.requireRole(staff, s.limited(s.ResolveFlag))).Methods("POST")
	api.Handle("/Conversations/assigned-to-me", s.requireRole(staff, s.AssignedToMe)).Methods("GET")
	api.Handle("/Conversations/{conversationId:[0-9]+}/context-for-message/{messageId:[0-9]+}", s.requireRole(staff, s.MessageContext)).Methods("GET")
	api.Handle("/Users", s.requireRole(admin, s.ListUsers)).Methods("GET")
	api.Handle("/Quizzes/{id:[0-9]+}", s.requireRole(staff, s.GetQuiz)).Methods("GET")
	api.Handle("/Quizzes/attempts/{id:[0-9]+}", s.requireRole(staff, s.GetQuizAttempt)).Methods("GET")
	api.Handle("/Notifications", s.requireRole(anyone, s.ListNotifications)).Methods("GET")
	api.Handle("/Reports/flag-activity", s.requireRole(admin, s.FlagActivity)).Methods("GET")

	return otelhttp.NewHandler(r, s.Config.ServiceName)
}

// helper function to write JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Message string `json:"message"`
}

// writeError sends the {message} body REST clients show instead of status text.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Message: msg})
}

// storeError maps store errors to HTTP responses. Unexpected errors are logged
// and reported as 500 without detail.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, models.ErrVersionMismatch):
		writeError(w, http.StatusConflict, "flag was modified by someone else; reload and try again")
	case errors.Is(err, models.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		middleware.LoggerFromRequest(r, s.Logger).Error("store error", zap.String("entity", what), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) notifyUpdate(ctx context.Context, f *models.FlaggedItem, action string, actorID int) {
	if s.Redis == nil || s.Redis.Client == nil {
		s.Logger.Debug("redis store not available, skipping update notification")
		return
	}
	u := db.FlagUpdate{
		FlagID:  f.ID,
		Action:  action,
		Status:  f.Status.WireValue(),
		Version: f.Version,
		ActorID: actorID,
		At:      s.now().UTC(),
	}
	if err := s.Redis.PublishFlagUpdate(ctx, s.Config.RedisChannel, u); err != nil {
		s.Metrics.IncrementPublishErrors("redis")
		s.Logger.Error("failed to publish update message", zap.Error(err))
	}
}

// recordEvent writes the lifecycle event to analytics. Failures are logged and
// never fail the request.
func (s *Server) recordEvent(ctx context.Context, ev analytics.FlagEvent) {
	s.Metrics.IncrementFlagTransitions(ev.Action, ev.Outcome)
	if s.Analytics == nil {
		return
	}
	ev.RequestID = middleware.RequestIDFromContext(ctx)
	if err := s.Analytics.RecordFlagEvent(ctx, ev); err != nil && !errors.Is(err, analytics.ErrUnavailable) {
		s.Logger.Warn("record flag event", zap.String("action", ev.Action), zap.Error(err))
	}
}

// refreshBacklog recomputes the per-status gauge after a transition.
func (s *Server) refreshBacklog(ctx context.Context) {
	items, err := s.Store.ListFlags(ctx, nil)
	if err != nil {
		s.Logger.Warn("refresh backlog gauge", zap.Error(err))
		return
	}
	counts := map[models.Status]int{
		models.StatusPending:  0,
		models.StatusAssigned: 0,
		models.StatusResolved: 0,
	}
	for _, f := range items {
		counts[f.Status]++
	}
	for st, n := range counts {
		s.Metrics.SetFlagBacklog(st.WireValue(), n)
	}
}
