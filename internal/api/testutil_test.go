package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/analytics"
	"github.com/patrickwarner/flagdesk/internal/config"
	"github.com/patrickwarner/flagdesk/internal/db"
	"github.com/patrickwarner/flagdesk/internal/models"
	"github.com/patrickwarner/flagdesk/internal/observability"
	"github.com/patrickwarner/flagdesk/internal/token"
)

const testSecret = "test-secret-key-that-is-long-enough"

var (
	testAdmin   = models.User{ID: 1, Name: "Ada Admin", Role: models.RoleAdmin}
	testStudent = models.User{ID: 3, Name: "Sam Student", Role: models.RoleStudent}
	testLin     = models.User{ID: 7, Name: "Dr. Lin", Role: models.RoleFaculty}
	testOkafor  = models.User{ID: 8, Name: "Dr. Okafor", Role: models.RoleFaculty}
)

type testEnv struct {
	srv       *Server
	store     *models.InMemoryFlagStore
	redis     *miniredis.Miniredis
	analytics *analytics.MockAnalytics
	metrics   *observability.MockMetricsRegistry
	handler   http.Handler
}

// newTestEnv builds a Server over a seeded in-memory store with a miniredis
// backed RedisStore and mock analytics.
func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rs := &db.RedisStore{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()}), Ctx: context.Background()}
	t.Cleanup(rs.Close)

	cfg := config.Config{
		TokenSecret:   testSecret,
		ContextWindow: 2,
		RedisChannel:  "flag_updates",
		ServiceName:   "flagdesk-test",
	}
	for _, m := range mutate {
		m(&cfg)
	}

	store := models.NewTestFlagStore()
	seedStore(t, store)
	mock := analytics.NewMockAnalytics()
	metrics := &observability.MockMetricsRegistry{}
	srv := NewServer(zap.NewNop(), store, rs, mock, metrics, cfg)
	srv.now = func() time.Time { return time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC) }
	return &testEnv{srv: srv, store: store, redis: mr, analytics: mock, metrics: metrics, handler: srv.Router()}
}

func seedStore(t *testing.T, store *models.InMemoryFlagStore) {
	t.Helper()
	ctx := context.Background()
	for _, u := range []models.User{testAdmin, {ID: 2, Name: "Fay", Role: "Faculty"}, testStudent, testLin, testOkafor} {
		u := u
		if err := store.InsertUser(ctx, &u); err != nil {
			t.Fatalf("insert user: %v", err)
		}
	}
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		m := models.Message{ConversationID: 100, Sender: "student", Content: "turn", SentAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.InsertMessage(ctx, &m); err != nil {
			t.Fatalf("insert message: %v", err)
		}
	}
	msg := models.NewPendingFlag(42, "tutor gave the wrong formula", testStudent.Name, base)
	msg.ConversationID = models.IntPtr(100)
	msg.MessageID = models.IntPtr(4)
	msg.Metadata = models.MessageMetadata{FlaggedByID: testStudent.ID}
	older := models.NewPendingFlag(41, "unclear explanation", testStudent.Name, base.Add(-time.Hour))
	for _, f := range []models.FlaggedItem{msg, older} {
		f := f
		if err := store.InsertFlag(ctx, &f); err != nil {
			t.Fatalf("insert flag: %v", err)
		}
	}
	q := models.Quiz{Title: "Derivatives", Questions: []models.QuizQuestion{{ID: 1, Prompt: "d/dx x^2", Options: []string{"x", "2x"}, CorrectAnswer: "2x"}}}
	if err := store.InsertQuiz(ctx, &q); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	a := models.QuizAttempt{QuizID: q.ID, StudentName: testStudent.Name, Answers: []models.AttemptAnswer{{QuestionID: 1, Answer: "x"}}}
	if err := store.InsertQuizAttempt(ctx, &a); err != nil {
		t.Fatalf("insert attempt: %v", err)
	}
}

func mustToken(t *testing.T, u models.User) string {
	t.Helper()
	tok, err := token.Generate(u, []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path string, as *models.User, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+mustToken(t, *as))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}
