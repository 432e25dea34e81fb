package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/flagdesk/internal/config"
	"github.com/patrickwarner/flagdesk/internal/models"
	"github.com/patrickwarner/flagdesk/internal/token"
)

func decodeFlags(t *testing.T, body []byte) []models.FlaggedItem {
	t.Helper()
	var items []models.FlaggedItem
	require.NoError(t, json.Unmarshal(body, &items))
	return items
}

func decodeMessage(t *testing.T, body []byte) string {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(body, &e))
	return e.Message
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/Conversations/flagged", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "authorization header required", decodeMessage(t, rr.Body.Bytes()))

	rr = env.do(t, "GET", "/api/Conversations/flagged", nil, "", "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	expired, err := token.Generate(testAdmin, []byte(testSecret), -time.Minute)
	require.NoError(t, err)
	rr = env.do(t, "GET", "/api/Conversations/flagged", nil, "", "Authorization", "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, decodeMessage(t, rr.Body.Bytes()), "expired")

	rr = env.do(t, "GET", "/api/Conversations/flagged", &testStudent, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testLin, `{"facultyId":7}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestListFlaggedFilters(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/Conversations/flagged", &testAdmin, "")
	require.Equal(t, http.StatusOK, rr.Code)
	items := decodeFlags(t, rr.Body.Bytes())
	require.Len(t, items, 2)
	assert.Equal(t, 42, items[0].ID, "newest first")

	rr = env.do(t, "GET", "/api/Conversations/flagged?status=in_progress", &testAdmin, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = env.do(t, "GET", "/api/Conversations/flagged?status=archived", &testAdmin, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeMessage(t, rr.Body.Bytes()), "archived")
}

func TestGetFlagged(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/Conversations/flagged/42", &testLin, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var f models.FlaggedItem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &f))
	assert.Equal(t, models.StatusPending, f.Status)
	assert.Equal(t, models.MessageMetadata{FlaggedByID: testStudent.ID}, f.Metadata)

	rr = env.do(t, "GET", "/api/Conversations/flagged/999", &testLin, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "flag not found", decodeMessage(t, rr.Body.Bytes()))
}

func TestMessageContextWindow(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/Conversations/100/context-for-message/4", &testLin, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var mc models.MessageContext
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &mc))
	assert.Equal(t, 4, mc.Flagged.ID)
	assert.Len(t, mc.Before, 2, "configured default window")
	assert.Len(t, mc.After, 2)

	rr = env.do(t, "GET", "/api/Conversations/100/context-for-message/4?windowSize=1", &testLin, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &mc))
	assert.Len(t, mc.Before, 1)

	rr = env.do(t, "GET", "/api/Conversations/100/context-for-message/99", &testLin, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = env.do(t, "GET", "/api/Conversations/555/context-for-message/4", &testLin, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = env.do(t, "GET", "/api/Conversations/100/context-for-message/4?windowSize=-1", &testLin, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAssignFlag(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testAdmin, `{"facultyId":7}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var f models.FlaggedItem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &f))
	assert.Equal(t, models.StatusAssigned, f.Status)
	assert.Equal(t, "Dr. Lin", f.AssigneeName())
	assert.Equal(t, 2, f.Version)
	assert.Equal(t, 1, env.metrics.Count("transition", "assign/ok"))

	// reassignment keeps the flag Assigned
	rr = env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testAdmin, `{"facultyId":8}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &f))
	assert.Equal(t, "Dr. Okafor", f.AssigneeName())
	assert.Equal(t, models.StatusAssigned, f.Status)

	events := env.analytics.Recorded()
	require.Len(t, events, 2)
	assert.Equal(t, "assign", events[0].Action)
	assert.NotEmpty(t, events[0].RequestID)
}

func TestAssignFlagRejectsNonFaculty(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{`{"facultyId":3}`, `{"facultyId":2}`, `{"facultyId":404}`} {
		rr := env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testAdmin, body)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, body)
	}
	rr := env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testAdmin, `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testAdmin, `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	f, err := env.store.GetFlag(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, f.Status)
}

func TestAssignFlagVersionCheck(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testAdmin, `{"facultyId":7}`, "If-Match", "5")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, 1, env.metrics.Count("transition", "assign/conflict"))

	rr = env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testAdmin, `{"facultyId":7}`, "If-Match", `"1"`)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testAdmin, `{"facultyId":7}`, "If-Match", "abc")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestResolveRequiresAssignment(t *testing.T) {
	env := newTestEnv(t)

	body := `{"knowledgeGapFix":"{\"type\":\"feedback\",\"feedback\":\"ok\"}","studentNotification":"ok"}`
	rr := env.do(t, "POST", "/api/Conversations/flagged/41/resolve", &testLin, body)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, 1, env.metrics.Count("transition", "resolve/invalid"))
}

func TestResolveDirectWhenAllowed(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.AllowDirectResolve = true })

	body := `{"knowledgeGapFix":"plain note","studentNotification":""}`
	rr := env.do(t, "POST", "/api/Conversations/flagged/41/resolve", &testLin, body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var f models.FlaggedItem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &f))
	assert.Equal(t, models.StatusResolved, f.Status)
	assert.Equal(t, "Dr. Lin", f.AssigneeName())
}

func TestResolveFlag(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testAdmin, `{"facultyId":7}`).Code)

	body := `{"knowledgeGapFix":"{\"type\":\"feedback\",\"feedback\":\"Thanks\",\"correctedResponse\":null}","studentNotification":"Thanks"}`

	rr := env.do(t, "POST", "/api/Conversations/flagged/42/resolve", &testOkafor, body)
	assert.Equal(t, http.StatusForbidden, rr.Code, "only the assignee may resolve")

	rr = env.do(t, "POST", "/api/Conversations/flagged/42/resolve", &testLin, `{"knowledgeGapFix":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, "POST", "/api/Conversations/flagged/42/resolve", &testLin, body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var f models.FlaggedItem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &f))
	assert.Equal(t, models.StatusResolved, f.Status)
	require.NotNil(t, f.ResolvedByName)
	assert.Equal(t, "Dr. Lin", *f.ResolvedByName)
	require.NotNil(t, f.ResolvedAt)

	// resolved flags are terminal
	rr = env.do(t, "POST", "/api/Conversations/flagged/42/resolve", &testLin, body)
	assert.Equal(t, http.StatusConflict, rr.Code)
	rr = env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testAdmin, `{"facultyId":8}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	stored, err := env.store.ListNotifications(context.Background(), testStudent.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Thanks", stored[0].Text)
	assert.Equal(t, 1, env.metrics.Notified)

	inbox, err := env.redis.List("notifications:user:3")
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}

func TestAssignedToMe(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/Conversations/flagged/41/assign", &testAdmin, `{"facultyId":7}`).Code)

	rr := env.do(t, "GET", "/api/Conversations/assigned-to-me", &testLin, "")
	require.Equal(t, http.StatusOK, rr.Code)
	items := decodeFlags(t, rr.Body.Bytes())
	require.Len(t, items, 1)
	assert.Equal(t, 41, items[0].ID)

	rr = env.do(t, "GET", "/api/Conversations/assigned-to-me", &testOkafor, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestListUsersByRole(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/Users?role=faculty", &testAdmin, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var users []models.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &users))
	require.Len(t, users, 2, "role match is exact")
	assert.Equal(t, "Dr. Lin", users[0].Name)
}

func TestQuizRoutes(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/Quizzes/1", &testLin, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var q models.Quiz
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &q))
	assert.Equal(t, "Derivatives", q.Title)

	rr = env.do(t, "GET", "/api/Quizzes/attempts/1", &testLin, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, "GET", "/api/Quizzes/attempts/9", &testLin, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListNotificationsFallsBackToStore(t *testing.T) {
	env := newTestEnv(t)
	n := models.StudentNotification{FlagID: 41, UserID: testStudent.ID, Text: "from store"}
	require.NoError(t, env.store.InsertNotification(context.Background(), n))

	rr := env.do(t, "GET", "/api/Notifications", &testStudent, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var ns []models.StudentNotification
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ns))
	require.Len(t, ns, 1)
	assert.Equal(t, "from store", ns[0].Text)

	require.NoError(t, env.srv.Redis.PushNotification(context.Background(), models.StudentNotification{FlagID: 42, UserID: testStudent.ID, Text: "from inbox"}))
	rr = env.do(t, "GET", "/api/Notifications", &testStudent, "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ns))
	require.Len(t, ns, 1)
	assert.Equal(t, "from inbox", ns[0].Text)
}

func TestFlagActivity(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testAdmin, `{"facultyId":7}`).Code)
	require.Equal(t, http.StatusConflict, env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testAdmin, `{"facultyId":7}`, "If-Match", "1").Code)

	rr := env.do(t, "GET", "/api/Reports/flag-activity?since=1000000h", &testAdmin, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var counts []models.ActionCount
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &counts))
	assert.Equal(t, []models.ActionCount{
		{Action: "assign", Outcome: "conflict", Count: 1},
		{Action: "assign", Outcome: "ok", Count: 1},
	}, counts)

	rr = env.do(t, "GET", "/api/Reports/flag-activity?since=yesterday", &testAdmin, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequestMetricsUseRouteTemplate(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "GET", "/api/Conversations/flagged/42", &testAdmin, "")
	env.do(t, "GET", "/api/Conversations/flagged/41", &testAdmin, "")
	assert.Equal(t, 2, env.metrics.Count("request", "GET /api/Conversations/flagged/{id:[0-9]+} 200"))
}

func TestPublishesFlagUpdates(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	updates, err := env.srv.Redis.SubscribeFlagUpdates(ctx, "flag_updates", env.srv.Logger)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testAdmin, `{"facultyId":7}`).Code)
	select {
	case u := <-updates:
		assert.Equal(t, 42, u.FlagID)
		assert.Equal(t, "assign", u.Action)
		assert.Equal(t, "assigned", u.Status)
		assert.Equal(t, 2, u.Version)
	case <-ctx.Done():
		t.Fatal("no update published")
	}
}

func TestMutationsAreRateLimitedPerUser(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimitEnabled = true
		c.RateLimitBurst = 2
		c.RateLimitPerSecond = 0
	})

	for i := 0; i < 2; i++ {
		rr := env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testAdmin, `{"facultyId":7}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
	rr := env.do(t, "POST", "/api/Conversations/flagged/42/assign", &testAdmin, `{"facultyId":8}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Equal(t, 1, env.metrics.Count("ratelimit", "mutations"))

	// reads are not limited and other users keep their own budget
	rr = env.do(t, "GET", "/api/Conversations/flagged", &testAdmin, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(t, "POST", "/api/Conversations/flagged/42/resolve", &testLin, `{"knowledgeGapFix":"fixed","studentNotification":"thanks"}`)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}
