package main

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/analytics"
	"github.com/patrickwarner/flagdesk/internal/api"
	"github.com/patrickwarner/flagdesk/internal/client"
	"github.com/patrickwarner/flagdesk/internal/config"
	"github.com/patrickwarner/flagdesk/internal/models"
	"github.com/patrickwarner/flagdesk/internal/observability"
	"github.com/patrickwarner/flagdesk/internal/token"
)

const secret = "mcp-test-secret"

var (
	admin   = models.User{ID: 1, Name: "Ada Admin", Role: models.RoleAdmin}
	student = models.User{ID: 3, Name: "Sam Student", Role: models.RoleStudent}
	lin     = models.User{ID: 7, Name: "Dr. Lin", Role: models.RoleFaculty}
)

func startAPI(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	store := models.NewTestFlagStore()
	for _, u := range []models.User{admin, student, lin} {
		u := u
		require.NoError(t, store.InsertUser(ctx, &u))
	}
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	q := models.Quiz{Title: "Limits", Questions: []models.QuizQuestion{
		{ID: 1, Prompt: "lim x->0 sin(x)/x", Options: []string{"0", "1"}, CorrectAnswer: "1"},
	}}
	require.NoError(t, store.InsertQuiz(ctx, &q))
	a := models.QuizAttempt{QuizID: q.ID, StudentName: student.Name, Answers: []models.AttemptAnswer{{QuestionID: 1, Answer: "0"}}}
	require.NoError(t, store.InsertQuizAttempt(ctx, &a))

	quiz := models.NewPendingFlag(10, "answer key looks wrong", student.Name, base)
	quiz.Type = models.FlagTypeQuiz
	quiz.Metadata = models.QuizMetadata{QuizID: q.ID, AttemptID: a.ID, FlaggedByID: student.ID}
	other := models.NewPendingFlag(11, "too terse", student.Name, base.Add(-time.Hour))
	for _, f := range []models.FlaggedItem{quiz, other} {
		f := f
		require.NoError(t, store.InsertFlag(ctx, &f))
	}

	srv := api.NewServer(zap.NewNop(), store, nil, analytics.NewMockAnalytics(), &observability.MockMetricsRegistry{},
		config.Config{TokenSecret: secret, ContextWindow: 2})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts.URL
}

func connect(t *testing.T, url string, as models.User) *mcp.ClientSession {
	t.Helper()
	tok, err := token.Generate(as, []byte(secret), time.Hour)
	require.NoError(t, err)
	server := newServer(client.New(url, client.StaticSession(tok)), 2, zap.NewNop())

	ctx := context.Background()
	st, ct := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	cs, err := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "0"}, nil).Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func call[T any](t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (T, *mcp.CallToolResult) {
	t.Helper()
	var out T
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if res.IsError {
		return out, res
	}
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out))
	return out, res
}

func TestToolsRegistered(t *testing.T) {
	cs := connect(t, startAPI(t), admin)
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"list_flags", "show_flag", "list_faculty", "assign_flag", "resolve_flag"}, names)
}

func TestListFlagsCountsBeforeFilter(t *testing.T) {
	cs := connect(t, startAPI(t), admin)
	out, res := call[ListFlagsOutput](t, cs, "list_flags", map[string]any{"status": "pending"})
	require.False(t, res.IsError)
	assert.Equal(t, 2, out.Counts.Pending)
	assert.Equal(t, 2, out.Counts.Total)
	require.Len(t, out.Flags, 2)
	assert.Equal(t, 10, out.Flags[0].ID, "newest first")
	assert.Equal(t, "Pending Review", out.Flags[0].Label)
}

func TestShowQuizFlag(t *testing.T) {
	cs := connect(t, startAPI(t), admin)
	out, res := call[ShowFlagOutput](t, cs, "show_flag", map[string]any{"flag_id": 10})
	require.False(t, res.IsError)
	assert.Equal(t, "quiz", out.Kind)
	assert.False(t, out.Unavailable)
	assert.Contains(t, out.Text, "0/1 correct")
}

func TestAssignThenResolve(t *testing.T) {
	url := startAPI(t)
	adm := connect(t, url, admin)

	fac, res := call[ListFacultyOutput](t, adm, "list_faculty", map[string]any{})
	require.False(t, res.IsError)
	require.Equal(t, []FacultyMember{{ID: 7, Name: "Dr. Lin"}}, fac.Faculty)

	assigned, res := call[AssignFlagOutput](t, adm, "assign_flag", map[string]any{"flag_id": 10, "faculty_id": 7, "version": 1})
	require.False(t, res.IsError)
	assert.Equal(t, "Flag #10 assigned", assigned.Message)

	_, res = call[AssignFlagOutput](t, adm, "assign_flag", map[string]any{"flag_id": 11, "faculty_id": 3})
	assert.True(t, res.IsError, "students are not in the faculty roster")

	facultySession := connect(t, url, lin)
	mine, res := call[ListFlagsOutput](t, facultySession, "list_flags", map[string]any{"mine": true})
	require.False(t, res.IsError)
	require.Len(t, mine.Flags, 1)
	assert.Equal(t, "Dr. Lin", mine.Flags[0].AssignedTo)

	resolved, res := call[ResolveFlagOutput](t, facultySession, "resolve_flag", map[string]any{
		"flag_id": 10, "feedback": "Answer key fixed", "corrected_response": "The limit is 1.",
	})
	require.False(t, res.IsError)
	assert.Equal(t, models.CorrectedNotification, resolved.StudentNotification)
	require.NotEmpty(t, resolved.Flags)
	var found bool
	for _, f := range resolved.Flags {
		if f.ID == 10 {
			found = true
			assert.Equal(t, "resolved", f.Status)
		}
	}
	assert.True(t, found, "resolved flag should be in the refreshed list")
}

func TestResolveRequiresFeedback(t *testing.T) {
	cs := connect(t, startAPI(t), lin)
	_, res := call[ResolveFlagOutput](t, cs, "resolve_flag", map[string]any{"flag_id": 10, "feedback": "  "})
	assert.True(t, res.IsError)
}
