package api

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/client"
	"github.com/patrickwarner/flagdesk/internal/detail"
	"github.com/patrickwarner/flagdesk/internal/models"
	"github.com/patrickwarner/flagdesk/internal/views"
	"github.com/patrickwarner/flagdesk/internal/workflow"
)

// TestFlagLifecycleEndToEnd drives the REST client and workflows against the real
// router: an admin assigns flag 42 to Dr. Lin, who then resolves it with feedback.
func TestFlagLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()
	ctx := context.Background()

	adminAPI := client.New(ts.URL, client.StaticSession(mustToken(t, testAdmin)))
	facultyAPI := client.New(ts.URL, client.StaticSession(mustToken(t, testLin)))

	before, err := adminAPI.ListFlags(ctx, "pending")
	require.NoError(t, err)
	dash := views.NewAdminDashboard(before)
	assert.Equal(t, 2, dash.Counts.Pending)

	assigner := workflow.NewAssigner(adminAPI, zap.NewNop())
	roster, err := assigner.Faculty(ctx)
	require.NoError(t, err)
	require.Len(t, roster, 2)

	items, err := assigner.Assign(ctx, 42, 7)
	require.NoError(t, err)
	var assigned *models.FlaggedItem
	for i := range items {
		if items[i].ID == 42 {
			assigned = &items[i]
		}
	}
	require.NotNil(t, assigned, "re-fetched list contains the flag")
	assert.Equal(t, models.StatusAssigned, assigned.Status)
	assert.Equal(t, "Dr. Lin", assigned.AssigneeName())

	mine, err := facultyAPI.GetAssignedFlags(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	view, err := detail.NewRouter(facultyAPI, 2, zap.NewNop()).Route(ctx, 42)
	require.NoError(t, err)
	mv, ok := view.(detail.MessageView)
	require.True(t, ok)
	assert.False(t, mv.Unavailable)
	assert.Equal(t, 4, mv.Context.Flagged.ID)

	resolver := workflow.NewResolver(facultyAPI, zap.NewNop())
	res, err := resolver.Resolve(ctx, 42, workflow.ResolutionForm{
		Type:     models.ResolutionFeedback,
		Feedback: "Thanks, clarified in class",
	})
	require.NoError(t, err)
	assert.Equal(t, "Thanks, clarified in class", res.StudentNotification)

	resolved, err := facultyAPI.GetFlagByID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedByName)
	assert.Equal(t, "Dr. Lin", *resolved.ResolvedByName)
	payload := models.DecodeResolutionPayload(*resolved.ResolutionNotes)
	assert.Equal(t, models.ResolutionFeedback, payload.Type)
	assert.Nil(t, payload.CorrectedResponse)

	studentAPI := client.New(ts.URL, client.StaticSession(mustToken(t, testStudent)))
	notes, err := studentAPI.ListNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Thanks, clarified in class", notes[0].Text)

	// a second resolve is rejected by the server and surfaces as a conflict
	_, err = resolver.Resolve(ctx, 42, workflow.ResolutionForm{Type: models.ResolutionFeedback, Feedback: "again"})
	assert.True(t, client.IsConflict(err), "got %v", err)
}

func TestStaleVersionSurfacesAsConflict(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()
	ctx := context.Background()

	adminAPI := client.New(ts.URL, client.StaticSession(mustToken(t, testAdmin)))
	require.NoError(t, adminAPI.AssignFlag(ctx, 42, 7, client.IfVersion(1)))

	err := adminAPI.AssignFlag(ctx, 42, 8, client.IfVersion(1))
	require.Error(t, err)
	var conflict *client.ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = adminAPI.GetQuizAttempt(ctx, 77)
	assert.True(t, client.IsNotFound(err))
}
