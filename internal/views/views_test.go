package views

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/flagdesk/internal/detail"
	"github.com/patrickwarner/flagdesk/internal/models"
)

func sample() []models.FlaggedItem {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lin := "Dr. Lin"
	return []models.FlaggedItem{
		{ID: 1, Type: models.FlagTypeMessage, Status: models.StatusPending, Reason: "a", FlaggedAt: base},
		{ID: 2, Type: models.FlagTypeQuiz, Status: models.StatusAssigned, Reason: "b", FlaggedAt: base.Add(time.Hour), AssignedToName: &lin},
		{ID: 3, Type: models.FlagTypeMessage, Status: models.StatusPending, Reason: "c", FlaggedAt: base.Add(2 * time.Hour)},
		{ID: 4, Type: models.FlagTypeMessage, Status: models.StatusResolved, Reason: "d", FlaggedAt: base.Add(-time.Hour), AssignedToName: &lin},
		{ID: 5, Type: models.FlagTypeMessage, Status: models.StatusPending, Reason: "e", FlaggedAt: base},
	}
}

func ids(items []models.FlaggedItem) []int {
	var out []int
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestFilterSortsNewestFirst(t *testing.T) {
	got := Filter(sample(), models.StatusPending)
	assert.Equal(t, []int{3, 5, 1}, ids(got))
	assert.Len(t, Filter(sample(), ""), 5)
}

func TestAdminDashboard(t *testing.T) {
	d := NewAdminDashboard(sample())
	assert.Equal(t, Counts{Pending: 3, Assigned: 1, Resolved: 1, Total: 5}, d.Counts)
	require.Len(t, d.Tabs, 3)
	assert.Equal(t, "Pending Review", d.Tabs[0].Label)
	tab, ok := d.Tab(models.StatusAssigned)
	require.True(t, ok)
	assert.Equal(t, []int{2}, ids(tab.Items))
}

func TestFacultyDashboard(t *testing.T) {
	items := sample()[1:4]
	d := NewFacultyDashboard(items)
	assert.Equal(t, []int{3, 2}, ids(d.Open))
	assert.Equal(t, []int{4}, ids(d.Resolved))
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderTable(&buf, sample()[:2]))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "Pending Review")
	assert.Contains(t, lines[2], "Dr. Lin")
	assert.Contains(t, lines[1], "Medium")
}

func TestRenderAdminMarksSelectedTab(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderAdmin(&buf, NewAdminDashboard(sample()), models.StatusResolved))
	first := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.Contains(t, first, "*Resolved (1)")
	assert.Contains(t, first, " Pending Review (3)")
}

func TestRenderDetailUnavailable(t *testing.T) {
	var buf bytes.Buffer
	v := detail.MessageView{Flag: sample()[0], Unavailable: true}
	require.NoError(t, RenderDetail(&buf, v))
	assert.Contains(t, buf.String(), "Content unavailable")
}

func TestRenderDetailResolvedShowsPayload(t *testing.T) {
	f := sample()[3]
	cr := "fixed answer"
	notes, err := models.ResolutionPayload{Type: models.ResolutionCorrected, Feedback: "see fix", CorrectedResponse: &cr}.Encode()
	require.NoError(t, err)
	f.ResolutionNotes = &notes
	by := "Dr. Lin"
	f.ResolvedByName = &by
	var buf bytes.Buffer
	require.NoError(t, RenderDetail(&buf, detail.UnsupportedView{Flag: f}))
	out := buf.String()
	assert.Contains(t, out, "see fix")
	assert.Contains(t, out, "fixed answer")
	assert.Contains(t, out, "cannot be displayed")
}
