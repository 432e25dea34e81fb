package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignFromPending(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f := NewPendingFlag(42, "incorrect explanation", "Sam", at)
	before := f

	require.NoError(t, f.Assign(7, "Dr. Lin"))

	assert.Equal(t, StatusAssigned, f.Status)
	assert.Equal(t, "Dr. Lin", f.AssigneeName())
	assert.Equal(t, before.ID, f.ID)
	assert.Equal(t, before.Reason, f.Reason)
	assert.Equal(t, before.FlaggedByName, f.FlaggedByName)
	assert.Equal(t, before.FlaggedAt, f.FlaggedAt)
	assert.Nil(t, f.ResolvedByName)
	assert.Nil(t, f.ResolvedAt)
	assert.Nil(t, f.ResolutionNotes)
	assert.Equal(t, before.Version+1, f.Version)
}

func TestReassign(t *testing.T) {
	f := NewPendingFlag(1, "r", "Sam", time.Now())
	require.NoError(t, f.Assign(7, "Dr. Lin"))
	require.NoError(t, f.Assign(8, "Prof. Ortiz"))
	assert.Equal(t, StatusAssigned, f.Status)
	assert.Equal(t, "Prof. Ortiz", f.AssigneeName())
	assert.Equal(t, 8, *f.AssignedToID)
}

func TestResolveRequiresAssignment(t *testing.T) {
	f := NewPendingFlag(1, "r", "Sam", time.Now())
	err := f.Resolve(7, "Dr. Lin", "notes", time.Now(), false)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	assert.Equal(t, StatusPending, f.Status)
	assert.Nil(t, f.ResolvedByName)
}

func TestResolveDirectFillsAssignee(t *testing.T) {
	f := NewPendingFlag(1, "r", "Sam", time.Now())
	require.NoError(t, f.Resolve(7, "Dr. Lin", "notes", time.Now(), true))
	assert.Equal(t, StatusResolved, f.Status)
	assert.Equal(t, "Dr. Lin", f.AssigneeName())
}

func TestResolvedIsTerminal(t *testing.T) {
	f := NewPendingFlag(1, "r", "Sam", time.Now())
	require.NoError(t, f.Assign(7, "Dr. Lin"))
	at := time.Date(2024, 3, 2, 10, 0, 0, 0, time.FixedZone("x", 3600))
	require.NoError(t, f.Resolve(7, "Dr. Lin", "done", at, false))
	assert.Equal(t, time.UTC, f.ResolvedAt.Location())

	assert.ErrorIs(t, f.Assign(8, "Prof. Ortiz"), ErrInvalidTransition)
	assert.ErrorIs(t, f.Resolve(7, "Dr. Lin", "again", time.Now(), true), ErrInvalidTransition)
	assert.Equal(t, "done", *f.ResolutionNotes)
	assert.Equal(t, "Dr. Lin", f.AssigneeName())
}

func TestFlaggedItemDecodesTypedMetadata(t *testing.T) {
	raw := `[
		{"id":3,"type":"quiz","reason":"wrong key","status":"IN_PROGRESS","flaggedByName":"Ana",
		 "flaggedAt":"2024-05-01T12:00:00Z","assignedToName":"Dr. Lin",
		 "metadata":{"quizId":11,"attemptId":5,"flaggedById":21}},
		{"id":4,"type":"mindmap","reason":"typo","status":"pending","flaggedByName":"Ana",
		 "flaggedAt":"2024-05-01T12:00:00Z","metadata":{"flaggedById":21,"nodeId":"n-4"}}
	]`
	var items []FlaggedItem
	require.NoError(t, json.Unmarshal([]byte(raw), &items))

	qm, ok := items[0].QuizMeta()
	require.True(t, ok)
	assert.Equal(t, QuizMetadata{QuizID: 11, AttemptID: 5, FlaggedByID: 21}, qm)
	assert.Equal(t, StatusAssigned, items[0].Status)

	cm, ok := items[1].Metadata.(ContentMetadata)
	require.True(t, ok)
	assert.Equal(t, 21, cm.FlaggedByID)
	assert.JSONEq(t, `"n-4"`, string(cm.Extra["nodeId"]))

	out, err := json.Marshal(items[1])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"nodeId":"n-4"`)
	assert.Contains(t, string(out), `"status":"pending"`)
}

func TestFlaggedItemRejectsUnknownStatus(t *testing.T) {
	var f FlaggedItem
	err := json.Unmarshal([]byte(`{"id":1,"type":"message","status":"archived"}`), &f)
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestPriorityDisplayDefaultsToMedium(t *testing.T) {
	assert.Equal(t, PriorityMedium, Priority("").Display())
	assert.Equal(t, PriorityHigh, Priority("high").Display())
	assert.Equal(t, PriorityLow, Priority(" LOW ").Display())
}

func TestWindow(t *testing.T) {
	var msgs []Message
	for i := 1; i <= 6; i++ {
		msgs = append(msgs, Message{ID: i, ConversationID: 9})
	}
	ctx, err := Window(9, 2, msgs, 3)
	require.NoError(t, err)
	assert.Len(t, ctx.Before, 1)
	assert.Equal(t, 2, ctx.Flagged.ID)
	assert.Len(t, ctx.After, 3)
	assert.Equal(t, 5, ctx.After[2].ID)

	_, err = Window(9, 99, msgs, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolutionPayloadNotification(t *testing.T) {
	fb := ResolutionPayload{Type: ResolutionFeedback, Feedback: "Good catch"}
	assert.Equal(t, "Good catch", fb.Notification())

	corrected := "The answer is X"
	cp := ResolutionPayload{Type: ResolutionCorrected, Feedback: "See below", CorrectedResponse: &corrected}
	assert.Equal(t, CorrectedNotification, cp.Notification())

	enc, err := cp.Encode()
	require.NoError(t, err)
	back := DecodeResolutionPayload(enc)
	require.NotNil(t, back.CorrectedResponse)
	assert.Equal(t, corrected, *back.CorrectedResponse)

	plain := DecodeResolutionPayload("legacy free text")
	assert.Equal(t, ResolutionFeedback, plain.Type)
	assert.Equal(t, "legacy free text", plain.Feedback)
}
