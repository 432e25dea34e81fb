package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResolutionType tells whether faculty only left feedback or also supplied a
// corrected response.
type ResolutionType string

const (
	ResolutionFeedback  ResolutionType = "feedback"
	ResolutionCorrected ResolutionType = "corrected"
)

// CorrectedNotification is sent to the student when a corrected response was
// provided. Feedback-only resolutions send the feedback text itself.
const CorrectedNotification = "Your flagged content has been reviewed. A corrected response has been provided by your instructor."

// ResolutionPayload is the structured record stored in a flag's resolution notes.
type ResolutionPayload struct {
	Type              ResolutionType `json:"type"`
	Feedback          string         `json:"feedback"`
	CorrectedResponse *string        `json:"correctedResponse"`
	Timestamp         time.Time      `json:"timestamp"`
}

// Encode serializes the payload for the knowledgeGapFix request field.
func (p ResolutionPayload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode resolution payload: %w", err)
	}
	return string(b), nil
}

// Notification derives the student-facing message for the payload.
func (p ResolutionPayload) Notification() string {
	if p.Type == ResolutionCorrected {
		return CorrectedNotification
	}
	return p.Feedback
}

// DecodeResolutionPayload parses resolution notes written by Encode. Notes that are
// not a structured payload are returned as feedback-only text.
func DecodeResolutionPayload(notes string) ResolutionPayload {
	var p ResolutionPayload
	if err := json.Unmarshal([]byte(notes), &p); err != nil || p.Type == "" {
		return ResolutionPayload{Type: ResolutionFeedback, Feedback: notes}
	}
	return p
}

// Resolution is the body of a resolve request.
type Resolution struct {
	KnowledgeGapFix     string `json:"knowledgeGapFix"`
	StudentNotification string `json:"studentNotification"`
}

// AssignRequest is the body of an assign request.
type AssignRequest struct {
	FacultyID int `json:"facultyId"`
}

// StudentNotification is the message stored for the reporting student once a flag
// is resolved.
type StudentNotification struct {
	FlagID    int       `json:"flagId"`
	UserID    int       `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// ActionCount is one row of the flag activity report: how many lifecycle actions
// ended with a given outcome.
type ActionCount struct {
	Action  string `json:"action"`
	Outcome string `json:"outcome"`
	Count   uint64 `json:"count"`
}
