package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when an entity is not found in the data store
var ErrNotFound = errors.New("entity not found")

// ErrInvalidTransition is returned when a lifecycle action is not allowed from the
// flag's current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrVersionMismatch is returned when a conditional update was made against a stale
// version of a flag.
var ErrVersionMismatch = errors.New("flag version mismatch")

// FlagType identifies the kind of content a flag was raised against.
type FlagType string

const (
	FlagTypeMessage   FlagType = "message"
	FlagTypeQuiz      FlagType = "quiz"
	FlagTypeFlashcard FlagType = "flashcard"
	FlagTypeReport    FlagType = "report"
	FlagTypeMindmap   FlagType = "mindmap"
)

// Priority is a display-only hint and has no effect on the workflow.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Display returns the priority, defaulting to Medium when unset.
func (p Priority) Display() Priority {
	switch strings.ToLower(strings.TrimSpace(string(p))) {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	}
	return PriorityMedium
}

// Metadata carries the type-specific data of a flag. The concrete type is chosen
// by the flag's Type.
type Metadata interface {
	isMetadata()
}

// MessageMetadata is attached to flags raised against a chat message.
type MessageMetadata struct {
	FlaggedByID int `json:"flaggedById,omitempty"`
}

// QuizMetadata is attached to flags raised against a quiz attempt.
type QuizMetadata struct {
	QuizID      int `json:"quizId"`
	AttemptID   int `json:"attemptId,omitempty"`
	FlaggedByID int `json:"flaggedById,omitempty"`
}

// ContentMetadata covers flashcards, reports, mind maps and anything else the API
// may add. Keys other than flaggedById are kept verbatim in Extra.
type ContentMetadata struct {
	FlaggedByID int                        `json:"flaggedById,omitempty"`
	Extra       map[string]json.RawMessage `json:"-"`
}

func (MessageMetadata) isMetadata() {}
func (QuizMetadata) isMetadata()    {}
func (ContentMetadata) isMetadata() {}

// FlaggedItem is a report against a piece of tutoring content moving through the
// Pending, Assigned and Resolved states.
type FlaggedItem struct {
	ID              int        `json:"id"`
	Type            FlagType   `json:"type"`
	ContentID       *int       `json:"contentId,omitempty"`
	ConversationID  *int       `json:"conversationId,omitempty"`
	MessageID       *int       `json:"messageId,omitempty"`
	Reason          string     `json:"reason"`
	Status          Status     `json:"status"`
	Priority        Priority   `json:"priority,omitempty"`
	FlaggedByName   string     `json:"flaggedByName"`
	FlaggedAt       time.Time  `json:"flaggedAt"`
	AssignedToID    *int       `json:"assignedToId,omitempty"`
	AssignedToName  *string    `json:"assignedToName"`
	ResolvedByName  *string    `json:"resolvedByName"`
	ResolvedAt      *time.Time `json:"resolvedAt"`
	ResolutionNotes *string    `json:"resolutionNotes"`
	Version         int        `json:"version"`
	Metadata        Metadata   `json:"-"`
}

type flaggedItemWire FlaggedItem

// MarshalJSON writes Metadata as an open JSON object, as the REST API expects.
func (f FlaggedItem) MarshalJSON() ([]byte, error) {
	meta, err := EncodeMetadata(f.Metadata)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		flaggedItemWire
		Metadata json.RawMessage `json:"metadata,omitempty"`
	}{flaggedItemWire(f), meta})
}

// UnmarshalJSON decodes the metadata bag into the variant matching Type.
func (f *FlaggedItem) UnmarshalJSON(data []byte) error {
	var aux struct {
		flaggedItemWire
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*f = FlaggedItem(aux.flaggedItemWire)
	meta, err := DecodeMetadata(f.Type, aux.Metadata)
	if err != nil {
		return fmt.Errorf("flag %d metadata: %w", f.ID, err)
	}
	f.Metadata = meta
	return nil
}

// DecodeMetadata parses a raw metadata object for the given flag type. Empty input
// yields the zero value of the variant.
func DecodeMetadata(t FlagType, raw json.RawMessage) (Metadata, error) {
	empty := len(raw) == 0 || string(raw) == "null"
	switch t {
	case FlagTypeMessage:
		var m MessageMetadata
		if !empty {
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, err
			}
		}
		return m, nil
	case FlagTypeQuiz:
		var m QuizMetadata
		if !empty {
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
	m := ContentMetadata{}
	if empty {
		return m, nil
	}
	var bag map[string]json.RawMessage
	if err := json.Unmarshal(raw, &bag); err != nil {
		return nil, err
	}
	if v, ok := bag["flaggedById"]; ok {
		if err := json.Unmarshal(v, &m.FlaggedByID); err != nil {
			return nil, fmt.Errorf("flaggedById: %w", err)
		}
		delete(bag, "flaggedById")
	}
	if len(bag) > 0 {
		m.Extra = bag
	}
	return m, nil
}

// EncodeMetadata writes m as the open JSON object used on the wire and in storage.
func EncodeMetadata(m Metadata) (json.RawMessage, error) {
	switch v := m.(type) {
	case nil:
		return nil, nil
	case ContentMetadata:
		bag := make(map[string]json.RawMessage, len(v.Extra)+1)
		for k, val := range v.Extra {
			bag[k] = val
		}
		if v.FlaggedByID != 0 {
			bag["flaggedById"] = json.RawMessage(fmt.Sprintf("%d", v.FlaggedByID))
		}
		return json.Marshal(bag)
	default:
		return json.Marshal(v)
	}
}

// QuizMeta returns the quiz metadata when the flag carries one.
func (f FlaggedItem) QuizMeta() (QuizMetadata, bool) {
	m, ok := f.Metadata.(QuizMetadata)
	return m, ok
}

// AssigneeName returns the assignee or an empty string.
func (f FlaggedItem) AssigneeName() string {
	if f.AssignedToName == nil {
		return ""
	}
	return *f.AssignedToName
}

// Assign routes the flag to a faculty member. Pending and Assigned flags accept
// the call; Resolved flags are terminal.
func (f *FlaggedItem) Assign(facultyID int, facultyName string) error {
	if f.Status != StatusPending && f.Status != StatusAssigned {
		return fmt.Errorf("%w: cannot assign a %s flag", ErrInvalidTransition, f.Status.WireValue())
	}
	if strings.TrimSpace(facultyName) == "" {
		return fmt.Errorf("%w: assignee name required", ErrInvalidTransition)
	}
	id := facultyID
	name := facultyName
	f.AssignedToID = &id
	f.AssignedToName = &name
	f.Status = StatusAssigned
	f.Version++
	return nil
}

// Resolve records the resolution. Only Assigned flags can be resolved unless
// allowDirect is set, in which case a Pending flag is resolved and assigned to the
// resolver in one step so that an assignee is always present.
func (f *FlaggedItem) Resolve(resolverID int, resolverName, notes string, at time.Time, allowDirect bool) error {
	if strings.TrimSpace(resolverName) == "" {
		return fmt.Errorf("%w: resolver name required", ErrInvalidTransition)
	}
	switch f.Status {
	case StatusAssigned:
	case StatusPending:
		if !allowDirect {
			return fmt.Errorf("%w: flag %d has not been assigned", ErrInvalidTransition, f.ID)
		}
		id := resolverID
		name := resolverName
		f.AssignedToID = &id
		f.AssignedToName = &name
	default:
		return fmt.Errorf("%w: cannot resolve a %s flag", ErrInvalidTransition, f.Status.WireValue())
	}
	ts := at.UTC()
	by := resolverName
	n := notes
	f.ResolvedByName = &by
	f.ResolvedAt = &ts
	f.ResolutionNotes = &n
	f.Status = StatusResolved
	f.Version++
	return nil
}
