package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStatus is returned when a backend status string does not map to one of
// the canonical lifecycle states.
var ErrUnknownStatus = errors.New("unknown flag status")

// Status is the canonical lifecycle state of a flagged item.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusAssigned Status = "Assigned"
	StatusResolved Status = "Resolved"
)

// ParseStatus maps a raw backend status to its canonical form. Matching is
// case-insensitive and ignores surrounding whitespace. Both "in_progress" and
// "assigned" map to StatusAssigned.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return StatusPending, nil
	case "in_progress", "assigned":
		return StatusAssigned, nil
	case "resolved":
		return StatusResolved, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

// NormalizeStatus is the display-only variant of ParseStatus. Unrecognized values
// come back exactly as received so callers can still show them; Known reports
// false for those.
func NormalizeStatus(raw string) Status {
	if s, err := ParseStatus(raw); err == nil {
		return s
	}
	return Status(raw)
}

// Known reports whether s is one of the three canonical states.
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusResolved:
		return true
	}
	return false
}

func (s Status) IsPending() bool  { return s == StatusPending }
func (s Status) IsAssigned() bool { return s == StatusAssigned }
func (s Status) IsResolved() bool { return s == StatusResolved }

// CanResolve is true for every status except Resolved, Pending included.
func (s Status) CanResolve() bool { return s != StatusResolved }

// Label returns the human readable label for the status.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending Review"
	case StatusAssigned:
		return "Assigned"
	case StatusResolved:
		return "Resolved"
	}
	if s == "" {
		return "Unknown"
	}
	return string(s)
}

// Class returns the style token used by dashboards to colour the status badge.
func (s Status) Class() string {
	switch s {
	case StatusPending:
		return "status-pending"
	case StatusAssigned:
		return "status-assigned"
	case StatusResolved:
		return "status-resolved"
	}
	return "status-unknown"
}

// WireValue is the lower-case form written back to the REST API.
func (s Status) WireValue() string {
	return strings.ToLower(string(s))
}

// MarshalJSON encodes the status in its wire form.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.WireValue())
}

// UnmarshalJSON accepts any of the raw backend spellings and rejects unknown ones.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
