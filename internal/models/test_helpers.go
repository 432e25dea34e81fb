package models

import "time"

// NewTestFlagStore creates a new in-memory flag store for testing
func NewTestFlagStore() *InMemoryFlagStore {
	return NewInMemoryFlagStore()
}

// IntPtr returns a pointer to v. Handy for the optional ID references on a flag.
func IntPtr(v int) *int { return &v }

// NewPendingFlag builds a Pending message flag for tests and seed data.
func NewPendingFlag(id int, reason, flaggedBy string, at time.Time) FlaggedItem {
	return FlaggedItem{
		ID:            id,
		Type:          FlagTypeMessage,
		Reason:        reason,
		Status:        StatusPending,
		FlaggedByName: flaggedBy,
		FlaggedAt:     at.UTC(),
		Version:       1,
		Metadata:      MessageMetadata{},
	}
}
