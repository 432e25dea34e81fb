package models

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryFlagStoreUpdateVersion(t *testing.T) {
	ctx := context.Background()
	store := NewTestFlagStore()
	f := NewPendingFlag(0, "unclear", "Sam", time.Now())
	if err := store.InsertFlag(ctx, &f); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if f.ID != 1 {
		t.Fatalf("expected generated id 1, got %d", f.ID)
	}

	updated, err := store.UpdateFlag(ctx, f.ID, f.Version, func(fl *FlaggedItem) error {
		return fl.Assign(7, "Dr. Lin")
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}

	// stale version
	if _, err := store.UpdateFlag(ctx, f.ID, 1, func(fl *FlaggedItem) error { return nil }); err != ErrVersionMismatch {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	// failed mutation leaves the stored flag untouched
	_, err = store.UpdateFlag(ctx, f.ID, 0, func(fl *FlaggedItem) error {
		fl.Reason = "changed"
		return ErrInvalidTransition
	})
	if err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	got, _ := store.GetFlag(ctx, f.ID)
	if got.Reason != "unclear" {
		t.Fatalf("flag mutated by failed update: %q", got.Reason)
	}

	assigned, _ := store.ListAssignedTo(ctx, 7)
	if len(assigned) != 1 {
		t.Fatalf("expected 1 assigned flag, got %d", len(assigned))
	}
	pending := StatusPending
	open, _ := store.ListFlags(ctx, &pending)
	if len(open) != 0 {
		t.Fatalf("expected no pending flags, got %d", len(open))
	}
}

func TestInMemoryFlagStoreUnknownConversation(t *testing.T) {
	store := NewTestFlagStore()
	if _, err := store.ListMessages(context.Background(), 5); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
