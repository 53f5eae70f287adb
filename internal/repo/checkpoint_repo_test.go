package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCheckpoint_AdvanceIsMonotonic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedPost(t, db, "p1", nil)

	cp, err := LoadCheckpoint(ctx, db, "p1")
	if err != nil || cp.Sequence != 0 || cp.LastCursor != "" {
		t.Fatalf("fresh checkpoint = %+v, %v", cp, err)
	}

	t1 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	cp, err = AdvanceCheckpoint(ctx, db, cp, "cur-1", &t1)
	if err != nil || cp.Sequence != 1 || cp.LastCursor != "cur-1" {
		t.Fatalf("first advance = %+v, %v", cp, err)
	}

	// Empty cursor and older timestamp keep the stored values.
	older := t1.Add(-time.Hour)
	cp, err = AdvanceCheckpoint(ctx, db, cp, "", &older)
	if err != nil {
		t.Fatalf("second advance: %v", err)
	}
	stored, _ := LoadCheckpoint(ctx, db, "p1")
	if stored.LastCursor != "cur-1" || stored.Sequence != 2 {
		t.Fatalf("cursor regressed: %+v", stored)
	}
	if stored.LastSeenAt == nil || !stored.LastSeenAt.Equal(t1) {
		t.Fatalf("last_seen_at regressed: %v", stored.LastSeenAt)
	}

	t2 := t1.Add(time.Hour)
	if _, err = AdvanceCheckpoint(ctx, db, cp, "cur-2", &t2); err != nil {
		t.Fatalf("third advance: %v", err)
	}
	stored, _ = LoadCheckpoint(ctx, db, "p1")
	if stored.LastCursor != "cur-2" || stored.Sequence != 3 || !stored.LastSeenAt.Equal(t2) {
		t.Fatalf("unexpected checkpoint: %+v", stored)
	}
}

func TestCheckpoint_StaleWriterLoses(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedPost(t, db, "p1", nil)

	fresh, _ := LoadCheckpoint(ctx, db, "p1")
	if _, err := AdvanceCheckpoint(ctx, db, fresh, "a", nil); err != nil {
		t.Fatalf("advance: %v", err)
	}
	// A second writer that read the same fresh checkpoint must not clobber it.
	if _, err := AdvanceCheckpoint(ctx, db, fresh, "b", nil); !errors.Is(err, ErrStaleCheckpoint) {
		t.Fatalf("expected ErrStaleCheckpoint on create race, got %v", err)
	}

	cur, _ := LoadCheckpoint(ctx, db, "p1")
	if _, err := AdvanceCheckpoint(ctx, db, cur, "c", nil); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := AdvanceCheckpoint(ctx, db, cur, "d", nil); !errors.Is(err, ErrStaleCheckpoint) {
		t.Fatalf("expected ErrStaleCheckpoint on update race, got %v", err)
	}
	final, _ := LoadCheckpoint(ctx, db, "p1")
	if final.LastCursor != "c" || final.Sequence != 2 {
		t.Fatalf("unexpected checkpoint after races: %+v", final)
	}
}
