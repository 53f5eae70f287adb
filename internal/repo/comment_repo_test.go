package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-engage-backend/internal/domain"
)

func batch(postID string, base time.Time, ids ...string) []domain.Comment {
	out := make([]domain.Comment, 0, len(ids))
	for i, id := range ids {
		out = append(out, domain.Comment{
			PostID:            postID,
			PlatformCommentID: id,
			AuthorName:        "fan",
			Text:              "text " + id,
			CommentedAt:       base.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestInsertCommentsIfNotExists_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedPost(t, db, "p1", nil)
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	n, err := InsertCommentsIfNotExists(ctx, db, batch("p1", base, "c1", "c2"))
	if err != nil || n != 2 {
		t.Fatalf("first insert: n=%d err=%v", n, err)
	}
	// Same platform state polled again plus one new comment.
	n, err = InsertCommentsIfNotExists(ctx, db, batch("p1", base, "c1", "c2", "c3"))
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 new row, got %d", n)
	}
	all, err := ListPostComments(ctx, db, "p1")
	if err != nil {
		t.Fatalf("ListPostComments: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rows total, got %d", len(all))
	}
	if all[0].PlatformCommentID != "c1" || all[2].PlatformCommentID != "c3" {
		t.Fatalf("comments not oldest-first: %+v", all)
	}

	if n, err := InsertCommentsIfNotExists(ctx, db, nil); n != 0 || err != nil {
		t.Fatalf("empty batch: n=%d err=%v", n, err)
	}
}

func TestSetTriage_OnlyOnce_AndUntriagedListing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedPost(t, db, "p1", nil)
	if _, err := InsertCommentsIfNotExists(ctx, db, batch("p1", time.Now().UTC(), "c1", "c2")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	pending, err := ListUntriaged(ctx, db, "p1")
	if err != nil || len(pending) != 2 {
		t.Fatalf("ListUntriaged = %d, %v", len(pending), err)
	}

	decisionID := "d1"
	ok, err := SetTriage(ctx, db, pending[0].ID, domain.VerdictRespond, "no blocking rule", &decisionID)
	if err != nil || !ok {
		t.Fatalf("SetTriage first: ok=%v err=%v", ok, err)
	}
	ok, err = SetTriage(ctx, db, pending[0].ID, domain.VerdictIgnore, "late", nil)
	if err != nil || ok {
		t.Fatalf("SetTriage second should be a no-op: ok=%v err=%v", ok, err)
	}
	got, _ := GetComment(ctx, db, pending[0].ID)
	if got.Triage == nil || *got.Triage != domain.VerdictRespond || got.AIDecisionID == nil || *got.AIDecisionID != "d1" {
		t.Fatalf("triage not persisted: %+v", got)
	}

	left, _ := ListUntriaged(ctx, db, "p1")
	if len(left) != 1 || left[0].ID != pending[1].ID {
		t.Fatalf("expected one untriaged comment, got %+v", left)
	}

	counts, err := TriageCounts(ctx, db, "p1")
	if err != nil {
		t.Fatalf("TriageCounts: %v", err)
	}
	if counts["respond"] != 1 || counts["pending"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestMarkReplied_AndFailed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedPost(t, db, "p1", nil)
	if _, err := InsertCommentsIfNotExists(ctx, db, batch("p1", time.Now().UTC(), "c1")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cs, _ := ListPostComments(ctx, db, "p1")
	id := cs[0].ID

	if err := MarkReplyFailed(ctx, db, id, "boom"); err != nil {
		t.Fatalf("MarkReplyFailed: %v", err)
	}
	at := time.Now().UTC()
	if err := MarkReplied(ctx, db, id, "r-1", at); err != nil {
		t.Fatalf("MarkReplied: %v", err)
	}
	got, _ := GetComment(ctx, db, id)
	if got.ReplyID == nil || *got.ReplyID != "r-1" || got.RepliedAt == nil || got.ReplyError != "" {
		t.Fatalf("reply not persisted: %+v", got)
	}
	if err := MarkHidden(ctx, db, id); err != nil {
		t.Fatalf("MarkHidden: %v", err)
	}
	if err := MarkReplied(ctx, db, "missing", "r", at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
