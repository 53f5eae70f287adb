package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-engage-backend/internal/domain"
)

func TestReplyClaim_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := GetReplyClaim(ctx, db, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank comment id should be ErrNotFound, got %v", err)
	}

	claim, err := CreateReplyClaim(ctx, db, "c1", "reply:c1")
	if err != nil {
		t.Fatalf("CreateReplyClaim: %v", err)
	}
	if claim.Status != domain.ClaimPending || claim.Attempts != 1 {
		t.Fatalf("unexpected new claim: %+v", claim)
	}
	if _, err := CreateReplyClaim(ctx, db, "c1", "reply:c1"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Only failed claims can be reopened.
	if _, err := ReopenReplyClaim(ctx, db, "c1"); !errors.Is(err, ErrClaimNotFailed) {
		t.Fatalf("expected ErrClaimNotFailed for pending claim, got %v", err)
	}
	if err := FailReplyClaim(ctx, db, claim.ID, "503 from platform"); err != nil {
		t.Fatalf("FailReplyClaim: %v", err)
	}
	reopened, err := ReopenReplyClaim(ctx, db, "c1")
	if err != nil {
		t.Fatalf("ReopenReplyClaim: %v", err)
	}
	if reopened.Status != domain.ClaimPending || reopened.Attempts != 2 {
		t.Fatalf("unexpected reopened claim: %+v", reopened)
	}
	// A concurrent second retry loses.
	if _, err := ReopenReplyClaim(ctx, db, "c1"); !errors.Is(err, ErrClaimNotFailed) {
		t.Fatalf("expected ErrClaimNotFailed on second reopen, got %v", err)
	}

	if err := CompleteReplyClaim(ctx, db, claim.ID, "r-9"); err != nil {
		t.Fatalf("CompleteReplyClaim: %v", err)
	}
	got, _ := GetReplyClaim(ctx, db, "c1")
	if got.Status != domain.ClaimSent || got.ReplyID != "r-9" || got.Error != "" {
		t.Fatalf("unexpected sent claim: %+v", got)
	}
	if err := CompleteReplyClaim(ctx, db, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
