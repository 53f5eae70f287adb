// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for ReplyClaim, the
// ledger that guarantees at most one outbound reply per comment.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-engage-backend/internal/domain"
)

// ErrDuplicate indicates that a reply claim already exists for the comment.
var ErrDuplicate = errors.New("duplicate")

// ErrClaimNotFailed is returned when reopening a claim that is not in the
// failed state.
var ErrClaimNotFailed = errors.New("reply claim is not failed")

// GetReplyClaim returns the claim for commentID or ErrNotFound.
func GetReplyClaim(ctx context.Context, db *gorm.DB, commentID string) (*domain.ReplyClaim, error) {
	if strings.TrimSpace(commentID) == "" {
		return nil, ErrNotFound
	}
	var rec domain.ReplyClaim
	err := db.WithContext(ctx).Where("comment_id = ?", commentID).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateReplyClaim inserts a pending claim and returns ErrDuplicate on
// unique violation. Only the caller that receives a claim may dispatch.
func CreateReplyClaim(ctx context.Context, db *gorm.DB, commentID, key string) (*domain.ReplyClaim, error) {
	now := time.Now().UTC()
	rec := &domain.ReplyClaim{
		ID:        uuid.NewString(),
		CommentID: commentID,
		Key:       key,
		Status:    domain.ClaimPending,
		Attempts:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// CompleteReplyClaim marks the claim sent with the platform reply id.
func CompleteReplyClaim(ctx context.Context, db *gorm.DB, id, replyID string) error {
	return updateClaim(ctx, db, id, map[string]any{
		"status":     domain.ClaimSent,
		"reply_id":   replyID,
		"error":      "",
		"updated_at": time.Now().UTC(),
	})
}

// FailReplyClaim marks the claim failed with msg.
func FailReplyClaim(ctx context.Context, db *gorm.DB, id, msg string) error {
	return updateClaim(ctx, db, id, map[string]any{
		"status":     domain.ClaimFailed,
		"error":      msg,
		"updated_at": time.Now().UTC(),
	})
}

// ReopenReplyClaim moves a failed claim back to pending and bumps Attempts.
// The conditional update makes concurrent retries race safely: exactly one
// caller wins, the others get ErrClaimNotFailed.
func ReopenReplyClaim(ctx context.Context, db *gorm.DB, commentID string) (*domain.ReplyClaim, error) {
	res := db.WithContext(ctx).
		Model(&domain.ReplyClaim{}).
		Where("comment_id = ? AND status = ?", commentID, domain.ClaimFailed).
		Updates(map[string]any{
			"status":     domain.ClaimPending,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrClaimNotFailed
	}
	return GetReplyClaim(ctx, db, commentID)
}

func updateClaim(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.ReplyClaim{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation recognizes unique-key errors from both drivers.
// glebarez/sqlite returns plain-text errors; pgx reports SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value") ||
		strings.Contains(low, "sqlstate 23505")
}
