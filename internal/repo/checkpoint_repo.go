package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-engage-backend/internal/domain"
)

// ErrStaleCheckpoint is returned when a checkpoint advance loses the
// compare-and-swap on Sequence to a concurrent writer.
var ErrStaleCheckpoint = errors.New("stale checkpoint")

// LoadCheckpoint returns the checkpoint for postID. A post that has never
// been polled yields a zero checkpoint (Sequence 0, empty cursor).
func LoadCheckpoint(ctx context.Context, db *gorm.DB, postID string) (domain.Checkpoint, error) {
	var cp domain.Checkpoint
	err := db.WithContext(ctx).Where("post_id = ?", postID).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Checkpoint{PostID: postID}, nil
	}
	return cp, err
}

// AdvanceCheckpoint moves prev forward. The write only succeeds if the stored
// Sequence still equals prev.Sequence; otherwise ErrStaleCheckpoint is
// returned and nothing changes.
//
// An empty nextCursor keeps the stored cursor, and seenAt only replaces
// LastSeenAt when it is later.
func AdvanceCheckpoint(ctx context.Context, db *gorm.DB, prev domain.Checkpoint, nextCursor string, seenAt *time.Time) (domain.Checkpoint, error) {
	next := prev
	next.Sequence = prev.Sequence + 1
	next.UpdatedAt = time.Now().UTC()
	if nextCursor != "" {
		next.LastCursor = nextCursor
	}
	if seenAt != nil && (prev.LastSeenAt == nil || seenAt.After(*prev.LastSeenAt)) {
		t := seenAt.UTC()
		next.LastSeenAt = &t
	}

	if prev.Sequence == 0 {
		res := db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "post_id"}}, DoNothing: true}).
			Create(&next)
		if res.Error != nil {
			return prev, res.Error
		}
		if res.RowsAffected == 0 {
			return prev, ErrStaleCheckpoint
		}
		return next, nil
	}

	res := db.WithContext(ctx).
		Model(&domain.Checkpoint{}).
		Where("post_id = ? AND sequence = ?", prev.PostID, prev.Sequence).
		Updates(map[string]any{
			"last_cursor":  next.LastCursor,
			"last_seen_at": next.LastSeenAt,
			"sequence":     next.Sequence,
			"updated_at":   next.UpdatedAt,
		})
	if res.Error != nil {
		return prev, res.Error
	}
	if res.RowsAffected == 0 {
		return prev, ErrStaleCheckpoint
	}
	return next, nil
}
