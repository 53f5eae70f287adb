package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-engage-backend/internal/domain"
)

// InsertCommentsIfNotExists stores comments, skipping any whose
// (post_id, platform_comment_id) pair is already present. It returns the
// number of rows actually inserted.
func InsertCommentsIfNotExists(ctx context.Context, db *gorm.DB, comments []domain.Comment) (int64, error) {
	if len(comments) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	for i := range comments {
		if comments[i].ID == "" {
			comments[i].ID = uuid.NewString()
		}
		comments[i].CreatedAt, comments[i].UpdatedAt = now, now
	}
	res := db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}, {Name: "platform_comment_id"}},
			DoNothing: true,
		}).
		Create(&comments)
	return res.RowsAffected, res.Error
}

// GetComment fetches a comment by id.
func GetComment(ctx context.Context, db *gorm.DB, id string) (*domain.Comment, error) {
	var c domain.Comment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListPostComments returns every comment of a post ordered oldest first
// (CommentedAt ASC, ID ASC).
func ListPostComments(ctx context.Context, db *gorm.DB, postID string) ([]domain.Comment, error) {
	var out []domain.Comment
	err := db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("commented_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListRecentParents returns up to limit top-level comments of a post made at
// or after since, newest first.
func ListRecentParents(ctx context.Context, db *gorm.DB, postID string, since time.Time, limit int) ([]domain.Comment, error) {
	var out []domain.Comment
	q := db.WithContext(ctx).
		Where("post_id = ? AND parent_id IS NULL AND commented_at >= ?", postID, since).
		Order("commented_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListUntriaged returns the comments of a post that have no triage verdict
// yet, oldest first.
func ListUntriaged(ctx context.Context, db *gorm.DB, postID string) ([]domain.Comment, error) {
	var out []domain.Comment
	err := db.WithContext(ctx).
		Where("post_id = ? AND triage IS NULL", postID).
		Order("commented_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// SetTriage records the verdict for an untriaged comment. It reports false
// when the comment was already triaged (or does not exist), leaving the row
// unchanged.
func SetTriage(ctx context.Context, db *gorm.DB, id string, verdict domain.Verdict, reason string, decisionID *string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Comment{}).
		Where("id = ? AND triage IS NULL", id).
		Updates(map[string]any{
			"triage":         verdict,
			"triage_reason":  domain.Truncate(reason, 255),
			"ai_decision_id": decisionID,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkReplied stores a successful reply on the comment and clears any
// previous reply error.
func MarkReplied(ctx context.Context, db *gorm.DB, id, replyID string, at time.Time) error {
	return updateComment(ctx, db, id, map[string]any{
		"reply_id":    replyID,
		"replied_at":  at,
		"reply_error": "",
		"updated_at":  time.Now().UTC(),
	})
}

// MarkReplyFailed stores a reply dispatch error on the comment.
func MarkReplyFailed(ctx context.Context, db *gorm.DB, id, msg string) error {
	return updateComment(ctx, db, id, map[string]any{
		"reply_error": msg,
		"updated_at":  time.Now().UTC(),
	})
}

// MarkHidden flags the comment as hidden on the platform.
func MarkHidden(ctx context.Context, db *gorm.DB, id string) error {
	return updateComment(ctx, db, id, map[string]any{"hidden": true, "updated_at": time.Now().UTC()})
}

func updateComment(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.Comment{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TriageCounts groups a post's comments by triage verdict. Untriaged
// comments are reported under the "pending" key.
func TriageCounts(ctx context.Context, db *gorm.DB, postID string) (map[string]int64, error) {
	var rows []struct {
		Triage *string
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Comment{}).
		Select("triage, COUNT(*) AS n").
		Where("post_id = ?", postID).
		Group("triage").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		k := "pending"
		if r.Triage != nil {
			k = *r.Triage
		}
		out[k] += r.N
	}
	return out, nil
}
