package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-engage-backend/internal/domain"
)

// DecisionCounts aggregates the decision log by verdict.
type DecisionCounts struct {
	Respond  int64 `json:"respond"`
	Ignore   int64 `json:"ignore"`
	Escalate int64 `json:"escalate"`
}

// Total returns the number of decisions counted.
func (c DecisionCounts) Total() int64 { return c.Respond + c.Ignore + c.Escalate }

// InsertDecision appends d to the decision log. The message snapshot is
// truncated to domain.MaxSnapshotRunes. The log has no update or delete
// functions.
func InsertDecision(ctx context.Context, db *gorm.DB, d *domain.AIDecision) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.Message = domain.Truncate(d.Message, domain.MaxSnapshotRunes)
	d.Reason = domain.Truncate(d.Reason, 255)
	d.MatchedRule = domain.Truncate(d.MatchedRule, 128)
	return db.WithContext(ctx).Create(d).Error
}

// CountDecisions groups a user's decisions by verdict. A non-nil since
// restricts the count to decisions created at or after it.
func CountDecisions(ctx context.Context, db *gorm.DB, userID string, since *time.Time) (DecisionCounts, error) {
	var rows []struct {
		Decision domain.Verdict
		N        int64
	}
	q := db.WithContext(ctx).
		Model(&domain.AIDecision{}).
		Select("decision, COUNT(*) AS n").
		Where("user_id = ?", userID)
	if since != nil {
		q = q.Where("created_at >= ?", since.UTC())
	}
	var out DecisionCounts
	if err := q.Group("decision").Scan(&rows).Error; err != nil {
		return out, err
	}
	for _, r := range rows {
		switch r.Decision {
		case domain.VerdictRespond:
			out.Respond = r.N
		case domain.VerdictIgnore:
			out.Ignore = r.N
		case domain.VerdictEscalate:
			out.Escalate = r.N
		}
	}
	return out, nil
}

// ListDecisionsForSubjects returns the most recent decisions recorded for
// any of subjectIDs, newest first.
func ListDecisionsForSubjects(ctx context.Context, db *gorm.DB, subjectIDs []string, limit int) ([]domain.AIDecision, error) {
	var out []domain.AIDecision
	if len(subjectIDs) == 0 {
		return out, nil
	}
	q := db.WithContext(ctx).
		Where("subject_id IN ?", subjectIDs).
		Order("created_at DESC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
