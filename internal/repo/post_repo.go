// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for MonitoredPost
// and the read-only SocialAccount lookups the engine needs.
//
// All functions are context-aware and accept a *gorm.DB handle, so they work
// unchanged inside a transaction. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - When a row is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-engage-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetAccount fetches a social account by id.
func GetAccount(ctx context.Context, db *gorm.DB, id string) (*domain.SocialAccount, error) {
	var a domain.SocialAccount
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetPost fetches a monitored post by id.
func GetPost(ctx context.Context, db *gorm.DB, id string) (*domain.MonitoredPost, error) {
	var p domain.MonitoredPost
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePost inserts p, assigning an id and UTC timestamps when missing.
func CreatePost(ctx context.Context, db *gorm.DB, p *domain.MonitoredPost) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return db.WithContext(ctx).Create(p).Error
}

// DuePosts returns monitored posts whose next_check_at is at or before now,
// oldest schedule first. A limit <= 0 returns every due post.
func DuePosts(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.MonitoredPost, error) {
	var out []domain.MonitoredPost
	q := db.WithContext(ctx).
		Where("monitoring_enabled = ? AND next_check_at IS NOT NULL AND next_check_at <= ?", true, now).
		Order("next_check_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// UpdatePost applies fields to the post identified by id. A nil value in
// fields writes SQL NULL. It returns ErrNotFound when no row matches.
func UpdatePost(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	if _, ok := fields["updated_at"]; !ok {
		fields["updated_at"] = time.Now().UTC()
	}
	res := db.WithContext(ctx).
		Model(&domain.MonitoredPost{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateMonitoredPost applies fields only while the post is still
// monitored under epoch. It reports false, with no error, when monitoring was
// disabled or restarted since the caller read the post.
func UpdateMonitoredPost(ctx context.Context, db *gorm.DB, id string, epoch int64, fields map[string]any) (bool, error) {
	if _, ok := fields["updated_at"]; !ok {
		fields["updated_at"] = time.Now().UTC()
	}
	res := db.WithContext(ctx).
		Model(&domain.MonitoredPost{}).
		Where("id = ? AND monitoring_enabled = ? AND monitoring_epoch = ?", id, true, epoch).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpsertImportedPost inserts p or, when (platform, platform_post_id) already
// exists, refreshes its caption and media references. Monitoring state of an
// existing row is left untouched. The stored row is returned.
func UpsertImportedPost(ctx context.Context, db *gorm.DB, p domain.MonitoredPost) (*domain.MonitoredPost, error) {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt, p.UpdatedAt = now, now
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "platform"}, {Name: "platform_post_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"caption", "media_url", "permalink", "updated_at"}),
	}).Create(&p).Error
	if err != nil {
		return nil, err
	}
	var stored domain.MonitoredPost
	err = db.WithContext(ctx).
		Where("platform = ? AND platform_post_id = ?", p.Platform, p.PlatformPostID).
		First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// ListAccountPosts returns an account's posts, most recently posted first.
func ListAccountPosts(ctx context.Context, db *gorm.DB, accountID string, limit int) ([]domain.MonitoredPost, error) {
	var out []domain.MonitoredPost
	q := db.WithContext(ctx).
		Where("social_account_id = ?", accountID).
		Order("posted_at DESC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
