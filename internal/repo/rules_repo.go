package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-engage-backend/internal/domain"
)

// FindCommentRules resolves the monitoring rules that apply to an account:
// the account-scoped row when present, else the user-level row
// (social_account_id IS NULL). ErrNotFound means neither exists.
func FindCommentRules(ctx context.Context, db *gorm.DB, userID, accountID string) (*domain.MonitoringRules, error) {
	var r domain.MonitoringRules
	if strings.TrimSpace(accountID) != "" {
		err := db.WithContext(ctx).
			Where("user_id = ? AND social_account_id = ?", userID, accountID).
			Order("updated_at DESC").
			First(&r).Error
		if err == nil {
			return &r, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	err := db.WithContext(ctx).
		Where("user_id = ? AND social_account_id IS NULL", userID).
		Order("updated_at DESC").
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetAISettings fetches a user's automation settings.
func GetAISettings(ctx context.Context, db *gorm.DB, userID string) (*domain.AISettings, error) {
	var s domain.AISettings
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetConversation fetches a direct-message conversation by id.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}
