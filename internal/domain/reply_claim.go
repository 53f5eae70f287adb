// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// ClaimStatus tracks a reply claim through dispatch.
type ClaimStatus string

const (
	ClaimPending ClaimStatus = "pending"
	ClaimSent    ClaimStatus = "sent"
	ClaimFailed  ClaimStatus = "failed"
)

// ReplyClaim is the idempotency record for an outbound reply. At most one row
// exists per comment; only the caller that inserted the row (or moved it from
// failed back to pending) may dispatch the reply.
type ReplyClaim struct {
	ID        string      `json:"id"         gorm:"type:char(36);primaryKey"`
	CommentID string      `json:"comment_id" gorm:"type:char(36);not null;uniqueIndex:ux_reply_claim_comment"`
	Key       string      `json:"key"        gorm:"type:varchar(255);not null"`
	Status    ClaimStatus `json:"status"     gorm:"type:varchar(16);not null;check:status IN ('pending','sent','failed')"`
	Attempts  int         `json:"attempts"   gorm:"not null"`
	ReplyID   string      `json:"reply_id,omitempty" gorm:"type:varchar(128)"`
	Error     string      `json:"error,omitempty"    gorm:"type:text"`
	CreatedAt time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName implements the GORM tabler interface.
func (ReplyClaim) TableName() string { return "reply_claims" }
