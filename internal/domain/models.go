// Package domain defines the persistence models for monitored posts, their
// comments, polling checkpoints, automation rules, and the AI decision audit
// log. These types are mapped with GORM and form the core data layer of the
// engagement engine.
package domain

import (
	"time"
	"unicode/utf8"
)

// Verdict is the triage outcome assigned to a comment or message.
type Verdict string

const (
	VerdictRespond  Verdict = "respond"
	VerdictIgnore   Verdict = "ignore"
	VerdictEscalate Verdict = "escalate"
)

// Valid reports whether v is one of the known verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictRespond, VerdictIgnore, VerdictEscalate:
		return true
	}
	return false
}

// ContextType distinguishes direct-message automation from public comments.
type ContextType string

const (
	ContextChat    ContextType = "chat"
	ContextComment ContextType = "comment"
)

// Valid reports whether c is a known context type.
func (c ContextType) Valid() bool { return c == ContextChat || c == ContextComment }

// PostSource records how a post entered the registry.
type PostSource string

const (
	SourceScheduled PostSource = "scheduled"
	SourceImported  PostSource = "imported"
	SourceManual    PostSource = "manual"
)

// AIMode is the per-conversation automation mode for direct messages.
type AIMode string

const (
	AIModeOff    AIMode = "off"
	AIModeAssist AIMode = "assist"
	AIModeAuto   AIMode = "auto"
)

// SocialAccount is a connected platform account. It is owned by the account
// management subsystem; the engine only reads it to resolve the owner handle
// and connector credentials.
type SocialAccount struct {
	ID                string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	UserID            string    `json:"user_id"             gorm:"type:varchar(64);not null;index"`
	Platform          string    `json:"platform"            gorm:"type:varchar(32);not null;uniqueIndex:ux_account_platform_id,priority:1"`
	PlatformAccountID string    `json:"platform_account_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_account_platform_id,priority:2"`
	Username          string    `json:"username"            gorm:"type:varchar(255);not null"`
	AccessToken       string    `json:"-"                   gorm:"type:text"`
	Status            string    `json:"status"              gorm:"type:varchar(32);not null;default:'active'"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for SocialAccount.
func (SocialAccount) TableName() string { return "social_accounts" }

// MonitoredPost is a platform post whose comments may be polled.
//
// Invariant: MonitoringEnabled == false implies NextCheckAt == nil.
// MonitoringEpoch increases on every Enable and Disable; poll results are
// only written under the epoch the post was read with.
type MonitoredPost struct {
	ID                  string     `json:"id"                    gorm:"type:char(36);primaryKey"`
	Platform            string     `json:"platform"              gorm:"type:varchar(32);not null;uniqueIndex:ux_post_platform_id,priority:1"`
	PlatformPostID      string     `json:"platform_post_id"      gorm:"type:varchar(128);not null;uniqueIndex:ux_post_platform_id,priority:2"`
	SocialAccountID     string     `json:"social_account_id"     gorm:"type:char(36);not null;index"`
	Caption             string     `json:"caption"               gorm:"type:text"`
	MediaURL            string     `json:"media_url,omitempty"   gorm:"type:text"`
	Permalink           string     `json:"permalink,omitempty"   gorm:"type:text"`
	Source              PostSource `json:"source"                gorm:"type:varchar(16);not null;check:source IN ('scheduled','imported','manual')"`
	PostedAt            time.Time  `json:"posted_at"`
	MonitoringEnabled   bool       `json:"monitoring_enabled"    gorm:"not null;index:idx_posts_due,priority:1"`
	MonitoringStartedAt *time.Time `json:"monitoring_started_at,omitempty"`
	MonitoringEndsAt    *time.Time `json:"monitoring_ends_at,omitempty"`
	LastCheckAt         *time.Time `json:"last_check_at,omitempty"`
	NextCheckAt         *time.Time `json:"next_check_at,omitempty" gorm:"index:idx_posts_due,priority:2"`
	NeedsAttention      bool       `json:"needs_attention"       gorm:"not null"`
	LastError           string     `json:"last_error,omitempty"  gorm:"type:text"`
	MonitoringEpoch     int64      `json:"-"                     gorm:"not null;default:0"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TableName returns the database table name for MonitoredPost.
func (MonitoredPost) TableName() string { return "monitored_posts" }

// Comment is a platform comment ingested from a monitored post. The pair
// (PostID, PlatformCommentID) is unique so that re-polling never duplicates
// rows.
type Comment struct {
	ID                string     `json:"id"                  gorm:"type:char(36);primaryKey"`
	PostID            string     `json:"post_id"             gorm:"type:char(36);not null;uniqueIndex:ux_post_comment,priority:1;index:idx_post_comments,priority:1"`
	PlatformCommentID string     `json:"platform_comment_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_post_comment,priority:2"`
	ParentID          *string    `json:"parent_id,omitempty" gorm:"type:varchar(128)"`
	AuthorName        string     `json:"author_name"         gorm:"type:varchar(255);not null"`
	AuthorID          string     `json:"author_id,omitempty" gorm:"type:varchar(128)"`
	Text              string     `json:"text"                gorm:"type:text;not null"`
	LikeCount         int        `json:"like_count"`
	CommentedAt       time.Time  `json:"commented_at"        gorm:"index:idx_post_comments,priority:2"`
	Triage            *Verdict   `json:"triage,omitempty"    gorm:"type:varchar(16)"`
	TriageReason      string     `json:"triage_reason,omitempty" gorm:"type:varchar(255)"`
	AIDecisionID      *string    `json:"ai_decision_id,omitempty" gorm:"type:char(36)"`
	ReplyID           *string    `json:"reply_id,omitempty"  gorm:"type:varchar(128)"`
	RepliedAt         *time.Time `json:"replied_at,omitempty"`
	ReplyError        string     `json:"reply_error,omitempty" gorm:"type:text"`
	Hidden            bool       `json:"hidden"              gorm:"not null"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Post is the owning monitored post. Posts cannot be deleted while
	// comments still reference them.
	Post MonitoredPost `json:"-" gorm:"foreignKey:PostID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// Checkpoint stores the pagination position for a post. Sequence increases
// by one on every committed advance and guards against stale writers.
type Checkpoint struct {
	PostID     string     `json:"post_id"     gorm:"type:char(36);primaryKey"`
	LastCursor string     `json:"last_cursor" gorm:"type:text"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	Sequence   int64      `json:"sequence"    gorm:"not null"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Checkpoint.
func (Checkpoint) TableName() string { return "checkpoints" }

// MonitoringRules is the per-user (SocialAccountID == nil) or per-account
// monitoring policy. Account rows override user-level defaults.
type MonitoringRules struct {
	ID                     string    `json:"id"                       gorm:"type:char(36);primaryKey"`
	UserID                 string    `json:"user_id"                  gorm:"type:varchar(64);not null;index:idx_rules_scope,priority:1"`
	SocialAccountID        *string   `json:"social_account_id,omitempty" gorm:"type:char(36);index:idx_rules_scope,priority:2"`
	AutoMonitorEnabled     bool      `json:"auto_monitor_enabled"     gorm:"not null"`
	AutoMonitorCount       int       `json:"auto_monitor_count"       gorm:"not null"`
	MonitoringDurationDays int       `json:"monitoring_duration_days" gorm:"not null"`
	AIEnabledForComments   bool      `json:"ai_enabled_for_comments"  gorm:"not null"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// TableName returns the database table name for MonitoringRules.
func (MonitoringRules) TableName() string { return "monitoring_rules" }

// AISettings holds a user's automation toggles and guardrails.
type AISettings struct {
	UserID          string    `json:"user_id"          gorm:"type:varchar(64);primaryKey"`
	IsActive        bool      `json:"is_active"        gorm:"not null"`
	ChatsEnabled    bool      `json:"chats_enabled"    gorm:"not null"`
	CommentsEnabled bool      `json:"comments_enabled" gorm:"not null"`
	FlaggedKeywords []string  `json:"flagged_keywords" gorm:"type:text;serializer:json"`
	FlaggedPhrases  []string  `json:"flagged_phrases"  gorm:"type:text;serializer:json"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for AISettings.
func (AISettings) TableName() string { return "ai_settings" }

// Conversation is a direct-message thread between an account and a user.
type Conversation struct {
	ID              string    `json:"id"                gorm:"type:char(36);primaryKey"`
	UserID          string    `json:"user_id"           gorm:"type:varchar(64);not null;index"`
	SocialAccountID string    `json:"social_account_id" gorm:"type:char(36);index"`
	AIMode          AIMode    `json:"ai_mode"           gorm:"type:varchar(16);not null;default:'off'"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// AIDecision is an append-only audit record of one decision evaluation.
// Rows are never updated after creation.
type AIDecision struct {
	ID          string      `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string      `json:"user_id"      gorm:"type:varchar(64);index:idx_decisions_user,priority:1"`
	ContextType ContextType `json:"context_type" gorm:"type:varchar(16);not null"`
	SubjectID   string      `json:"subject_id,omitempty" gorm:"type:varchar(128);index"`
	Message     string      `json:"message"      gorm:"type:text"`
	Decision    Verdict     `json:"decision"     gorm:"type:varchar(16);not null;check:decision IN ('respond','ignore','escalate')"`
	Confidence  float64     `json:"confidence"   gorm:"not null"`
	Reason      string      `json:"reason"       gorm:"type:varchar(255)"`
	MatchedRule string      `json:"matched_rule,omitempty" gorm:"type:varchar(128)"`
	CreatedAt   time.Time   `json:"created_at"   gorm:"index:idx_decisions_user,priority:2"`
}

// TableName returns the database table name for AIDecision.
func (AIDecision) TableName() string { return "ai_decisions" }

// MaxSnapshotRunes caps the message text stored on an AIDecision.
const MaxSnapshotRunes = 500

// Truncate clips s to at most n runes. n <= 0 disables clipping.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
