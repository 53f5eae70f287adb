// Package connector defines the platform-agnostic contract the engine uses to
// read comments from and write replies to social platforms, together with
// the typed error model, retry policy, and platform registry shared by every
// implementation.
//
// New platforms are added by implementing Connector and registering a
// Factory; callers never branch on a platform name.
package connector

import (
	"context"
	"errors"
	"time"
)

// RemoteComment is a comment as reported by a platform.
type RemoteComment struct {
	PlatformID string
	ParentID   string // empty for top-level comments
	AuthorName string
	AuthorID   string
	Text       string
	LikeCount  int
	CreatedAt  time.Time
}

// CommentPage is the result of one ListNewComments call. Comments are ordered
// oldest first. When Partial is true the fetch stopped early; Comments and
// NextCursor then describe only the pages that were read completely.
type CommentPage struct {
	Comments   []RemoteComment
	NextCursor string
	Partial    bool
}

// ReplyResult describes a reply accepted by the platform.
type ReplyResult struct {
	ReplyID string
}

// RemotePost is a post as reported by a platform.
type RemotePost struct {
	PlatformID string
	Caption    string
	MediaURL   string
	Permalink  string
	PostedAt   time.Time
}

// Connector is a per-account platform client.
type Connector interface {
	// Platform returns the platform key this connector serves.
	Platform() string

	// ListNewComments returns comments on postPlatformID after sinceCursor.
	// A failed fetch returns an empty page and an error.
	ListNewComments(ctx context.Context, postPlatformID, sinceCursor string) (CommentPage, error)

	// ReplyToComment posts text as a reply to commentPlatformID.
	ReplyToComment(ctx context.Context, commentPlatformID, text string) (ReplyResult, error)

	// HideComment and DeleteComment return ErrNotSupported on platforms
	// that lack the capability.
	HideComment(ctx context.Context, commentPlatformID string) error
	DeleteComment(ctx context.Context, commentPlatformID string) error
}

// PostLister is implemented by connectors that can enumerate an account's
// recent posts.
type PostLister interface {
	ListRecentPosts(ctx context.Context, limit int) ([]RemotePost, error)
}

// ReplyLister is implemented by connectors that can read the replies of a
// single comment. Platforms that nest replies under their parent only return
// them alongside pages after the comment cursor; once the cursor has moved
// past a parent, later replies are reachable only through ListReplies.
type ReplyLister interface {
	// ListReplies returns the replies to commentPlatformID, oldest first,
	// with ParentID set.
	ListReplies(ctx context.Context, commentPlatformID string) ([]RemoteComment, error)
}

// ErrNotSupported is returned for optional operations a platform lacks.
var ErrNotSupported = errors.New("operation not supported by platform")

// Unsupported can be embedded by connectors to stub the optional
// moderation operations.
type Unsupported struct{}

// HideComment always returns ErrNotSupported.
func (Unsupported) HideComment(context.Context, string) error { return ErrNotSupported }

// DeleteComment always returns ErrNotSupported.
func (Unsupported) DeleteComment(context.Context, string) error { return ErrNotSupported }
