package services

import (
	"context"
	"errors"
	"time"

	"github.com/tbourn/go-engage-backend/internal/domain"
	"github.com/tbourn/go-engage-backend/internal/repo"
)

// maxThreadEntries caps the thread history handed to a Responder.
const maxThreadEntries = 20

// Responder produces reply text for a comment.
type Responder interface {
	GenerateReply(ctx context.Context, rc ReplyContext) (string, error)
}

// ReplyContext is everything a Responder sees about a comment.
type ReplyContext struct {
	CommentID   string        `json:"comment_id"`
	CommentText string        `json:"comment_text"`
	AuthorName  string        `json:"author_name"`
	Post        PostContext   `json:"post_context"`
	Thread      []ThreadEntry `json:"thread_context"`
}

// PostContext describes the post a comment belongs to.
type PostContext struct {
	PostID        string `json:"post_id"`
	Platform      string `json:"platform"`
	OwnerUsername string `json:"owner_username"`
	Caption       string `json:"caption"`
	Permalink     string `json:"permalink,omitempty"`
}

// ThreadEntry is one earlier comment in the same thread.
type ThreadEntry struct {
	AuthorName  string    `json:"author_name"`
	Text        string    `json:"text"`
	IsOwner     bool      `json:"is_owner"`
	CommentedAt time.Time `json:"commented_at"`
}

// BuildReplyContext returns the exact context the Responder receives for
// commentID.
func (o *Orchestrator) BuildReplyContext(ctx context.Context, commentID string) (ReplyContext, error) {
	c, err := repo.GetComment(ctx, o.DB, commentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ReplyContext{}, ErrCommentNotFound
		}
		return ReplyContext{}, err
	}
	post, acc, err := o.loadPostAccount(ctx, c.PostID)
	if err != nil {
		return ReplyContext{}, err
	}
	thread, err := repo.ListPostComments(ctx, o.DB, post.ID)
	if err != nil {
		return ReplyContext{}, err
	}
	return buildReplyContext(post, acc, *c, thread), nil
}

// buildReplyContext walks c's ancestors to the thread root and returns the
// root plus every earlier comment under it, oldest first.
func buildReplyContext(post *domain.MonitoredPost, acc *domain.SocialAccount, c domain.Comment, thread []domain.Comment) ReplyContext {
	byPlatformID := make(map[string]domain.Comment, len(thread))
	for _, t := range thread {
		byPlatformID[t.PlatformCommentID] = t
	}
	rootOf := func(x domain.Comment) string {
		seen := map[string]bool{}
		for x.ParentID != nil && *x.ParentID != "" && !seen[x.PlatformCommentID] {
			seen[x.PlatformCommentID] = true
			p, ok := byPlatformID[*x.ParentID]
			if !ok {
				return *x.ParentID
			}
			x = p
		}
		return x.PlatformCommentID
	}

	root := rootOf(c)
	owner := normalizeHandle(acc.Username)
	entries := []ThreadEntry{}
	for _, t := range thread {
		if t.ID == c.ID || t.CommentedAt.After(c.CommentedAt) {
			continue
		}
		if rootOf(t) != root {
			continue
		}
		entries = append(entries, ThreadEntry{
			AuthorName:  t.AuthorName,
			Text:        t.Text,
			IsOwner:     normalizeHandle(t.AuthorName) == owner,
			CommentedAt: t.CommentedAt,
		})
	}
	if len(entries) > maxThreadEntries {
		entries = entries[len(entries)-maxThreadEntries:]
	}

	return ReplyContext{
		CommentID:   c.ID,
		CommentText: c.Text,
		AuthorName:  c.AuthorName,
		Post: PostContext{
			PostID:        post.ID,
			Platform:      post.Platform,
			OwnerUsername: acc.Username,
			Caption:       post.Caption,
			Permalink:     post.Permalink,
		},
		Thread: entries,
	}
}
