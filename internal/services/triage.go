package services

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-engage-backend/internal/domain"
)

// Triage stop reasons.
const (
	ReasonSelfComment      = "ignore"
	ReasonUserConversation = "user_conversation"
)

var mentionRe = regexp.MustCompile(`(?:^|[^A-Za-z0-9_.])@([A-Za-z0-9._]+)`)

// TriageResult is the outcome of the structural pre-filter.
type TriageResult struct {
	Continue      bool
	Reason        string
	ParentMissing bool
}

// TriageFilter keeps the account from inserting itself into conversations
// between other users. It holds no per-call state.
type TriageFilter struct {
	Log zerolog.Logger
}

// ShouldRespond applies the structural rules in order; the first match wins:
//
//  1. the owner's own comment, unless it replies to a non-owner or mentions
//     someone, is ignored;
//  2. a comment that mentions handles but not the owner is a user
//     conversation;
//  3. a reply to a non-owner parent is a user conversation;
//  4. otherwise continue.
//
// A parent that cannot be found in thread is logged and treated as safe.
func (f TriageFilter) ShouldRespond(c domain.Comment, ownerUsername string, thread []domain.Comment) TriageResult {
	owner := normalizeHandle(ownerUsername)
	author := normalizeHandle(c.AuthorName)
	mentions := Mentions(c.Text)

	parent, hasParent, parentMissing := findParent(c, thread)
	if parentMissing {
		f.Log.Warn().
			Str("comment_id", c.ID).
			Str("parent_id", *c.ParentID).
			Msg("thread parent not found, continuing")
	}
	parentIsOwner := hasParent && normalizeHandle(parent.AuthorName) == owner

	if owner != "" && author == owner {
		repliesToOther := hasParent && !parentIsOwner
		if !repliesToOther && !mentionsOther(mentions, owner) {
			return TriageResult{Continue: false, Reason: ReasonSelfComment, ParentMissing: parentMissing}
		}
	}

	if len(mentions) > 0 && !containsHandle(mentions, owner) {
		return TriageResult{Continue: false, Reason: ReasonUserConversation, ParentMissing: parentMissing}
	}

	if hasParent && !parentIsOwner {
		return TriageResult{Continue: false, Reason: ReasonUserConversation, ParentMissing: parentMissing}
	}

	return TriageResult{Continue: true, ParentMissing: parentMissing}
}

// Mentions extracts normalized @handles from text in order of appearance.
func Mentions(text string) []string {
	ms := mentionRe.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		h := normalizeHandle(strings.TrimRight(m[1], "."))
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

func mentionsOther(hs []string, owner string) bool {
	for _, x := range hs {
		if x != owner {
			return true
		}
	}
	return false
}

func containsHandle(hs []string, h string) bool {
	if h == "" {
		return false
	}
	for _, x := range hs {
		if x == h {
			return true
		}
	}
	return false
}

// findParent resolves c's parent by platform id within thread.
func findParent(c domain.Comment, thread []domain.Comment) (parent domain.Comment, found, missing bool) {
	if c.ParentID == nil || *c.ParentID == "" {
		return domain.Comment{}, false, false
	}
	for _, t := range thread {
		if t.PlatformCommentID == *c.ParentID {
			return t, true, false
		}
	}
	return domain.Comment{}, false, true
}
