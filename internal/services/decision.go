// Package services – DecisionService
//
// This file implements the layered reply policy. A message is evaluated in a
// fixed order and the first terminal rule wins: scope toggle, master toggle,
// textless content, content moderation, flagged keywords, flagged phrases,
// then RESPOND.
//
// Evaluate appends one AIDecision per call to the audit log; DryRun runs the
// identical pipeline without writing anything.
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/tbourn/go-engage-backend/internal/domain"
	"github.com/tbourn/go-engage-backend/internal/repo"
)

const (
	confidenceCertain  = 1.0
	confidenceRule     = 0.95
	confidenceDegraded = 0.5

	matchedRuleRunes = 50

	ReasonNoBlockingRule        = "no blocking rule"
	ReasonChatsDisabled         = "chat automation disabled"
	ReasonCommentsDisabled      = "comment automation disabled"
	ReasonMasterToggleOff       = "ai control disabled"
	ReasonFlaggedKeyword        = "flagged keyword"
	ReasonFlaggedPhrase         = "flagged phrase"
	ReasonModerationUnavailable = "moderation unavailable"
	ReasonNoText                = "no text to reply to"
)

// ModerationResult is the classification returned by a Moderator.
type ModerationResult struct {
	Flagged    bool
	Categories []string
}

// Moderator classifies text for policy violations.
type Moderator interface {
	Classify(ctx context.Context, text string) (ModerationResult, error)
}

// DecisionRules are the user-configured inputs of the policy.
type DecisionRules struct {
	IsActive        bool     `json:"is_active"`
	ChatsEnabled    bool     `json:"chats_enabled"`
	CommentsEnabled bool     `json:"comments_enabled"`
	FlaggedKeywords []string `json:"flagged_keywords,omitempty"`
	FlaggedPhrases  []string `json:"flagged_phrases,omitempty"`
}

// DefaultRules enables everything and configures no guardrails. They apply
// to users that have never saved AI settings.
func DefaultRules() DecisionRules {
	return DecisionRules{IsActive: true, ChatsEnabled: true, CommentsEnabled: true}
}

// RulesFromSettings converts stored settings.
func RulesFromSettings(s *domain.AISettings) DecisionRules {
	if s == nil {
		return DefaultRules()
	}
	return DecisionRules{
		IsActive:        s.IsActive,
		ChatsEnabled:    s.ChatsEnabled,
		CommentsEnabled: s.CommentsEnabled,
		FlaggedKeywords: s.FlaggedKeywords,
		FlaggedPhrases:  s.FlaggedPhrases,
	}
}

// EvalInput is one decision request.
type EvalInput struct {
	Text      string
	Context   domain.ContextType
	Rules     DecisionRules
	UserID    string
	SubjectID string // comment or message id, for the audit log
}

// Decision is the verdict of one evaluation.
type Decision struct {
	Verdict     domain.Verdict `json:"decision"`
	Confidence  float64        `json:"confidence"`
	Reason      string         `json:"reason"`
	MatchedRule string         `json:"matched_rule,omitempty"`
	DecisionID  string         `json:"decision_id,omitempty"`
}

// DecisionService evaluates the reply policy.
type DecisionService struct {
	DB *gorm.DB

	// Moderator is optional; nil skips the moderation step.
	Moderator Moderator
	// FlaggedAction is the verdict for moderated content: ignore or escalate.
	FlaggedAction domain.Verdict
	// ModerationFailure selects the outcome when the moderator errors.
	ModerationFailure FailurePolicy
}

// Evaluate decides and appends the decision to the audit log. When the log
// write fails the decision is still returned together with the error.
func (s *DecisionService) Evaluate(ctx context.Context, in EvalInput) (Decision, error) {
	tr := otel.Tracer("services/DecisionService")
	ctx, span := tr.Start(ctx, "Evaluate",
		trace.WithAttributes(
			attribute.String("user.id", in.UserID),
			attribute.String("context", string(in.Context)),
		),
	)
	defer span.End()

	if !in.Context.Valid() {
		return Decision{}, ErrInvalidContext
	}
	d := s.decide(ctx, in)
	span.SetAttributes(attribute.String("decision", string(d.Verdict)))

	rec := &domain.AIDecision{
		UserID:      in.UserID,
		ContextType: in.Context,
		SubjectID:   in.SubjectID,
		Message:     in.Text,
		Decision:    d.Verdict,
		Confidence:  d.Confidence,
		Reason:      d.Reason,
		MatchedRule: d.MatchedRule,
	}
	if err := repo.InsertDecision(ctx, s.DB, rec); err != nil {
		span.RecordError(err)
		return d, fmt.Errorf("log decision: %w", err)
	}
	d.DecisionID = rec.ID
	decisionsTotal.WithLabelValues(string(d.Verdict)).Inc()
	return d, nil
}

// DryRun runs the same pipeline as Evaluate without logging.
func (s *DecisionService) DryRun(ctx context.Context, in EvalInput) (Decision, error) {
	if strings.TrimSpace(in.Text) == "" {
		return Decision{}, ErrEmptyText
	}
	if !in.Context.Valid() {
		return Decision{}, ErrInvalidContext
	}
	return s.decide(ctx, in), nil
}

func (s *DecisionService) decide(ctx context.Context, in EvalInput) Decision {
	r := in.Rules

	// 1. scope toggle
	switch in.Context {
	case domain.ContextChat:
		if !r.ChatsEnabled {
			return Decision{Verdict: domain.VerdictIgnore, Confidence: confidenceCertain, Reason: ReasonChatsDisabled, MatchedRule: "scope:chat"}
		}
	case domain.ContextComment:
		if !r.CommentsEnabled {
			return Decision{Verdict: domain.VerdictIgnore, Confidence: confidenceCertain, Reason: ReasonCommentsDisabled, MatchedRule: "scope:comment"}
		}
	}

	// 2. master toggle
	if !r.IsActive {
		return Decision{Verdict: domain.VerdictIgnore, Confidence: confidenceCertain, Reason: ReasonMasterToggleOff, MatchedRule: "ai_control:off"}
	}

	// 3. nothing to answer: blank, emoji-only or media-only
	if !hasText(in.Text) {
		return Decision{Verdict: domain.VerdictIgnore, Confidence: confidenceCertain, Reason: ReasonNoText, MatchedRule: "content:empty"}
	}

	// 4. moderation
	if s.Moderator != nil {
		res, err := s.Moderator.Classify(ctx, in.Text)
		switch {
		case err != nil && s.ModerationFailure == FailClosed:
			return Decision{Verdict: domain.VerdictEscalate, Confidence: confidenceDegraded, Reason: ReasonModerationUnavailable, MatchedRule: "moderation:error"}
		case err != nil:
			// fail open: treated as not flagged
		case res.Flagged:
			cats := append([]string(nil), res.Categories...)
			sort.Strings(cats)
			verdict := domain.VerdictIgnore
			if s.FlaggedAction == domain.VerdictEscalate {
				verdict = domain.VerdictEscalate
			}
			label := strings.Join(cats, ",")
			if label == "" {
				label = "flagged"
			}
			return Decision{
				Verdict:     verdict,
				Confidence:  confidenceRule,
				Reason:      "moderation flagged: " + strings.Join(cats, ", "),
				MatchedRule: domain.Truncate("moderation:"+label, matchedRuleRunes),
			}
		}
	}

	// 5. guardrails
	if d, ok := matchGuardrails(in.Text, r); ok {
		return d
	}

	// 6. default
	return Decision{Verdict: domain.VerdictRespond, Confidence: confidenceCertain, Reason: ReasonNoBlockingRule}
}

// hasText reports whether text contains a letter or digit.
func hasText(text string) bool {
	return strings.IndexFunc(text, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsNumber(r) }) >= 0
}

// matchGuardrails checks single-word keywords first, then phrases. A
// configured keyword containing whitespace is matched as a phrase. Matching
// is a Unicode case-folded substring test.
func matchGuardrails(text string, r DecisionRules) (Decision, bool) {
	fold := cases.Fold()
	haystack := fold.String(text)

	var keywords, phrases []string
	for _, k := range r.FlaggedKeywords {
		k = strings.TrimSpace(k)
		switch {
		case k == "":
		case strings.IndexFunc(k, unicode.IsSpace) >= 0:
			phrases = append(phrases, k)
		default:
			keywords = append(keywords, k)
		}
	}
	for _, p := range r.FlaggedPhrases {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}

	for _, k := range keywords {
		if strings.Contains(haystack, fold.String(k)) {
			return Decision{
				Verdict:     domain.VerdictIgnore,
				Confidence:  confidenceRule,
				Reason:      ReasonFlaggedKeyword,
				MatchedRule: "flagged_keyword:" + domain.Truncate(k, matchedRuleRunes),
			}, true
		}
	}
	for _, p := range phrases {
		if strings.Contains(haystack, fold.String(p)) {
			return Decision{
				Verdict:     domain.VerdictIgnore,
				Confidence:  confidenceRule,
				Reason:      ReasonFlaggedPhrase,
				MatchedRule: "flagged_phrase:" + domain.Truncate(p, matchedRuleRunes),
			}, true
		}
	}
	return Decision{}, false
}
