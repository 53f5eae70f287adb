package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-engage-backend/internal/domain"
	"github.com/tbourn/go-engage-backend/internal/repo"
)

// Gate reasons.
const (
	GateCommentsEnabled   = "comments_enabled"
	GateCommentsDisabled  = "comments_disabled"
	GateDefaultEnabled    = "default_enabled"
	GateChatEnabled       = "chat_enabled"
	GateConversationOff   = "conversation_ai_off"
	GateNoConversation    = "conversation_not_found"
	GateAIInactive        = "ai_inactive"
	GateLookupFailedOpen  = "rules_lookup_failed_fail_open"
	GateLookupFailedClose = "rules_lookup_failed_fail_closed"
)

// GateRequest identifies the scope being checked.
type GateRequest struct {
	Context         domain.ContextType
	UserID          string
	SocialAccountID string // comment context
	ConversationID  string // chat context
}

// GateResult is the outcome of a scope check.
type GateResult struct {
	ShouldReply  bool     `json:"should_reply"`
	Reason       string   `json:"reason"`
	MatchedRules []string `json:"matched_rules"`
}

// AutomationGate decides whether automation is enabled for a scope.
type AutomationGate struct {
	DB *gorm.DB
	// OnLookupError is applied when a datastore read fails. The zero value
	// is FailOpen.
	OnLookupError FailurePolicy
	Log           zerolog.Logger
}

// ShouldProcess resolves the enable flag for req.
func (g *AutomationGate) ShouldProcess(ctx context.Context, req GateRequest) (GateResult, error) {
	tr := otel.Tracer("services/AutomationGate")
	ctx, span := tr.Start(ctx, "ShouldProcess",
		trace.WithAttributes(
			attribute.String("context", string(req.Context)),
			attribute.String("user.id", req.UserID),
		),
	)
	defer span.End()

	switch req.Context {
	case domain.ContextComment:
		return g.commentScope(ctx, req), nil
	case domain.ContextChat:
		return g.chatScope(ctx, req), nil
	default:
		return GateResult{}, ErrInvalidContext
	}
}

func (g *AutomationGate) commentScope(ctx context.Context, req GateRequest) GateResult {
	rules, err := repo.FindCommentRules(ctx, g.DB, req.UserID, req.SocialAccountID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return GateResult{ShouldReply: true, Reason: GateDefaultEnabled, MatchedRules: []string{}}
	case err != nil:
		return g.lookupFailed(err, req)
	}

	scope := "user"
	if rules.SocialAccountID != nil {
		scope = "account"
	}
	res := GateResult{
		ShouldReply:  rules.AIEnabledForComments,
		Reason:       GateCommentsEnabled,
		MatchedRules: []string{"monitoring_rules:" + scope + ":" + rules.ID},
	}
	if !rules.AIEnabledForComments {
		res.Reason = GateCommentsDisabled
	}
	return res
}

func (g *AutomationGate) chatScope(ctx context.Context, req GateRequest) GateResult {
	conv, err := repo.GetConversation(ctx, g.DB, req.ConversationID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return GateResult{ShouldReply: false, Reason: GateNoConversation, MatchedRules: []string{}}
	case err != nil:
		return g.lookupFailed(err, req)
	}
	matched := []string{"conversation:" + string(conv.AIMode)}
	if conv.AIMode == domain.AIModeOff || conv.AIMode == "" {
		return GateResult{ShouldReply: false, Reason: GateConversationOff, MatchedRules: matched}
	}

	settings, err := repo.GetAISettings(ctx, g.DB, req.UserID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		settings = nil
	case err != nil:
		return g.lookupFailed(err, req)
	}
	if !RulesFromSettings(settings).IsActive {
		return GateResult{ShouldReply: false, Reason: GateAIInactive, MatchedRules: append(matched, "ai_settings:inactive")}
	}
	return GateResult{ShouldReply: true, Reason: GateChatEnabled, MatchedRules: append(matched, "ai_settings:active")}
}

func (g *AutomationGate) lookupFailed(err error, req GateRequest) GateResult {
	g.Log.Warn().Err(err).
		Str("context", string(req.Context)).
		Str("user_id", req.UserID).
		Str("policy", g.OnLookupError.String()).
		Msg("automation rules lookup failed")
	if g.OnLookupError == FailClosed {
		return GateResult{ShouldReply: false, Reason: GateLookupFailedClose, MatchedRules: []string{"fail_closed"}}
	}
	return GateResult{ShouldReply: true, Reason: GateLookupFailedOpen, MatchedRules: []string{"fail_open"}}
}
