// Decision HTTP handlers.
//
//   - POST /decisions/dry-run  (evaluate text without logging)
//   - GET  /decisions/stats    (verdict counts per user, weak ETag)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-engage-backend/internal/domain"
	"github.com/tbourn/go-engage-backend/internal/repo"
	"github.com/tbourn/go-engage-backend/internal/services"
)

// DryRunRequest is the payload of a dry run. Rules, when present, replace
// the user's stored settings; otherwise the settings of UserID are used,
// falling back to defaults.
type DryRunRequest struct {
	Text        string                  `json:"text"         binding:"required" example:"Where can I buy this?"`
	ContextType string                  `json:"context_type" example:"comment"`
	UserID      string                  `json:"user_id,omitempty" example:"user123"`
	Rules       *services.DecisionRules `json:"rules,omitempty"`
}

// DecisionStatsResponse is the verdict breakdown of a user's decision log.
type DecisionStatsResponse struct {
	UserID string              `json:"user_id"`
	Since  *time.Time          `json:"since,omitempty"`
	Counts repo.DecisionCounts `json:"counts"`
	Total  int64               `json:"total"`
}

// DryRunDecision godoc
// @ID          dryRunDecision
// @Summary     Dry-run the decision policy
// @Description Evaluates text with the same pipeline as live triage. Nothing is written to the decision log.
// @Tags        Decisions
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.DryRunRequest  true  "Text and optional rules"
// @Success     200  {object}  services.Decision
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /decisions/dry-run [post]
func (h *Handlers) DryRunDecision(c *gin.Context) {
	var req DryRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text is required")
		return
	}
	ctxType := domain.ContextComment
	if s := strings.TrimSpace(req.ContextType); s != "" {
		ctxType = domain.ContextType(strings.ToLower(s))
	}

	rules := services.DefaultRules()
	switch {
	case req.Rules != nil:
		rules = *req.Rules
	case req.UserID != "" && h.db != nil:
		s, err := repo.GetAISettings(c.Request.Context(), h.db, req.UserID)
		switch {
		case err == nil:
			rules = services.RulesFromSettings(s)
		case !errors.Is(err, repo.ErrNotFound):
			failErr(c, err)
			return
		}
	}

	d, err := h.decider.DryRun(c.Request.Context(), services.EvalInput{
		Text:    req.Text,
		Context: ctxType,
		Rules:   rules,
		UserID:  req.UserID,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// DecisionStats godoc
// @ID          decisionStats
// @Summary     Decision counts for a user
// @Description Counts logged decisions by verdict. Supports a weak ETag via If-None-Match.
// @Tags        Decisions
// @Produce     json
// @Param       user_id        query   string  true   "User ID"
// @Param       since          query   string  false  "RFC3339 lower bound"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.DecisionStatsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /decisions/stats [get]
func (h *Handlers) DecisionStats(c *gin.Context) {
	ctx := c.Request.Context()
	uid := strings.TrimSpace(c.Query("user_id"))
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}
	var since *time.Time
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "since must be RFC3339")
			return
		}
		t = t.UTC()
		since = &t
	}

	count, maxTS, err := repo.DecisionsStats(ctx, h.db, uid)
	if err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"decisions:%s:%d:%d:%s"`, uid, count, ts, c.Query("since"))
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	counts, err := repo.CountDecisions(ctx, h.db, uid, since)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, DecisionStatsResponse{UserID: uid, Since: since, Counts: counts, Total: counts.Total()})
}
