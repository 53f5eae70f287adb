// Post HTTP handlers.
//
//   - PUT  /posts/{id}/monitoring   (enable or disable polling)
//   - GET  /posts/{id}/diagnostics  (state, checkpoint, triage, recent decisions)
//   - POST /accounts/{id}/sync      (import recent posts, auto-monitor)
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-engage-backend/internal/domain"
	"github.com/tbourn/go-engage-backend/internal/http/middleware"
	"github.com/tbourn/go-engage-backend/internal/repo"
	"github.com/tbourn/go-engage-backend/internal/services"
	"github.com/tbourn/go-engage-backend/internal/utils"
)

// SetMonitoringRequest toggles monitoring. DurationDays overrides the
// account's rules when enabling.
type SetMonitoringRequest struct {
	Enabled      *bool `json:"enabled"                 binding:"required" example:"true"`
	DurationDays *int  `json:"duration_days,omitempty" example:"14"`
}

// DiagnosticsResponse is the operator view of one monitored post.
type DiagnosticsResponse struct {
	Post            domain.MonitoredPost `json:"post"`
	Checkpoint      domain.Checkpoint    `json:"checkpoint"`
	Comments        int64                `json:"comments"`
	Triage          map[string]int64     `json:"triage"`
	RecentDecisions []domain.AIDecision  `json:"recent_decisions"`
}

// SetMonitoring godoc
// @ID          setMonitoring
// @Summary     Enable or disable monitoring of a post
// @Description Enabling starts a new window (custom duration, then the account's rules, then the default) and schedules an immediate check. Disabling clears the schedule.
// @Tags        Posts
// @Accept      json
// @Produce     json
// @Param       id    path  string                           true  "Post ID"
// @Param       body  body  handlers.SetMonitoringRequest    true  "Monitoring toggle"
// @Success     200  {object}  domain.MonitoredPost
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Post not found"
// @Router      /posts/{id}/monitoring [put]
func (h *Handlers) SetMonitoring(c *gin.Context) {
	var req SetMonitoringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "enabled is required")
		return
	}
	id := c.Param("id")
	ctx := c.Request.Context()
	middleware.LoggerFrom(c).Info().
		Str("operator", operator(c)).
		Str("post_id", id).
		Bool("enabled", *req.Enabled).
		Msg("monitoring toggled")

	var (
		post *domain.MonitoredPost
		err  error
	)
	if *req.Enabled {
		post, err = h.monitoring.Enable(ctx, id, req.DurationDays)
	} else {
		post, err = h.monitoring.Disable(ctx, id)
	}
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, post)
}

// PostDiagnostics godoc
// @ID          postDiagnostics
// @Summary     Diagnostics for a monitored post
// @Description Returns the post's monitoring state and error flag, its checkpoint, comment counts by triage verdict and the most recent decisions. Supports a weak ETag via If-None-Match.
// @Tags        Posts
// @Produce     json
// @Param       id             path    string  true   "Post ID"
// @Param       decisions      query   int     false  "Recent decisions to include"  minimum(0) maximum(100) default(20)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.DiagnosticsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Post not found"
// @Router      /posts/{id}/diagnostics [get]
func (h *Handlers) PostDiagnostics(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	limit := utils.IntInRange(c.Query("decisions"), 20, 0, 100)

	post, err := repo.GetPost(ctx, h.db, id)
	if errors.Is(err, repo.ErrNotFound) {
		failErr(c, fmt.Errorf("%w: %s", services.ErrPostNotFound, id))
		return
	}
	if err != nil {
		failErr(c, err)
		return
	}
	cp, err := repo.LoadCheckpoint(ctx, h.db, id)
	if err != nil {
		failErr(c, err)
		return
	}

	count, maxTS, err := repo.PostCommentsStats(ctx, h.db, id)
	if err != nil {
		failErr(c, err)
		return
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	etag := fmt.Sprintf(`W/"post:%s:%d:%d:%d:%d:%d"`, id, post.UpdatedAt.UnixNano(), cp.Sequence, count, ts, limit)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}

	triage, err := repo.TriageCounts(ctx, h.db, id)
	if err != nil {
		failErr(c, err)
		return
	}
	decisions := []domain.AIDecision{}
	if limit > 0 && count > 0 {
		comments, err := repo.ListPostComments(ctx, h.db, id)
		if err != nil {
			failErr(c, err)
			return
		}
		ids := make([]string, len(comments))
		for i, cm := range comments {
			ids[i] = cm.ID
		}
		if decisions, err = repo.ListDecisionsForSubjects(ctx, h.db, ids, limit); err != nil {
			failErr(c, err)
			return
		}
	}

	ok(c, http.StatusOK, DiagnosticsResponse{
		Post:            *post,
		Checkpoint:      cp,
		Comments:        count,
		Triage:          triage,
		RecentDecisions: decisions,
	})
}

// SyncAccount godoc
// @ID          syncAccount
// @Summary     Sync an account's recent posts
// @Description Imports the account's most recent posts and, when the account's rules ask for it, enables monitoring on the newest ones that were never monitored.
// @Tags        Accounts
// @Produce     json
// @Param       id   path  string  true  "Social account ID"
// @Success     200  {object}  services.SyncReport
// @Failure     404  {object}  handlers.ErrorResponse  "Account not found"
// @Failure     501  {object}  handlers.ErrorResponse  "Platform cannot list posts"
// @Failure     502  {object}  handlers.ErrorResponse  "Platform error"
// @Router      /accounts/{id}/sync [post]
func (h *Handlers) SyncAccount(c *gin.Context) {
	id := c.Param("id")
	middleware.LoggerFrom(c).Info().Str("operator", operator(c)).Str("account_id", id).Msg("account sync requested")

	rep, err := h.monitoring.SyncPosts(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}
