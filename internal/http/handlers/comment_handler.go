// Comment HTTP handlers.
//
//   - GET  /comments/{id}/reply-context  (exact responder input)
//   - POST /comments/{id}/reply/retry    (manual retry of a failed reply)
//   - POST /comments/{id}/hide           (hide on the platform)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-engage-backend/internal/http/middleware"
)

// GetReplyContext godoc
// @ID          getReplyContext
// @Summary     Show the responder context for a comment
// @Description Returns the exact object the responder receives for this comment: comment, post and thread.
// @Tags        Comments
// @Produce     json
// @Param       id   path  string  true  "Comment ID"
// @Success     200  {object}  services.ReplyContext
// @Failure     404  {object}  handlers.ErrorResponse  "Comment not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /comments/{id}/reply-context [get]
func (h *Handlers) GetReplyContext(c *gin.Context) {
	rc, err := h.engine.BuildReplyContext(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rc)
}

// RetryReply godoc
// @ID          retryReply
// @Summary     Retry a failed reply
// @Description Reopens a failed reply claim and dispatches the reply again. Only comments whose last reply attempt failed are eligible.
// @Tags        Comments
// @Produce     json
// @Param       id   path  string  true  "Comment ID"
// @Success     200  {object}  domain.Comment
// @Failure     404  {object}  handlers.ErrorResponse  "Comment not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Reply is not retryable"
// @Failure     502  {object}  handlers.ErrorResponse  "Platform rejected the reply"
// @Router      /comments/{id}/reply/retry [post]
func (h *Handlers) RetryReply(c *gin.Context) {
	id := c.Param("id")
	middleware.LoggerFrom(c).Info().Str("operator", operator(c)).Str("comment_id", id).Msg("reply retry requested")

	cm, err := h.engine.RetryReply(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cm)
}

// HideComment godoc
// @ID          hideComment
// @Summary     Hide a comment
// @Description Hides the comment on the platform and marks it hidden. Hiding an already hidden comment is a no-op.
// @Tags        Comments
// @Produce     json
// @Param       id   path  string  true  "Comment ID"
// @Success     200  {object}  domain.Comment
// @Failure     404  {object}  handlers.ErrorResponse  "Comment not found"
// @Failure     501  {object}  handlers.ErrorResponse  "Platform cannot hide comments"
// @Router      /comments/{id}/hide [post]
func (h *Handlers) HideComment(c *gin.Context) {
	id := c.Param("id")
	middleware.LoggerFrom(c).Info().Str("operator", operator(c)).Str("comment_id", id).Msg("hide requested")

	cm, err := h.engine.HideComment(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cm)
}
