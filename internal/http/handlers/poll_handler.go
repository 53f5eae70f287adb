package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-engage-backend/internal/http/middleware"
)

// ForcePoll godoc
// @ID          forcePoll
// @Summary     Run a poll tick now
// @Description Runs the polling pipeline synchronously and returns the tick report. Fails with 409 while another tick is running.
// @Tags        Polls
// @Produce     json
// @Success     200  {object}  services.TickReport
// @Failure     409  {object}  handlers.ErrorResponse  "Tick in progress"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls [post]
func (h *Handlers) ForcePoll(c *gin.Context) {
	middleware.LoggerFrom(c).Info().Str("operator", operator(c)).Msg("force poll requested")

	rep, err := h.engine.Tick(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}
