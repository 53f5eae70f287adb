package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-engage-backend/internal/domain"
	"github.com/tbourn/go-engage-backend/internal/services"
)

// Engine is the polling pipeline as seen by operators.
type Engine interface {
	Tick(ctx context.Context) (services.TickReport, error)
	BuildReplyContext(ctx context.Context, commentID string) (services.ReplyContext, error)
	RetryReply(ctx context.Context, commentID string) (*domain.Comment, error)
	HideComment(ctx context.Context, commentID string) (*domain.Comment, error)
}

// Monitoring toggles and syncs monitored posts.
type Monitoring interface {
	Enable(ctx context.Context, postID string, customDays *int) (*domain.MonitoredPost, error)
	Disable(ctx context.Context, postID string) (*domain.MonitoredPost, error)
	SyncPosts(ctx context.Context, accountID string) (services.SyncReport, error)
}

// Decider runs the decision policy without logging.
type Decider interface {
	DryRun(ctx context.Context, in services.EvalInput) (services.Decision, error)
}

// Handlers groups the operator endpoints. db serves read-only views
// (diagnostics, stats, rule lookup for dry runs).
type Handlers struct {
	engine     Engine
	monitoring Monitoring
	decider    Decider
	db         *gorm.DB
}

// New constructs Handlers.
func New(engine Engine, monitoring Monitoring, decider Decider, db *gorm.DB) *Handlers {
	return &Handlers{engine: engine, monitoring: monitoring, decider: decider, db: db}
}

// operator identifies the caller for audit logs: the X-Operator header, or
// "operator" when absent.
func operator(c *gin.Context) string {
	if h := strings.TrimSpace(c.GetHeader("X-Operator")); h != "" {
		return h
	}
	return "operator"
}
