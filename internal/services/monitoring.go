// Package services – MonitoringRegistry
//
// This file implements the per-post monitoring state machine:
//
//	UNMONITORED --Enable--> MONITORING --Disable / now > ends_at--> UNMONITORED
//
// While monitoring, next_check_at is always set and strictly later than
// last_check_at; when not monitoring it is NULL. Expiry is detected lazily at
// poll time.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-engage-backend/internal/connector"
	"github.com/tbourn/go-engage-backend/internal/domain"
	"github.com/tbourn/go-engage-backend/internal/repo"
)

const (
	defaultDurationDays = 7
	maxLastErrorRunes   = 1000
	minSyncFetch        = 25
)

// MonitoringRegistry owns post monitoring lifecycle and scheduling.
type MonitoringRegistry struct {
	DB         *gorm.DB
	Cadence    Cadence
	Connectors *connector.Registry

	// DefaultDurationDays applies when neither the caller nor the rules
	// give a duration.
	DefaultDurationDays int

	Now func() time.Time
	Log zerolog.Logger
}

func (r *MonitoringRegistry) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// SyncReport summarizes a post sync.
type SyncReport struct {
	Fetched     int      `json:"fetched"`
	Upserted    int      `json:"upserted"`
	AutoEnabled []string `json:"auto_enabled"`
}

// Enable starts monitoring postID. customDays overrides the configured
// duration when non-nil.
func (r *MonitoringRegistry) Enable(ctx context.Context, postID string, customDays *int) (*domain.MonitoredPost, error) {
	tr := otel.Tracer("services/MonitoringRegistry")
	ctx, span := tr.Start(ctx, "Enable", trace.WithAttributes(attribute.String("post.id", postID)))
	defer span.End()

	if customDays != nil && *customDays <= 0 {
		return nil, ErrInvalidDuration
	}
	post, err := repo.GetPost(ctx, r.DB, postID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}

	days := 0
	if customDays != nil {
		days = *customDays
	} else {
		days = r.rulesDuration(ctx, post)
	}

	now := r.now()
	ends := now.AddDate(0, 0, days)
	fields := map[string]any{
		"monitoring_enabled":    true,
		"monitoring_started_at": now,
		"monitoring_ends_at":    ends,
		"next_check_at":         now,
		"needs_attention":       false,
		"last_error":            "",
		"monitoring_epoch":      gorm.Expr("monitoring_epoch + 1"),
	}
	if err := repo.UpdatePost(ctx, r.DB, postID, fields); err != nil {
		return nil, err
	}
	r.Log.Info().Str("post_id", postID).Int("days", days).Msg("monitoring enabled")
	return repo.GetPost(ctx, r.DB, postID)
}

func (r *MonitoringRegistry) rulesDuration(ctx context.Context, post *domain.MonitoredPost) int {
	def := r.DefaultDurationDays
	if def <= 0 {
		def = defaultDurationDays
	}
	acc, err := repo.GetAccount(ctx, r.DB, post.SocialAccountID)
	if err != nil {
		return def
	}
	rules, err := repo.FindCommentRules(ctx, r.DB, acc.UserID, acc.ID)
	if err != nil || rules.MonitoringDurationDays <= 0 {
		return def
	}
	return rules.MonitoringDurationDays
}

// Disable stops monitoring postID and clears its schedule.
func (r *MonitoringRegistry) Disable(ctx context.Context, postID string) (*domain.MonitoredPost, error) {
	err := repo.UpdatePost(ctx, r.DB, postID, map[string]any{
		"monitoring_enabled": false,
		"next_check_at":      nil,
		"monitoring_epoch":   gorm.Expr("monitoring_epoch + 1"),
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Log.Info().Str("post_id", postID).Msg("monitoring disabled")
	return repo.GetPost(ctx, r.DB, postID)
}

// DuePosts returns monitoring posts with next_check_at <= now.
func (r *MonitoringRegistry) DuePosts(ctx context.Context, now time.Time, limit int) ([]domain.MonitoredPost, error) {
	return repo.DuePosts(ctx, r.DB, now.UTC(), limit)
}

// ExpireIfEnded stops monitoring when now is past monitoring_ends_at. It
// reports whether the post's window has ended, even when an operator changed
// its monitoring state in the meantime and nothing was written.
func (r *MonitoringRegistry) ExpireIfEnded(ctx context.Context, post *domain.MonitoredPost, now time.Time) (bool, error) {
	if post.MonitoringEndsAt == nil || !now.After(*post.MonitoringEndsAt) {
		return false, nil
	}
	return true, r.expire(ctx, post, now)
}

func (r *MonitoringRegistry) expire(ctx context.Context, post *domain.MonitoredPost, now time.Time) error {
	ok, err := repo.UpdateMonitoredPost(ctx, r.DB, post.ID, post.MonitoringEpoch, map[string]any{
		"monitoring_enabled": false,
		"next_check_at":      nil,
		"last_check_at":      now,
	})
	if err != nil {
		return err
	}
	if !ok {
		r.stateChanged(post)
		return nil
	}
	post.MonitoringEnabled = false
	post.NextCheckAt = nil
	post.LastCheckAt = &now
	r.Log.Info().Str("post_id", post.ID).Msg("monitoring window ended")
	return nil
}

// CompletePoll records a successful poll and schedules the next one.
func (r *MonitoringRegistry) CompletePoll(ctx context.Context, post *domain.MonitoredPost, now time.Time) error {
	return r.reschedule(ctx, post, now, map[string]any{
		"needs_attention": false,
		"last_error":      "",
	})
}

// RecordFailure records a failed poll. Transient failures only reschedule;
// permanent ones also flag the post for operator attention.
func (r *MonitoringRegistry) RecordFailure(ctx context.Context, post *domain.MonitoredPost, now time.Time, cause error) error {
	extra := map[string]any{}
	if needsAttention(cause) {
		extra["needs_attention"] = true
		extra["last_error"] = domain.Truncate(cause.Error(), maxLastErrorRunes)
	}
	return r.reschedule(ctx, post, now, extra)
}

// needsAttention reports whether a poll failure needs an operator: a
// platform error that retrying will not fix, or an account that cannot be
// polled at all.
func needsAttention(err error) bool {
	var ae *connector.APIError
	switch {
	case errors.As(err, &ae):
		return !ae.Transient()
	case errors.Is(err, ErrNoConnector), errors.Is(err, ErrAccountNotFound):
		return true
	}
	return false
}

func (r *MonitoringRegistry) reschedule(ctx context.Context, post *domain.MonitoredPost, now time.Time, extra map[string]any) error {
	now = now.UTC()
	if expired, err := r.ExpireIfEnded(ctx, post, now); expired || err != nil {
		return err
	}
	next, ok := r.Cadence.NextCheck(post.PostedAt, now, post.MonitoringEndsAt)
	if !ok {
		return r.expire(ctx, post, now)
	}
	extra["last_check_at"] = now
	extra["next_check_at"] = next
	ok, err := repo.UpdateMonitoredPost(ctx, r.DB, post.ID, post.MonitoringEpoch, extra)
	if err != nil {
		return err
	}
	if !ok {
		r.stateChanged(post)
		return nil
	}
	post.LastCheckAt = &now
	post.NextCheckAt = &next
	if v, ok := extra["needs_attention"].(bool); ok {
		post.NeedsAttention = v
	}
	if v, ok := extra["last_error"].(string); ok {
		post.LastError = v
	}
	return nil
}

// stateChanged is logged when a poll result is dropped because the post was
// disabled or re-enabled while it was being polled.
func (r *MonitoringRegistry) stateChanged(post *domain.MonitoredPost) {
	r.Log.Info().Str("post_id", post.ID).Int64("epoch", post.MonitoringEpoch).
		Msg("monitoring state changed during poll, result not scheduled")
}

// SyncPosts imports the account's recent platform posts and, when the
// account's rules enable it, starts monitoring the auto_monitor_count most
// recent posts that have never been monitored.
func (r *MonitoringRegistry) SyncPosts(ctx context.Context, accountID string) (SyncReport, error) {
	tr := otel.Tracer("services/MonitoringRegistry")
	ctx, span := tr.Start(ctx, "SyncPosts", trace.WithAttributes(attribute.String("account.id", accountID)))
	defer span.End()

	rep := SyncReport{AutoEnabled: []string{}}
	acc, err := repo.GetAccount(ctx, r.DB, accountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return rep, ErrAccountNotFound
		}
		return rep, err
	}
	if r.Connectors == nil {
		return rep, ErrNoConnector
	}
	conn, err := r.Connectors.For(*acc)
	if err != nil {
		return rep, fmt.Errorf("%w: %v", ErrNoConnector, err)
	}
	lister, ok := conn.(connector.PostLister)
	if !ok {
		return rep, ErrSyncNotSupported
	}

	var rules *domain.MonitoringRules
	rules, err = repo.FindCommentRules(ctx, r.DB, acc.UserID, acc.ID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return rep, err
	}

	fetch := minSyncFetch
	if rules != nil && rules.AutoMonitorCount > fetch {
		fetch = rules.AutoMonitorCount
	}
	remote, err := lister.ListRecentPosts(ctx, fetch)
	if err != nil {
		span.RecordError(err)
		return rep, err
	}
	rep.Fetched = len(remote)

	stored := make([]domain.MonitoredPost, 0, len(remote))
	for _, rp := range remote {
		p, err := repo.UpsertImportedPost(ctx, r.DB, domain.MonitoredPost{
			Platform:        acc.Platform,
			PlatformPostID:  rp.PlatformID,
			SocialAccountID: acc.ID,
			Caption:         rp.Caption,
			MediaURL:        rp.MediaURL,
			Permalink:       rp.Permalink,
			Source:          domain.SourceImported,
			PostedAt:        rp.PostedAt,
		})
		if err != nil {
			return rep, err
		}
		stored = append(stored, *p)
	}
	rep.Upserted = len(stored)

	if rules == nil || !rules.AutoMonitorEnabled || rules.AutoMonitorCount <= 0 {
		return rep, nil
	}
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].PostedAt.After(stored[j].PostedAt) })
	if len(stored) > rules.AutoMonitorCount {
		stored = stored[:rules.AutoMonitorCount]
	}
	for _, p := range stored {
		if p.MonitoringEnabled || p.MonitoringStartedAt != nil {
			continue
		}
		if _, err := r.Enable(ctx, p.ID, nil); err != nil {
			return rep, err
		}
		rep.AutoEnabled = append(rep.AutoEnabled, p.ID)
	}
	r.Log.Info().Str("account_id", acc.ID).Int("fetched", rep.Fetched).Int("auto_enabled", len(rep.AutoEnabled)).Msg("posts synced")
	return rep, nil
}
