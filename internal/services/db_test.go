package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-engage-backend/internal/connector"
	"github.com/tbourn/go-engage-backend/internal/domain"
	"github.com/tbourn/go-engage-backend/internal/repo"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedAccount(t *testing.T, db *gorm.DB, id, username string) *domain.SocialAccount {
	t.Helper()
	a := &domain.SocialAccount{
		ID:                id,
		UserID:            "u1",
		Platform:          "instagram",
		PlatformAccountID: "ig-" + id,
		Username:          username,
		Status:            "active",
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return a
}

// seedDuePost stores a post that is being monitored and due at base.
func seedDuePost(t *testing.T, db *gorm.DB, id, accountID string, mutate func(*domain.MonitoredPost)) *domain.MonitoredPost {
	t.Helper()
	started := base.Add(-time.Hour)
	ends := base.AddDate(0, 0, 7)
	next := base.Add(-time.Minute)
	p := &domain.MonitoredPost{
		ID:                  id,
		Platform:            "instagram",
		PlatformPostID:      "ig-" + id,
		SocialAccountID:     accountID,
		Caption:             "New drop, link in bio",
		Source:              domain.SourceScheduled,
		PostedAt:            base.Add(-2 * time.Hour),
		MonitoringEnabled:   true,
		MonitoringStartedAt: &started,
		MonitoringEndsAt:    &ends,
		NextCheckAt:         &next,
	}
	if mutate != nil {
		mutate(p)
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed post %s: %v", id, err)
	}
	return p
}

func seedRules(t *testing.T, db *gorm.DB, r domain.MonitoringRules) {
	t.Helper()
	if r.UserID == "" {
		r.UserID = "u1"
	}
	if err := db.Create(&r).Error; err != nil {
		t.Fatalf("seed rules: %v", err)
	}
}

func strPtr(s string) *string { return &s }

func remote(id, author, text, parent string, at time.Time) connector.RemoteComment {
	return connector.RemoteComment{
		PlatformID: id,
		ParentID:   parent,
		AuthorName: author,
		AuthorID:   "id-" + author,
		Text:       text,
		CreatedAt:  at,
	}
}

type sentReply struct {
	CommentPlatformID string
	Text              string
}

// fakeConn is an in-memory platform. list defaults to an empty page.
type fakeConn struct {
	connector.Unsupported

	mu       sync.Mutex
	list     func(postPlatformID, cursor string) (connector.CommentPage, error)
	calls    []string
	replyErr error
	replies  []sentReply
	posts    []connector.RemotePost
}

func (f *fakeConn) Platform() string { return "instagram" }

func (f *fakeConn) ListNewComments(_ context.Context, postPlatformID, cursor string) (connector.CommentPage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, postPlatformID+"|"+cursor)
	list := f.list
	f.mu.Unlock()
	if list == nil {
		return connector.CommentPage{}, nil
	}
	return list(postPlatformID, cursor)
}

func (f *fakeConn) ReplyToComment(_ context.Context, commentPlatformID, text string) (connector.ReplyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return connector.ReplyResult{}, f.replyErr
	}
	f.replies = append(f.replies, sentReply{CommentPlatformID: commentPlatformID, Text: text})
	return connector.ReplyResult{ReplyID: "r-" + commentPlatformID}, nil
}

func (f *fakeConn) ListRecentPosts(_ context.Context, limit int) ([]connector.RemotePost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.posts) > limit {
		return f.posts[:limit], nil
	}
	return f.posts, nil
}

func (f *fakeConn) sent() []sentReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentReply(nil), f.replies...)
}

func registryFor(c connector.Connector) *connector.Registry {
	reg := connector.NewRegistry()
	reg.Register("instagram", func(domain.SocialAccount) (connector.Connector, error) { return c, nil })
	return reg
}

type fakeResponder struct {
	mu   sync.Mutex
	err  error
	seen []ReplyContext
}

func (r *fakeResponder) GenerateReply(_ context.Context, rc ReplyContext) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, rc)
	if r.err != nil {
		return "", r.err
	}
	return "Thanks @" + rc.AuthorName + "!", nil
}

type fakeModerator struct {
	res   ModerationResult
	err   error
	calls int
}

func (m *fakeModerator) Classify(context.Context, string) (ModerationResult, error) {
	m.calls++
	return m.res, m.err
}

// newOrchestrator wires a full pipeline around conn with a clock fixed at
// *now.
func newOrchestrator(db *gorm.DB, conn connector.Connector, resp Responder, now *time.Time) *Orchestrator {
	clock := func() time.Time { return *now }
	reg := registryFor(conn)
	return &Orchestrator{
		DB: db,
		Registry: &MonitoringRegistry{
			DB:         db,
			Cadence:    DefaultCadence(),
			Connectors: reg,
			Now:        clock,
			Log:        zerolog.Nop(),
		},
		Connectors:  reg,
		Gate:        &AutomationGate{DB: db, Log: zerolog.Nop()},
		Triage:      TriageFilter{Log: zerolog.Nop()},
		Decisions:   &DecisionService{DB: db, FlaggedAction: domain.VerdictIgnore},
		Responder:   resp,
		PostTimeout: 5 * time.Second,
		Workers:     2,
		Now:         clock,
		Log:         zerolog.Nop(),
	}
}
