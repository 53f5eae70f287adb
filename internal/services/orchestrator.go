// Package services – Orchestrator
//
// One Tick polls every due post through a bounded worker pool:
//
//	fetch → (ingest + checkpoint advance in one tx) → triage untriaged
//	comments oldest first → dispatch replies for RESPOND verdicts
//
// A failing post is recorded on its own row and never aborts the tick.
// Overlapping ticks are rejected with ErrTickInProgress.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-engage-backend/internal/connector"
	"github.com/tbourn/go-engage-backend/internal/domain"
	"github.com/tbourn/go-engage-backend/internal/repo"
)

const (
	defaultPostTimeout = 15 * time.Second
	defaultWorkers     = 4
	defaultBatchSize   = 100
	bookkeepingTimeout = 5 * time.Second
	maxReplyErrorRunes = 1000

	defaultReplyRescanParents = 10
	defaultReplyRescanWindow  = 72 * time.Hour
)

// Post poll outcomes.
const (
	OutcomeOK             = "ok"
	OutcomePartial        = "partial"
	OutcomeTransientError = "transient_error"
	OutcomePermanentError = "permanent_error"
	OutcomeExpired        = "expired"
	OutcomeSkipped        = "skipped"
)

var (
	errNoResponder = errors.New("no responder configured")
	errEmptyReply  = errors.New("responder returned empty text")
)

// PostReport describes one post within a tick.
type PostReport struct {
	PostID        string `json:"post_id"`
	Outcome       string `json:"outcome"`
	Ingested      int64  `json:"ingested"`
	Triaged       int    `json:"triaged"`
	RepliesSent   int    `json:"replies_sent"`
	RepliesFailed int    `json:"replies_failed"`
	Error         string `json:"error,omitempty"`
}

// TickReport summarizes one Tick.
type TickReport struct {
	StartedAt      time.Time    `json:"started_at"`
	DurationMS     int64        `json:"duration_ms"`
	PostsDue       int          `json:"posts_due"`
	Ingested       int64        `json:"comments_ingested"`
	Triaged        int          `json:"comments_triaged"`
	RepliesSent    int          `json:"replies_sent"`
	RepliesFailed  int          `json:"replies_failed"`
	BudgetExceeded bool         `json:"budget_exceeded"`
	Posts          []PostReport `json:"posts"`
}

func (r *TickReport) add(p PostReport) {
	r.Ingested += p.Ingested
	r.Triaged += p.Triaged
	r.RepliesSent += p.RepliesSent
	r.RepliesFailed += p.RepliesFailed
	r.Posts = append(r.Posts, p)
}

// Orchestrator runs the polling pipeline. All collaborators are injected.
type Orchestrator struct {
	DB         *gorm.DB
	Registry   *MonitoringRegistry
	Connectors *connector.Registry
	Gate       *AutomationGate
	Triage     TriageFilter
	Decisions  *DecisionService
	Responder  Responder

	TickBudget  time.Duration // 0 disables the tick deadline
	PostTimeout time.Duration
	Workers     int
	BatchSize   int

	// ReplyRescanParents bounds how many recent top-level comments have
	// their replies re-read per poll; negative disables the rescan.
	// ReplyRescanWindow is how far back a parent may have been posted.
	ReplyRescanParents int
	ReplyRescanWindow  time.Duration

	Now func() time.Time
	Log zerolog.Logger

	running atomic.Bool
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

// Run ticks immediately and then every interval until ctx ends.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", interval)
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		rep, err := o.Tick(ctx)
		switch {
		case errors.Is(err, ErrTickInProgress):
			o.Log.Debug().Msg("previous tick still running, skipping")
		case err != nil:
			o.Log.Error().Err(err).Msg("poll tick failed")
		default:
			o.Log.Info().
				Int("posts_due", rep.PostsDue).
				Int64("ingested", rep.Ingested).
				Int("triaged", rep.Triaged).
				Int("replies_sent", rep.RepliesSent).
				Int64("duration_ms", rep.DurationMS).
				Msg("poll tick complete")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Tick polls every due post once. It is also the force-poll entry point.
func (o *Orchestrator) Tick(ctx context.Context) (TickReport, error) {
	if !o.running.CompareAndSwap(false, true) {
		ticksTotal.WithLabelValues("skipped_overlap").Inc()
		return TickReport{}, ErrTickInProgress
	}
	defer o.running.Store(false)

	tr := otel.Tracer("services/Orchestrator")
	ctx, span := tr.Start(ctx, "Tick")
	defer span.End()

	start := o.now()
	rep := TickReport{StartedAt: start, Posts: []PostReport{}}

	if o.TickBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.TickBudget)
		defer cancel()
	}

	batch := o.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	posts, err := o.Registry.DuePosts(ctx, start, batch)
	if err != nil {
		span.RecordError(err)
		return rep, fmt.Errorf("load due posts: %w", err)
	}
	rep.PostsDue = len(posts)
	span.SetAttributes(attribute.Int("posts.due", len(posts)))

	workers := o.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(workers)
	for i := range posts {
		post := posts[i]
		g.Go(func() error {
			pr := o.pollPost(ctx, &post)
			postPollsTotal.WithLabelValues(pr.Outcome).Inc()
			mu.Lock()
			rep.add(pr)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	rep.DurationMS = elapsed.Milliseconds()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		rep.BudgetExceeded = true
		ticksTotal.WithLabelValues("budget_exceeded").Inc()
		o.Log.Warn().Dur("budget", o.TickBudget).Msg("poll tick exceeded its budget")
	} else {
		ticksTotal.WithLabelValues("completed").Inc()
	}
	tickDuration.Observe(elapsed.Seconds())
	commentsIngestedTotal.Add(float64(rep.Ingested))
	return rep, nil
}

// pollPost runs the full pipeline for one post and never panics the tick
// on platform errors.
func (o *Orchestrator) pollPost(tickCtx context.Context, post *domain.MonitoredPost) PostReport {
	pr := PostReport{PostID: post.ID}
	log := o.Log.With().Str("post_id", post.ID).Logger()

	if tickCtx.Err() != nil {
		pr.Outcome = OutcomeSkipped
		return pr
	}

	timeout := o.PostTimeout
	if timeout <= 0 {
		timeout = defaultPostTimeout
	}
	ctx, cancel := context.WithTimeout(tickCtx, timeout)
	defer cancel()
	ctx = log.WithContext(ctx)

	tr := otel.Tracer("services/Orchestrator")
	ctx, span := tr.Start(ctx, "pollPost", trace.WithAttributes(attribute.String("post.id", post.ID)))
	defer span.End()

	now := o.now()
	expired, err := o.Registry.ExpireIfEnded(ctx, post, now)
	if err != nil {
		pr.Outcome, pr.Error = OutcomeTransientError, err.Error()
		return pr
	}
	if expired {
		pr.Outcome = OutcomeExpired
		return pr
	}

	fail := func(err error) PostReport {
		span.RecordError(err)
		pr.Error = err.Error()
		pr.Outcome = OutcomeTransientError
		if needsAttention(err) {
			pr.Outcome = OutcomePermanentError
			log.Error().Err(err).Msg("post needs operator attention")
		} else {
			log.Warn().Err(err).Msg("post poll failed, will retry next check")
		}
		book, cancel := detached(ctx)
		defer cancel()
		if rerr := o.Registry.RecordFailure(book, post, now, err); rerr != nil {
			log.Error().Err(rerr).Msg("record poll failure")
		}
		return pr
	}

	acc, err := repo.GetAccount(ctx, o.DB, post.SocialAccountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			err = ErrAccountNotFound
		}
		return fail(err)
	}
	conn, err := o.Connectors.For(*acc)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrNoConnector, err))
	}

	cp, err := repo.LoadCheckpoint(ctx, o.DB, post.ID)
	if err != nil {
		return fail(err)
	}

	page, fetchErr := conn.ListNewComments(ctx, post.PlatformPostID, cp.LastCursor)
	if fetchErr != nil && !page.Partial {
		return fail(fetchErr)
	}

	n, err := o.ingest(ctx, post.ID, cp, page)
	if err != nil {
		return fail(err)
	}
	pr.Ingested = n
	pr.Ingested += o.refreshReplies(ctx, post.ID, conn, now, log)

	o.processComments(ctx, post, acc, conn, &pr, log)

	book, cancelBook := detached(ctx)
	defer cancelBook()
	if fetchErr != nil {
		pr.Outcome = OutcomePartial
		pr.Error = fetchErr.Error()
		log.Warn().Err(fetchErr).Int("comments", len(page.Comments)).Msg("partial comment fetch")
		if rerr := o.Registry.RecordFailure(book, post, now, fetchErr); rerr != nil {
			log.Error().Err(rerr).Msg("record poll failure")
		}
		return pr
	}
	pr.Outcome = OutcomeOK
	if err := o.Registry.CompletePoll(book, post, now); err != nil {
		log.Error().Err(err).Msg("schedule next check")
	}
	return pr
}

// ingest stores the page and advances the checkpoint in one transaction.
// A failure leaves the previous checkpoint untouched.
func (o *Orchestrator) ingest(ctx context.Context, postID string, cp domain.Checkpoint, page connector.CommentPage) (int64, error) {
	if len(page.Comments) == 0 && page.NextCursor == "" {
		return 0, nil
	}
	rows := make([]domain.Comment, 0, len(page.Comments))
	var latest *time.Time
	for _, rc := range page.Comments {
		c := remoteToComment(postID, rc)
		if latest == nil || c.CommentedAt.After(*latest) {
			t := c.CommentedAt
			latest = &t
		}
		rows = append(rows, c)
	}

	var inserted int64
	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := repo.InsertCommentsIfNotExists(ctx, tx, rows)
		if err != nil {
			return fmt.Errorf("insert comments: %w", err)
		}
		if _, err := repo.AdvanceCheckpoint(ctx, tx, cp, page.NextCursor, latest); err != nil {
			return fmt.Errorf("advance checkpoint: %w", err)
		}
		inserted = n
		return nil
	})
	return inserted, err
}

// refreshReplies re-reads the replies of recent top-level comments. Replies
// to a parent that is already behind the checkpoint cursor never show up in
// ListNewComments again. Failures are logged and leave the poll outcome
// alone; the next poll tries again.
func (o *Orchestrator) refreshReplies(ctx context.Context, postID string, conn connector.Connector, now time.Time, log zerolog.Logger) int64 {
	lister, ok := conn.(connector.ReplyLister)
	if !ok || o.ReplyRescanParents < 0 {
		return 0
	}
	limit := o.ReplyRescanParents
	if limit == 0 {
		limit = defaultReplyRescanParents
	}
	window := o.ReplyRescanWindow
	if window <= 0 {
		window = defaultReplyRescanWindow
	}
	parents, err := repo.ListRecentParents(ctx, o.DB, postID, now.Add(-window), limit)
	if err != nil {
		log.Error().Err(err).Msg("list recent parents")
		return 0
	}

	var total int64
	for _, p := range parents {
		if ctx.Err() != nil {
			break
		}
		replies, err := lister.ListReplies(ctx, p.PlatformCommentID)
		if err != nil {
			log.Warn().Err(err).Str("parent", p.PlatformCommentID).Msg("reply rescan failed")
			break
		}
		rows := make([]domain.Comment, 0, len(replies))
		for _, rc := range replies {
			rows = append(rows, remoteToComment(postID, rc))
		}
		n, err := repo.InsertCommentsIfNotExists(ctx, o.DB, rows)
		if err != nil {
			log.Error().Err(err).Msg("insert rescanned replies")
			break
		}
		total += n
	}
	if total > 0 {
		log.Debug().Int64("replies", total).Msg("late replies ingested")
	}
	return total
}

func remoteToComment(postID string, rc connector.RemoteComment) domain.Comment {
	c := domain.Comment{
		PostID:            postID,
		PlatformCommentID: rc.PlatformID,
		AuthorName:        rc.AuthorName,
		AuthorID:          rc.AuthorID,
		Text:              rc.Text,
		LikeCount:         rc.LikeCount,
		CommentedAt:       rc.CreatedAt.UTC(),
	}
	if rc.ParentID != "" {
		p := rc.ParentID
		c.ParentID = &p
	}
	return c
}

// processComments triages the post's untriaged comments oldest first.
func (o *Orchestrator) processComments(ctx context.Context, post *domain.MonitoredPost, acc *domain.SocialAccount, conn connector.Connector, pr *PostReport, log zerolog.Logger) {
	pending, err := repo.ListUntriaged(ctx, o.DB, post.ID)
	if err != nil {
		log.Error().Err(err).Msg("list untriaged comments")
		return
	}
	if len(pending) == 0 {
		return
	}
	thread, err := repo.ListPostComments(ctx, o.DB, post.ID)
	if err != nil {
		log.Error().Err(err).Msg("load thread")
		return
	}
	for _, c := range pending {
		if ctx.Err() != nil {
			log.Warn().Int("remaining", len(pending)).Msg("post deadline reached, deferring triage")
			return
		}
		verdict, ok := o.triageComment(ctx, acc, c, thread, log)
		if !ok {
			continue
		}
		pr.Triaged++
		if verdict != domain.VerdictRespond {
			continue
		}
		if o.dispatchReply(ctx, post, acc, conn, c, thread, log) {
			pr.RepliesSent++
		} else {
			pr.RepliesFailed++
		}
	}
}

// triageComment runs gate → triage filter → decision and persists the
// verdict. ok is false when the comment stays untriaged for the next tick or
// was triaged concurrently.
func (o *Orchestrator) triageComment(ctx context.Context, acc *domain.SocialAccount, c domain.Comment, thread []domain.Comment, log zerolog.Logger) (domain.Verdict, bool) {
	log = log.With().Str("comment_id", c.ID).Logger()
	set := func(v domain.Verdict, reason string, decisionID *string) (domain.Verdict, bool) {
		won, err := repo.SetTriage(ctx, o.DB, c.ID, v, reason, decisionID)
		if err != nil {
			log.Error().Err(err).Msg("persist triage")
			return "", false
		}
		return v, won
	}

	gate, err := o.Gate.ShouldProcess(ctx, GateRequest{
		Context:         domain.ContextComment,
		UserID:          acc.UserID,
		SocialAccountID: acc.ID,
	})
	if err != nil {
		log.Error().Err(err).Msg("automation gate")
		return "", false
	}
	if !gate.ShouldReply {
		return set(domain.VerdictIgnore, gate.Reason, nil)
	}

	if res := o.Triage.ShouldRespond(c, acc.Username, thread); !res.Continue {
		return set(domain.VerdictIgnore, res.Reason, nil)
	}

	settings, err := repo.GetAISettings(ctx, o.DB, acc.UserID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		log.Warn().Err(err).Msg("ai settings lookup failed, leaving comment untriaged")
		return "", false
	}
	if err != nil {
		settings = nil
	}

	d, err := o.Decisions.Evaluate(ctx, EvalInput{
		Text:      c.Text,
		Context:   domain.ContextComment,
		Rules:     RulesFromSettings(settings),
		UserID:    acc.UserID,
		SubjectID: c.ID,
	})
	if err != nil {
		log.Error().Err(err).Msg("decision not logged, leaving comment untriaged")
		return "", false
	}
	id := d.DecisionID
	return set(d.Verdict, d.Reason, &id)
}

// dispatchReply claims the comment and sends one reply. Only the claim
// owner dispatches; a duplicate claim is reported as not sent.
func (o *Orchestrator) dispatchReply(ctx context.Context, post *domain.MonitoredPost, acc *domain.SocialAccount, conn connector.Connector, c domain.Comment, thread []domain.Comment, log zerolog.Logger) bool {
	claim, err := repo.CreateReplyClaim(ctx, o.DB, c.ID, replyKey(c))
	if errors.Is(err, repo.ErrDuplicate) {
		repliesTotal.WithLabelValues("duplicate").Inc()
		log.Warn().Str("comment_id", c.ID).Msg("reply already claimed")
		return false
	}
	if err != nil {
		log.Error().Err(err).Str("comment_id", c.ID).Msg("create reply claim")
		return false
	}
	return o.sendReply(ctx, post, acc, conn, c, thread, claim, log) == nil
}

func (o *Orchestrator) sendReply(ctx context.Context, post *domain.MonitoredPost, acc *domain.SocialAccount, conn connector.Connector, c domain.Comment, thread []domain.Comment, claim *domain.ReplyClaim, log zerolog.Logger) error {
	log = log.With().Str("comment_id", c.ID).Int("attempt", claim.Attempts).Logger()

	fail := func(err error) error {
		book, cancel := detached(ctx)
		defer cancel()
		msg := domain.Truncate(err.Error(), maxReplyErrorRunes)
		if e := repo.MarkReplyFailed(book, o.DB, c.ID, msg); e != nil {
			log.Error().Err(e).Msg("record reply failure on comment")
		}
		if e := repo.FailReplyClaim(book, o.DB, claim.ID, msg); e != nil {
			log.Error().Err(e).Msg("record reply failure on claim")
		}
		repliesTotal.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Msg("reply dispatch failed")
		return err
	}

	if o.Responder == nil {
		return fail(errNoResponder)
	}
	text, err := o.Responder.GenerateReply(ctx, buildReplyContext(post, acc, c, thread))
	if err != nil {
		return fail(fmt.Errorf("generate reply: %w", err))
	}
	if strings.TrimSpace(text) == "" {
		return fail(errEmptyReply)
	}
	res, err := conn.ReplyToComment(ctx, c.PlatformCommentID, text)
	if err != nil {
		return fail(fmt.Errorf("send reply: %w", err))
	}

	book, cancel := detached(ctx)
	defer cancel()
	if err := repo.MarkReplied(book, o.DB, c.ID, res.ReplyID, o.now()); err != nil {
		log.Error().Err(err).Msg("record reply on comment")
	}
	if err := repo.CompleteReplyClaim(book, o.DB, claim.ID, res.ReplyID); err != nil {
		log.Error().Err(err).Msg("complete reply claim")
	}
	repliesTotal.WithLabelValues("sent").Inc()
	log.Info().Str("reply_id", res.ReplyID).Msg("reply sent")
	return nil
}

// RetryReply re-dispatches a failed reply. Only comments whose reply claim
// is in the failed state are eligible; concurrent retries race on the
// claim and exactly one proceeds.
func (o *Orchestrator) RetryReply(ctx context.Context, commentID string) (*domain.Comment, error) {
	tr := otel.Tracer("services/Orchestrator")
	ctx, span := tr.Start(ctx, "RetryReply", trace.WithAttributes(attribute.String("comment.id", commentID)))
	defer span.End()

	c, err := repo.GetComment(ctx, o.DB, commentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCommentNotFound
		}
		return nil, err
	}
	claim, err := repo.ReopenReplyClaim(ctx, o.DB, c.ID)
	if errors.Is(err, repo.ErrClaimNotFailed) || errors.Is(err, repo.ErrNotFound) {
		return nil, ErrReplyNotRetryable
	}
	if err != nil {
		return nil, err
	}

	post, acc, err := o.loadPostAccount(ctx, c.PostID)
	if err != nil {
		return nil, err
	}
	conn, err := o.Connectors.For(*acc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoConnector, err)
	}
	thread, err := repo.ListPostComments(ctx, o.DB, post.ID)
	if err != nil {
		return nil, err
	}

	log := o.Log.With().Str("post_id", post.ID).Logger()
	sendErr := o.sendReply(ctx, post, acc, conn, *c, thread, claim, log)
	updated, err := repo.GetComment(ctx, o.DB, c.ID)
	if err != nil {
		return nil, err
	}
	return updated, sendErr
}

// HideComment hides commentID on its platform and records it. Platforms
// without the capability yield connector.ErrNotSupported.
func (o *Orchestrator) HideComment(ctx context.Context, commentID string) (*domain.Comment, error) {
	c, err := repo.GetComment(ctx, o.DB, commentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCommentNotFound
		}
		return nil, err
	}
	if c.Hidden {
		return c, nil
	}
	_, acc, err := o.loadPostAccount(ctx, c.PostID)
	if err != nil {
		return nil, err
	}
	conn, err := o.Connectors.For(*acc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoConnector, err)
	}
	if err := conn.HideComment(ctx, c.PlatformCommentID); err != nil {
		return nil, err
	}
	if err := repo.MarkHidden(ctx, o.DB, c.ID); err != nil {
		return nil, err
	}
	c.Hidden = true
	return c, nil
}

func (o *Orchestrator) loadPostAccount(ctx context.Context, postID string) (*domain.MonitoredPost, *domain.SocialAccount, error) {
	post, err := repo.GetPost(ctx, o.DB, postID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrPostNotFound
		}
		return nil, nil, err
	}
	acc, err := repo.GetAccount(ctx, o.DB, post.SocialAccountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrAccountNotFound
		}
		return nil, nil, err
	}
	return post, acc, nil
}

// detached returns a short-lived context for state writes that must land
// even after the post or tick deadline has passed.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

func replyKey(c domain.Comment) string {
	return "reply:" + c.PostID + ":" + c.PlatformCommentID
}
