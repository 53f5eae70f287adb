// Package instagram implements connector.Connector for the Instagram Graph
// API. Requests are rate limited per account with a token bucket and retried
// on transient failures with connector.Retry.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-engage-backend/internal/connector"
	"github.com/tbourn/go-engage-backend/internal/domain"
)

// Platform is the registry key for this connector.
const Platform = "instagram"

const (
	replyFields   = "id,text,timestamp,username,like_count,from{id,username}"
	commentFields = replyFields + ",replies{" + replyFields + "}"
	mediaFields = "id,caption,media_url,permalink,timestamp"

	timeLayout   = "2006-01-02T15:04:05-0700"
	maxBodyBytes = 4 << 20
)

// Graph error codes that signal throttling regardless of HTTP status.
var throttleCodes = map[int]bool{4: true, 17: true, 32: true, 613: true}

// Options configures the connector.
type Options struct {
	BaseURL    string // e.g. https://graph.facebook.com/v21.0
	RateRPS    float64
	RateBurst  int
	MaxPages   int // pages read per ListNewComments call
	PageSize   int
	Timeout    time.Duration
	Retry      connector.RetryPolicy
	HTTPClient *http.Client // optional
}

// Factory builds per-account clients. Rate limiters are kept per account so
// the budget survives across ticks.
type Factory struct {
	opts     Options
	http     *http.Client
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFactory returns a Factory with defaults applied to zero options.
func NewFactory(opts Options) *Factory {
	if opts.RateRPS <= 0 {
		opts.RateRPS = 3
	}
	if opts.RateBurst < 1 {
		opts.RateBurst = 5
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = 5
	}
	if opts.PageSize < 1 {
		opts.PageSize = 50
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retry.BaseDelay <= 0 {
		opts.Retry = connector.DefaultRetryPolicy()
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Factory{opts: opts, http: hc, limiters: make(map[string]*rate.Limiter)}
}

// New satisfies connector.Factory.
func (f *Factory) New(account domain.SocialAccount) (connector.Connector, error) {
	if strings.TrimSpace(account.AccessToken) == "" {
		return nil, &connector.APIError{StatusCode: http.StatusUnauthorized, Code: "missing_token", Message: "account has no access token"}
	}
	return &Client{
		opts:      f.opts,
		http:      f.http,
		limiter:   f.limiter(account.ID),
		token:     account.AccessToken,
		accountID: account.PlatformAccountID,
	}, nil
}

func (f *Factory) limiter(accountID string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[accountID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.opts.RateRPS), f.opts.RateBurst)
		f.limiters[accountID] = l
	}
	return l
}

// Client talks to the Graph API on behalf of one account.
type Client struct {
	connector.Unsupported

	opts      Options
	http      *http.Client
	limiter   *rate.Limiter
	token     string
	accountID string
}

var (
	_ connector.Connector  = (*Client)(nil)
	_ connector.PostLister  = (*Client)(nil)
	_ connector.ReplyLister = (*Client)(nil)
)

// Platform implements connector.Connector.
func (c *Client) Platform() string { return Platform }

// ListNewComments reads up to MaxPages pages after sinceCursor. Replies are
// flattened after their parent with ParentID set, and the result is sorted
// oldest first.
func (c *Client) ListNewComments(ctx context.Context, postPlatformID, sinceCursor string) (connector.CommentPage, error) {
	ctx, span := otel.Tracer("connector/instagram").Start(ctx, "ListNewComments",
		trace.WithAttributes(attribute.String("post.platform_id", postPlatformID)))
	defer span.End()

	var (
		out    []connector.RemoteComment
		cursor = sinceCursor
		next   string
	)
	for page := 0; page < c.opts.MaxPages; page++ {
		q := url.Values{}
		q.Set("fields", commentFields)
		q.Set("limit", strconv.Itoa(c.opts.PageSize))
		if cursor != "" {
			q.Set("after", cursor)
		}
		var resp commentsResponse
		if err := c.call(ctx, http.MethodGet, "/"+url.PathEscape(postPlatformID)+"/comments", q, nil, &resp); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "list comments failed")
			if page == 0 {
				return connector.CommentPage{}, err
			}
			sortOldestFirst(out)
			return connector.CommentPage{Comments: out, NextCursor: next, Partial: true}, err
		}
		for _, gc := range resp.Data {
			out = append(out, gc.remote(""))
			for _, r := range gc.Replies.Data {
				out = append(out, r.remote(gc.ID))
			}
		}
		if a := resp.Paging.Cursors.After; a != "" {
			next, cursor = a, a
		}
		if resp.Paging.Next == "" {
			break
		}
	}
	sortOldestFirst(out)
	span.SetAttributes(attribute.Int("comments", len(out)))
	return connector.CommentPage{Comments: out, NextCursor: next}, nil
}

// ListReplies reads up to MaxPages pages of replies to one comment.
func (c *Client) ListReplies(ctx context.Context, commentPlatformID string) ([]connector.RemoteComment, error) {
	ctx, span := otel.Tracer("connector/instagram").Start(ctx, "ListReplies",
		trace.WithAttributes(attribute.String("comment.platform_id", commentPlatformID)))
	defer span.End()

	var (
		out    []connector.RemoteComment
		cursor string
	)
	for page := 0; page < c.opts.MaxPages; page++ {
		q := url.Values{}
		q.Set("fields", replyFields)
		q.Set("limit", strconv.Itoa(c.opts.PageSize))
		if cursor != "" {
			q.Set("after", cursor)
		}
		var resp commentsResponse
		if err := c.call(ctx, http.MethodGet, "/"+url.PathEscape(commentPlatformID)+"/replies", q, nil, &resp); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "list replies failed")
			return nil, err
		}
		for _, r := range resp.Data {
			out = append(out, r.remote(commentPlatformID))
		}
		cursor = resp.Paging.Cursors.After
		if resp.Paging.Next == "" || cursor == "" {
			break
		}
	}
	sortOldestFirst(out)
	span.SetAttributes(attribute.Int("replies", len(out)))
	return out, nil
}

// ReplyToComment posts a threaded reply.
func (c *Client) ReplyToComment(ctx context.Context, commentPlatformID, text string) (connector.ReplyResult, error) {
	ctx, span := otel.Tracer("connector/instagram").Start(ctx, "ReplyToComment",
		trace.WithAttributes(attribute.String("comment.platform_id", commentPlatformID)))
	defer span.End()

	form := url.Values{}
	form.Set("message", text)
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/"+url.PathEscape(commentPlatformID)+"/replies", nil, form, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reply failed")
		return connector.ReplyResult{}, err
	}
	if resp.ID == "" {
		return connector.ReplyResult{}, &connector.APIError{StatusCode: http.StatusOK, Code: "malformed_payload", Message: "reply id missing"}
	}
	return connector.ReplyResult{ReplyID: resp.ID}, nil
}

// HideComment hides a comment from public view.
func (c *Client) HideComment(ctx context.Context, commentPlatformID string) error {
	form := url.Values{}
	form.Set("hide", "true")
	return c.call(ctx, http.MethodPost, "/"+url.PathEscape(commentPlatformID), nil, form, nil)
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, commentPlatformID string) error {
	return c.call(ctx, http.MethodDelete, "/"+url.PathEscape(commentPlatformID), nil, nil, nil)
}

// ListRecentPosts returns the account's most recent media.
func (c *Client) ListRecentPosts(ctx context.Context, limit int) ([]connector.RemotePost, error) {
	if limit < 1 {
		limit = 25
	}
	q := url.Values{}
	q.Set("fields", mediaFields)
	q.Set("limit", strconv.Itoa(limit))
	var resp mediaResponse
	if err := c.call(ctx, http.MethodGet, "/"+url.PathEscape(c.accountID)+"/media", q, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]connector.RemotePost, 0, len(resp.Data))
	for _, m := range resp.Data {
		out = append(out, connector.RemotePost{
			PlatformID: m.ID,
			Caption:    m.Caption,
			MediaURL:   m.MediaURL,
			Permalink:  m.Permalink,
			PostedAt:   parseTime(m.Timestamp),
		})
	}
	return out, nil
}

// call performs one logical request with retries.
func (c *Client) call(ctx context.Context, method, path string, query, form url.Values, out any) error {
	_, err := connector.Retry(ctx, c.opts.Retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.once(ctx, method, path, query, form, out)
	})
	return err
}

func (c *Client) once(ctx context.Context, method, path string, query, form url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Waiting would overrun the deadline.
		return fmt.Errorf("rate limit wait: %w", context.DeadlineExceeded)
	}
	u := c.opts.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &connector.APIError{Message: "transport error", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &connector.APIError{Message: "read body", Err: err}
	}
	if resp.StatusCode >= 400 {
		return decodeError(resp, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &connector.APIError{StatusCode: resp.StatusCode, Code: "malformed_payload", Message: err.Error()}
	}
	return nil
}

func decodeError(resp *http.Response, raw []byte) error {
	e := &connector.APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var ge graphError
	if json.Unmarshal(raw, &ge) == nil && ge.Error.Message != "" {
		e.Message = ge.Error.Message
		e.Code = strconv.Itoa(ge.Error.Code)
		if throttleCodes[ge.Error.Code] {
			e.StatusCode = http.StatusTooManyRequests
		}
	}
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return e
}

func sortOldestFirst(cs []connector.RemoteComment) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].CreatedAt.Before(cs[j].CreatedAt) })
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// ---- wire types ----

type graphUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type graphComment struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	Timestamp string     `json:"timestamp"`
	Username  string     `json:"username"`
	LikeCount int        `json:"like_count"`
	From      *graphUser `json:"from"`
	Replies   struct {
		Data []graphComment `json:"data"`
	} `json:"replies"`
}

func (g graphComment) remote(parentID string) connector.RemoteComment {
	rc := connector.RemoteComment{
		PlatformID: g.ID,
		ParentID:   parentID,
		AuthorName: g.Username,
		Text:       g.Text,
		LikeCount:  g.LikeCount,
		CreatedAt:  parseTime(g.Timestamp),
	}
	if g.From != nil {
		rc.AuthorID = g.From.ID
		if rc.AuthorName == "" {
			rc.AuthorName = g.From.Username
		}
	}
	return rc
}

type paging struct {
	Cursors struct {
		Before string `json:"before"`
		After  string `json:"after"`
	} `json:"cursors"`
	Next string `json:"next"`
}

type commentsResponse struct {
	Data   []graphComment `json:"data"`
	Paging paging         `json:"paging"`
}

type mediaResponse struct {
	Data []struct {
		ID        string `json:"id"`
		Caption   string `json:"caption"`
		MediaURL  string `json:"media_url"`
		Permalink string `json:"permalink"`
		Timestamp string `json:"timestamp"`
	} `json:"data"`
	Paging paging `json:"paging"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}
