// Package moderation classifies comment text through an OpenAI-compatible
// moderations endpoint. Transient failures are retried with the same policy
// as platform calls; anything else surfaces to the decision service, whose
// failure policy picks the verdict.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/tbourn/go-engage-backend/internal/connector"
	"github.com/tbourn/go-engage-backend/internal/services"
)

const maxBodyBytes = 1 << 20

// ErrEmptyResult is returned when the endpoint answers without a result.
var ErrEmptyResult = errors.New("moderation: empty result")

// Options configures the client.
type Options struct {
	URL        string // e.g. https://api.openai.com/v1/moderations
	APIKey     string
	Model      string
	Timeout    time.Duration
	Retry      connector.RetryPolicy
	HTTPClient *http.Client // optional
}

// Client implements services.Moderator.
type Client struct {
	opts Options
	http *http.Client
}

var _ services.Moderator = (*Client)(nil)

// New returns a Client with defaults applied to zero options.
func New(opts Options) *Client {
	if opts.Model == "" {
		opts.Model = "omni-moderation-latest"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Retry.BaseDelay <= 0 {
		opts.Retry = connector.RetryPolicy{BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, MaxRetries: 2}
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{opts: opts, http: hc}
}

type request struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type response struct {
	Results []struct {
		Flagged    bool            `json:"flagged"`
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Classify implements services.Moderator. Categories are the names of the
// flagged categories, sorted.
func (c *Client) Classify(ctx context.Context, text string) (services.ModerationResult, error) {
	ctx, span := otel.Tracer("moderation").Start(ctx, "Classify")
	defer span.End()

	res, err := connector.Retry(ctx, c.opts.Retry, func(ctx context.Context) (services.ModerationResult, error) {
		return c.once(ctx, text)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classify failed")
	}
	return res, err
}

func (c *Client) once(ctx context.Context, text string) (services.ModerationResult, error) {
	body, err := json.Marshal(request{Model: c.opts.Model, Input: text})
	if err != nil {
		return services.ModerationResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return services.ModerationResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return services.ModerationResult{}, &connector.APIError{Message: "transport error", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return services.ModerationResult{}, &connector.APIError{Message: "read body", Err: err}
	}
	if resp.StatusCode >= 400 {
		e := &connector.APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Error.Message != "" {
			e.Message = ae.Error.Message
			e.Code = ae.Error.Type
		}
		return services.ModerationResult{}, e
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return services.ModerationResult{}, &connector.APIError{StatusCode: resp.StatusCode, Code: "malformed_payload", Message: err.Error()}
	}
	if len(out.Results) == 0 {
		return services.ModerationResult{}, ErrEmptyResult
	}
	r := out.Results[0]
	cats := make([]string, 0, len(r.Categories))
	for name, hit := range r.Categories {
		if hit {
			cats = append(cats, strings.ToLower(name))
		}
	}
	sort.Strings(cats)
	return services.ModerationResult{Flagged: r.Flagged, Categories: cats}, nil
}
