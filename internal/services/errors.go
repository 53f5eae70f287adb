// Package services implements the comment monitoring and auto-reply engine:
// triage, decision policy, automation gating, the monitoring registry, and
// the polling orchestrator. This file centralizes service-level error values
// so that callers can check them with errors.Is.
//
// Translation into HTTP status codes is performed at the handler layer.
package services

import "errors"

var (
	// ErrPostNotFound indicates that the monitored post does not exist.
	ErrPostNotFound = errors.New("post not found")

	// ErrCommentNotFound indicates that the comment does not exist.
	ErrCommentNotFound = errors.New("comment not found")

	// ErrAccountNotFound indicates that the social account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTickInProgress is returned when a poll is requested while another
	// tick is still running.
	ErrTickInProgress = errors.New("poll tick already in progress")

	// ErrReplyNotRetryable is returned by a manual retry when the comment has
	// no failed reply to retry.
	ErrReplyNotRetryable = errors.New("reply is not in a retryable state")

	// ErrNoConnector is returned when no connector can be built for an
	// account's platform.
	ErrNoConnector = errors.New("no connector for platform")

	// ErrSyncNotSupported is returned when the platform connector cannot
	// enumerate posts.
	ErrSyncNotSupported = errors.New("platform does not support post sync")

	// ErrEmptyText is returned when a dry run is requested with no text.
	ErrEmptyText = errors.New("text is empty")

	// ErrInvalidContext is returned for an unknown decision context type.
	ErrInvalidContext = errors.New("context type must be chat or comment")

	// ErrInvalidDuration is returned when a monitoring duration is not
	// positive.
	ErrInvalidDuration = errors.New("monitoring duration must be positive")
)

// FailurePolicy selects the outcome when a dependency the policy engine
// consults (rules lookup, moderation) fails. It is always chosen explicitly
// by the caller.
type FailurePolicy int

const (
	// FailOpen proceeds as if the failed check had passed.
	FailOpen FailurePolicy = iota
	// FailClosed blocks the automated action.
	FailClosed
)

// String implements fmt.Stringer.
func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}

// ParseFailurePolicy maps "fail_open" / "fail_closed"; anything else is
// FailClosed.
func ParseFailurePolicy(s string) FailurePolicy {
	if s == "fail_open" {
		return FailOpen
	}
	return FailClosed
}
