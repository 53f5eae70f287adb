// Package handlers defines the error codes of the operator API.
//
// Clients branch on these codes; messages are for humans. classify maps
// service sentinels onto a status and code so handlers never inspect
// error strings.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/tbourn/go-engage-backend/internal/connector"
	"github.com/tbourn/go-engage-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodePollInProgress  = "poll_in_progress"
	ErrCodeNotRetryable    = "reply_not_retryable"
	ErrCodeNotSupported    = "not_supported"
	ErrCodeNoConnector     = "no_connector"
	ErrCodePlatformError   = "platform_error"
	ErrCodeInvalidDuration = "invalid_duration"
	ErrCodeTimeout         = "timeout"
)

func classify(err error) (int, string) {
	var ae *connector.APIError
	switch {
	case errors.Is(err, services.ErrPostNotFound),
		errors.Is(err, services.ErrCommentNotFound),
		errors.Is(err, services.ErrAccountNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrTickInProgress):
		return http.StatusConflict, ErrCodePollInProgress
	case errors.Is(err, services.ErrReplyNotRetryable):
		return http.StatusConflict, ErrCodeNotRetryable
	case errors.Is(err, services.ErrInvalidDuration):
		return http.StatusBadRequest, ErrCodeInvalidDuration
	case errors.Is(err, services.ErrEmptyText),
		errors.Is(err, services.ErrInvalidContext):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, connector.ErrNotSupported),
		errors.Is(err, services.ErrSyncNotSupported):
		return http.StatusNotImplemented, ErrCodeNotSupported
	case errors.Is(err, services.ErrNoConnector):
		return http.StatusUnprocessableEntity, ErrCodeNoConnector
	case errors.As(err, &ae):
		return http.StatusBadGateway, ErrCodePlatformError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeTimeout
	}
	return http.StatusInternalServerError, ErrCodeInternal
}
