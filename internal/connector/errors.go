package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// APIError is a failed platform call. StatusCode is 0 when no HTTP response
// was received.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration // server-provided hint on 429
	Err        error         // underlying transport error, if any
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("platform request failed: %v", e.Err)
	case e.Code != "":
		return fmt.Sprintf("platform error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	default:
		return fmt.Sprintf("platform error %d: %s", e.StatusCode, e.Message)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// Transient reports whether the call may succeed if repeated: HTTP 429,
// 500, 502, 503, 504, or a network timeout.
func (e *APIError) Transient() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	case 0:
		return isTimeout(e.Err)
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Transient()
	}
	return isTimeout(err)
}

// IsPermanent reports whether err needs operator attention: a platform
// failure that retrying will not fix. Context cancellation and deadline
// expiry are neither transient nor permanent.
func IsPermanent(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !IsTransient(err)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
