package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	CodeValidation   = "validation"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeRateLimited  = "rate_limited"
	CodeUnavailable  = "unavailable"
	CodeTimeout      = "timeout"
	CodeInternal     = "internal"
)

// Error is an upstream failure. Transient errors were retried and may succeed
// on the next run.
type Error struct {
	Source     string
	Code       string
	Message    string
	Transient  bool
	RetryAfter int
	Status     int
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s (status %d): %s", e.Source, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Source, e.Code, e.Message)
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return CodeValidation
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeUnauthorized
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CodeTimeout
	case status >= 500:
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

func newError(source, code, message string, status int, retryAfter time.Duration) *Error {
	retryAfterSec := 0
	if retryAfter > 0 {
		retryAfterSec = int(retryAfter.Seconds())
		if retryAfterSec <= 0 {
			retryAfterSec = 1
		}
	}
	return &Error{
		Source:     source,
		Code:       code,
		Message:    message,
		Transient:  code == CodeRateLimited || code == CodeUnavailable || code == CodeTimeout,
		RetryAfter: retryAfterSec,
		Status:     status,
	}
}

func statusError(source string, status int, body []byte, retryAfter time.Duration) *Error {
	msg := string(body)
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return newError(source, codeForStatus(status), msg, status, retryAfter)
}

func transportError(source string, err error) *Error {
	if isTimeoutError(err) {
		return newError(source, CodeTimeout, err.Error(), 0, 0)
	}
	return newError(source, CodeUnavailable, err.Error(), 0, 0)
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsTransient reports whether err is an upstream failure worth retrying later.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Transient
}

// IsNotFound reports whether the upstream answered 404.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeNotFound
}
