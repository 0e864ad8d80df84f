package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an export failure
type Kind string

const (
	// Export pipeline kinds
	KindResolution           Kind = "resolution"
	KindDiscovery            Kind = "discovery"
	KindFetch                Kind = "fetch"
	KindEmptyResult          Kind = "empty_result"
	KindEstimatorUnavailable Kind = "estimator_unavailable"

	// Transport kinds reported by the XRPC client
	KindNetwork      Kind = "network"
	KindRateLimit    Kind = "rate_limit"
	KindNotFound     Kind = "not_found"
	KindBadRequest   Kind = "bad_request"
	KindServerError  Kind = "server_error"
	KindParsing      Kind = "parsing"
	KindInvalidInput Kind = "invalid_input"
	KindUnknown      Kind = "unknown"
)

// Error is the error type shared by every package in the module
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind so callers can compare against the
// sentinel values below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks
var (
	ErrResolution           = &Error{Kind: KindResolution}
	ErrDiscovery            = &Error{Kind: KindDiscovery}
	ErrFetch                = &Error{Kind: KindFetch}
	ErrEmptyResult          = &Error{Kind: KindEmptyResult}
	ErrEstimatorUnavailable = &Error{Kind: KindEstimatorUnavailable}
	ErrRateLimit            = &Error{Kind: KindRateLimit}
)

// New creates an Error of the given kind
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an Error of the given kind around err
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Resolution wraps a handle resolution failure
func Resolution(handle string, err error) *Error {
	return &Error{
		Kind:    KindResolution,
		Op:      "resolve",
		Message: fmt.Sprintf("could not resolve handle %q", handle),
		Err:     err,
	}
}

// Discovery wraps a failed DID document fetch for did
func Discovery(did string, err error) *Error {
	return &Error{
		Kind:    KindDiscovery,
		Op:      "discover",
		Message: fmt.Sprintf("could not fetch DID document of %s", did),
		Err:     err,
	}
}

// Fetch wraps a listing failure against endpoint
func Fetch(endpoint string, err error) *Error {
	return &Error{
		Kind:    KindFetch,
		Op:      "list records",
		Message: fmt.Sprintf("fetching posts from %s failed", endpoint),
		Err:     err,
	}
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err should be retried on the same endpoint.
// Only rate limiting qualifies; every other listing failure goes through
// endpoint fallback instead.
func IsRetryable(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	if e.Kind == KindRateLimit {
		return true
	}
	// A fetch error whose cause was a rate limit is still retryable
	if e.Err != nil {
		return IsRetryable(e.Err)
	}
	return false
}

// KindForStatus maps an HTTP status code to an error kind
func KindForStatus(statusCode int) Kind {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimit
	case statusCode == http.StatusNotFound:
		return KindNotFound
	case statusCode >= 500:
		return KindServerError
	case statusCode >= 400:
		return KindBadRequest
	default:
		return KindUnknown
	}
}
