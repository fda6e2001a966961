// Package apierror defines the response and error shapes returned to client
// applications and turns backend errors into messages that are safe to show
// in a UI.
package apierror

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/zhaokm8093/shared/pkg/dedup"
)

// Error codes produced by this package.
const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeValidation        = "VALIDATION_ERROR"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternal          = "INTERNAL_ERROR"
	CodeUnavailable       = "SERVICE_UNAVAILABLE"
	CodeNetwork           = "NETWORK_ERROR"
	CodeDuplicateRequest  = "DUPLICATE_REQUEST"
	CodeRequestInProgress = "REQUEST_IN_PROGRESS"
)

// Response is the envelope for API responses.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// OK wraps data in a successful response.
func OK[T any](data T) Response[T] {
	return Response[T]{Success: true, Data: data}
}

// Fail wraps e in a failed response.
func Fail(e *Error) Response[any] {
	return Response[any]{Success: false, Error: e}
}

// Error is a user-facing API error.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

var codeMessages = map[string]string{
	CodeBadRequest:        "The request could not be processed. Please check your input.",
	CodeUnauthorized:      "Please sign in to continue.",
	CodeForbidden:         "You do not have permission to perform this action.",
	CodeNotFound:          "The requested resource was not found.",
	CodeConflict:          "The resource was changed by someone else. Please refresh and try again.",
	CodeValidation:        "Some fields are invalid. Please review and try again.",
	CodeRateLimited:       "Too many requests. Please wait a moment and try again.",
	CodeInternal:          "Something went wrong on our side. Please try again later.",
	CodeUnavailable:       "The service is temporarily unavailable. Please try again later.",
	CodeNetwork:           "Unable to reach the server. Please check your connection.",
	CodeDuplicateRequest:  "This request was just submitted. Please wait before trying again.",
	CodeRequestInProgress: "This request is already being processed.",
}

// RetryAfterSeconds returns the retry hint carried in Details, if any.
func (e *Error) RetryAfterSeconds() (int, bool) {
	if e == nil || e.Details == nil {
		return 0, false
	}
	secs, ok := e.Details["retryAfterSeconds"].(int)
	return secs, ok
}

// MessageFor returns the user-facing message for a known code.
func MessageFor(code string) (string, bool) {
	msg, ok := codeMessages[code]
	return msg, ok
}

// CodeForStatus maps an HTTP status to an error code by range.
func CodeForStatus(status int) string {
	switch {
	case status == 0:
		return CodeNetwork
	case status == http.StatusUnauthorized:
		return CodeUnauthorized
	case status == http.StatusForbidden:
		return CodeForbidden
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeConflict
	case status == http.StatusUnprocessableEntity:
		return CodeValidation
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status == http.StatusServiceUnavailable || status == http.StatusBadGateway || status == http.StatusGatewayTimeout:
		return CodeUnavailable
	case status >= 500:
		return CodeInternal
	case status >= 400:
		return CodeBadRequest
	default:
		return CodeInternal
	}
}

// Normalize builds a user-facing error from what the backend returned.
// A known code wins over the status; the backend message is kept only for
// 4xx responses and only if Sanitize lets it through.
func Normalize(status int, code, message string) *Error {
	if _, known := codeMessages[code]; !known {
		code = CodeForStatus(status)
	}
	msg := codeMessages[code]
	if status >= 400 && status < 500 && strings.TrimSpace(message) != "" {
		if cleaned := Sanitize(message); cleaned != genericMessage {
			msg = cleaned
		}
	}
	return &Error{Code: code, Message: msg, Status: status}
}

// FromError maps any error to a user-facing error. Deduplication rejections
// become 409, with a retry hint when the request recently completed. An
// *Error passes through. Anything else is an internal error whose detail is
// not exposed.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var rej *dedup.RejectedError
	if errors.As(err, &rej) {
		switch rej.Reason {
		case dedup.ReasonRecentlyCompleted:
			e := &Error{Code: CodeDuplicateRequest, Message: codeMessages[CodeDuplicateRequest], Status: http.StatusConflict}
			if rej.RetryAfter > 0 {
				e.Details = map[string]any{"retryAfterSeconds": int(math.Ceil(rej.RetryAfter.Seconds()))}
			}
			return e
		case dedup.ReasonInProgress:
			return &Error{Code: CodeRequestInProgress, Message: codeMessages[CodeRequestInProgress], Status: http.StatusConflict}
		}
	}

	return &Error{Code: CodeInternal, Message: codeMessages[CodeInternal], Status: http.StatusInternalServerError}
}
