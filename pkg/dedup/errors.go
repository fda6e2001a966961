package dedup

import (
	"errors"
	"fmt"
	"time"
)

// RejectionReason names why a request was refused without running.
type RejectionReason string

// Rejection reasons.
const (
	ReasonInProgress        RejectionReason = "in_progress"
	ReasonRecentlyCompleted RejectionReason = "recently_completed"
)

// Sentinel kinds for this package. RejectedError unwraps to one of the
// reason sentinels so callers can use errors.Is.
var (
	ErrInProgress        = errors.New("dedup: request already in progress")
	ErrRecentlyCompleted = errors.New("dedup: request recently completed")
	ErrResultType        = errors.New("dedup: shared result has unexpected type")
	ErrOperationPanic    = errors.New("dedup: operation panicked")
)

// RejectedError is returned when a request is refused before its operation
// is invoked.
type RejectedError struct {
	Reason RejectionReason
	Key    string
	// RetryAfter is how long until the cool-down window elapses. Zero for
	// in_progress rejections.
	RetryAfter time.Duration
}

func (e *RejectedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("dedup: request %q rejected: %s (retry after %s)", e.Key, e.Reason, e.RetryAfter)
	}
	return fmt.Sprintf("dedup: request %q rejected: %s", e.Key, e.Reason)
}

// Unwrap maps the reason onto its sentinel.
func (e *RejectedError) Unwrap() error {
	switch e.Reason {
	case ReasonInProgress:
		return ErrInProgress
	case ReasonRecentlyCompleted:
		return ErrRecentlyCompleted
	default:
		return nil
	}
}

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) (RejectionReason, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

// IsRejection reports whether err is a deduplication rejection of any kind.
func IsRejection(err error) bool {
	_, ok := ReasonOf(err)
	return ok
}
