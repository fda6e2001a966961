package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrNotReady = errors.New("proxy not ready")
	ErrUpstream = errors.New("upstream request failed")
)

// KindError tags an error with the operation that produced it and a
// sentinel kind callers can match with errors.Is.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// WrapKind wraps err with op and kind.
func WrapKind(op string, kind, err error) error {
	return &KindError{Op: op, Kind: kind, Err: err}
}

// NewKind returns an error of the given kind with no cause.
func NewKind(op string, kind error) error {
	return &KindError{Op: op, Kind: kind}
}
