package core

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy shared by every workload. Callers classify with errors.Is.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrConflict is reserved for multi-writer semantics and not returned today.
	ErrConflict = errors.New("conflict")
)

// OpError is a classified failure. Error() exposes only the operation and the
// kind; the underlying cause is kept for logging and never shown to callers.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap returns the kind so errors.Is(err, ErrNotFound) works.
func (e *OpError) Unwrap() error { return e.Kind }

// Cause returns the hidden underlying error, if any.
func (e *OpError) Cause() error { return e.Err }

// NewOpError builds a classified error.
func NewOpError(op string, kind, cause error) *OpError {
	return &OpError{Op: op, Kind: kind, Err: cause}
}

// Invalid wraps a validation failure as ErrInvalidArgument. The validation
// message is caller input, so it is safe to expose.
func Invalid(op string, cause error) error {
	return &OpError{Op: op, Kind: fmt.Errorf("%w: %v", ErrInvalidArgument, cause), Err: cause}
}

// Classify maps an arbitrary error to one of the taxonomy kinds. Errors that
// are already classified are returned unchanged; anything unknown, including
// deadline expiry, becomes fallback.
func Classify(op string, err error, fallback error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return NewOpError(op, ErrInvalidArgument, err)
	case errors.Is(err, ErrNotFound):
		return NewOpError(op, ErrNotFound, err)
	case errors.Is(err, ErrConflict):
		return NewOpError(op, ErrConflict, err)
	case errors.Is(err, ErrUpstreamUnavailable):
		return NewOpError(op, ErrUpstreamUnavailable, err)
	case errors.Is(err, ErrStoreUnavailable):
		return NewOpError(op, ErrStoreUnavailable, err)
	default:
		return NewOpError(op, fallback, err)
	}
}

// Timeout reports whether err came from an expired or cancelled context.
func Timeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// CauseOf returns the hidden cause of a classified error, or err itself.
func CauseOf(err error) error {
	var oe *OpError
	if errors.As(err, &oe) && oe.Err != nil {
		return oe.Err
	}
	return err
}
