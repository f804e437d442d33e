// Package errkind defines the stable error taxonomy shared by the lifecycle,
// ranking and transport layers.
//
// Every failure surfaced to a caller carries exactly one kind. Kinds are
// sentinel errors and are matched with errors.Is; the wrapping Error keeps
// the operation name and the underlying cause.
package errkind

import (
	"errors"
	"fmt"
)

// Sentinel kinds.
var (
	// ErrValidation marks malformed or missing caller input. No state changed.
	ErrValidation = errors.New("validation error")
	// ErrEncoding marks a feature extraction failure. It is a validation error.
	ErrEncoding = fmt.Errorf("encoding error: %w", ErrValidation)
	// ErrNotFound marks an unknown model id.
	ErrNotFound = errors.New("not found")
	// ErrPersistence marks a record store failure.
	ErrPersistence = errors.New("persistence error")
	// ErrTraining marks a predictor create/load/fit/save failure during create or train.
	ErrTraining = errors.New("training error")
	// ErrInference marks a predictor load/predict failure during ranking.
	ErrInference = errors.New("inference error")
	// ErrBackpressure marks work rejected because too many operations are pending.
	ErrBackpressure = errors.New("backpressure")
	// ErrUnavailable marks a service that is not accepting work.
	ErrUnavailable = errors.New("unavailable")
)

// kinds lists the sentinels from most to least specific.
var kinds = []error{ErrEncoding, ErrValidation, ErrNotFound, ErrPersistence, ErrTraining, ErrInference, ErrBackpressure, ErrUnavailable}

// Error is a kinded failure of a named operation.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.Error()
	}
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns a kinded error with a plain message as its cause.
func New(op string, kind error, msg string) error {
	return &Error{Op: op, Kind: kind, Err: errors.New(msg)}
}

// Newf is New with formatting.
func Newf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// NewKind returns a kinded error without a cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind attaches kind and op to err. A nil err yields nil.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap keeps the kind already present in err and prefixes op. Errors without a
// known kind are left unkinded. A nil err yields nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// KindOf returns the most specific kind carried by err, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Is reports whether err carries kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}

// Code returns a stable snake_case identifier for the kind of err.
func Code(err error) string {
	switch KindOf(err) {
	case ErrEncoding:
		return "encoding_error"
	case ErrValidation:
		return "validation_error"
	case ErrNotFound:
		return "not_found"
	case ErrPersistence:
		return "persistence_error"
	case ErrTraining:
		return "training_error"
	case ErrInference:
		return "inference_error"
	case ErrBackpressure:
		return "backpressure"
	case ErrUnavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}
