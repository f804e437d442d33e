package smoketest

import (
	"errors"
	"fmt"
)

// Sentinel errors for smoke runs.
var (
	ErrUnhealthy    = errors.New("service unhealthy")
	ErrVerification = errors.New("verification failed")
	ErrInvalidRun   = errors.New("invalid run configuration")
)

// StatusError is an unexpected HTTP status with the decoded error body.
type StatusError struct {
	Method string
	Path   string
	Status int
	Code   string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: status %d (%s): %s", e.Method, e.Path, e.Status, e.Code, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}
