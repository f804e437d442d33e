package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBodyTooLarge    = errors.New("request body too large")
	ErrMissingModelID  = errors.New("missing model id")
	ErrMissingTopCount = errors.New("numberOfNodes is required")
)
