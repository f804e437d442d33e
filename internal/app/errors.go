package service

import (
	"fmt"

	"github.com/okian/noderank/internal/domain/errkind"
)

// Sentinel kinds for service errors.
var (
	ErrNotStarted   = fmt.Errorf("service not started: %w", errkind.ErrUnavailable)
	ErrBackpressure = fmt.Errorf("too many pending operations, retry later: %w", errkind.ErrBackpressure)
)
