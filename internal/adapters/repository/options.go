package repository

import (
	"time"

	"github.com/okian/noderank/pkg/logger"
)

const (
	defaultRefreshInterval = 5 * time.Second
	defaultSlowThreshold   = 200 * time.Millisecond
)

// Option applies a configuration option to the GormStore.
type Option func(*GormStore)

// WithLogger routes SQL tracing through l.
func WithLogger(l logger.Logger) Option {
	return func(s *GormStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSlowThreshold sets the duration above which queries are logged as slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(s *GormStore) {
		if d > 0 {
			s.slowThreshold = d
		}
	}
}

// WithAutoMigrate controls whether Open creates or alters the ai_model table.
func WithAutoMigrate(enabled bool) Option {
	return func(s *GormStore) {
		s.autoMigrate = enabled
	}
}
