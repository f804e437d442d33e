package service

import (
	"time"

	"github.com/okian/noderank/internal/adapters/artifact"
	"github.com/okian/noderank/internal/adapters/repository"
	"github.com/okian/noderank/internal/domain/lifecycle"
	"github.com/okian/noderank/internal/domain/predictor"
	"github.com/okian/noderank/internal/domain/ranking"
	"github.com/okian/noderank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending operations.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecordStore sets the model record store. Defaults to an in-memory store.
func WithRecordStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.records = store
		}
	}
}

// WithArtifactStore sets the artifact store. Defaults to ./trained on disk.
func WithArtifactStore(store *artifact.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.artifacts = store
		}
	}
}

// WithPredictorFactory sets how predictors are created and loaded.
func WithPredictorFactory(f predictor.Factory) Option {
	return func(s *Service) {
		if f != nil {
			s.factory = f
		}
	}
}

// WithLifecycleOptions passes options through to the lifecycle manager.
func WithLifecycleOptions(opts ...lifecycle.Option) Option {
	return func(s *Service) {
		s.lifecycleOpts = append(s.lifecycleOpts, opts...)
	}
}

// WithRankingOptions passes options through to the ranking engine.
func WithRankingOptions(opts ...ranking.Option) Option {
	return func(s *Service) {
		s.rankingOpts = append(s.rankingOpts, opts...)
	}
}

// WithGaugeRefreshInterval sets how often record-count gauges are refreshed.
func WithGaugeRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.gaugeRefresh = d
		}
	}
}
