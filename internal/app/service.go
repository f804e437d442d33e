// Package service wires the lifecycle manager, ranking engine and job pool
// into the operation surface the HTTP API depends on. It lives under
// internal/app, so importers name it explicitly (cmd imports it as app).
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/noderank/internal/adapters/artifact"
	"github.com/okian/noderank/internal/adapters/mlp"
	jobqueue "github.com/okian/noderank/internal/adapters/mq/queue"
	workerpool "github.com/okian/noderank/internal/adapters/mq/worker"
	"github.com/okian/noderank/internal/adapters/repository"
	"github.com/okian/noderank/internal/domain/lifecycle"
	"github.com/okian/noderank/internal/domain/model"
	"github.com/okian/noderank/internal/domain/predictor"
	"github.com/okian/noderank/internal/domain/ranking"
	"github.com/okian/noderank/pkg/logger"
	"github.com/okian/noderank/pkg/metrics"
)

const (
	defaultQueueSize     = 1024
	defaultArtifactRoot  = "trained"
	defaultGaugeInterval = 5 * time.Second
)

// Service implements the API dependencies for model management and ranking.
type Service struct {
	mu sync.RWMutex

	records   repository.Store
	artifacts *artifact.Store
	factory   predictor.Factory
	manager   *lifecycle.Manager
	engine    *ranking.Engine
	jobs      jobqueue.Queue
	pool      *workerpool.Pool

	workerCount   int
	queueSize     int
	gaugeRefresh  time.Duration
	lifecycleOpts []lifecycle.Option
	rankingOpts   []ranking.Option

	started   bool
	startedAt time.Time
	cancel    context.CancelFunc

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU(),
		queueSize:    defaultQueueSize,
		gaugeRefresh: defaultGaugeInterval,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds missing components and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting model service...")

	if s.records == nil {
		s.records = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory record store")
	}
	if s.artifacts == nil {
		s.artifacts = artifact.NewStore(defaultArtifactRoot)
	}
	if s.factory == nil {
		s.factory = mlp.NewFactory()
	}

	lifecycleOpts := append([]lifecycle.Option{lifecycle.WithLogger(s.logger.Named("lifecycle"))}, s.lifecycleOpts...)
	s.manager = lifecycle.New(s.records, s.artifacts, s.factory, lifecycleOpts...)
	rankingOpts := append([]ranking.Option{ranking.WithLogger(s.logger.Named("ranking"))}, s.rankingOpts...)
	s.engine = ranking.NewEngine(s.records, s.artifacts, s.factory, rankingOpts...)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.jobs = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.jobs, workerpool.WithPoolLogger(s.logger.Named("worker-pool")))
	s.pool.Start(runCtx)
	go repository.RefreshGauges(runCtx, s.records, s.gaugeRefresh)

	s.reportOrphans(ctx)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "model service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// reportOrphans logs artifact directories with no record, left behind by a
// create that crashed between save and record write.
func (s *Service) reportOrphans(ctx context.Context) {
	recs, err := s.records.FindAll(ctx)
	if err != nil {
		s.logger.Warn(ctx, "orphan scan skipped", logger.Error(err))
		return
	}
	known := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		known[r.ID] = struct{}{}
	}
	orphans, err := s.artifacts.Orphans(known)
	if err != nil {
		s.logger.Warn(ctx, "orphan scan failed", logger.Error(err))
		return
	}
	for _, id := range orphans {
		s.logger.Warn(ctx, "artifact without record", logger.String("model_id", id))
	}
}

// Stop drains pending jobs and stops the workers.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping model service...")
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not stop cleanly", logger.Error(err))
	}
	s.cancel()
	s.started = false
	s.logger.Info(ctx, "model service stopped")
}

// submit runs fn on the worker pool and waits for it or for ctx.
func (s *Service) submit(ctx context.Context, kind, modelID string, fn func(ctx context.Context) error) error {
	s.mu.RLock()
	started, jobs := s.started, s.jobs
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	job := jobqueue.NewJob(uuid.NewString(), kind, modelID, func(wctx context.Context) error {
		jctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(wctx, cancel)
		defer stop()
		if err := jctx.Err(); err != nil {
			return err
		}
		return fn(jctx)
	})
	if err := jobs.Enqueue(ctx, job); err != nil {
		switch {
		case errors.Is(err, jobqueue.ErrFull):
			return fmt.Errorf("%s: %w", kind, ErrBackpressure)
		case errors.Is(err, jobqueue.ErrStopped):
			return fmt.Errorf("%s: %w", kind, ErrNotStarted)
		}
		return err
	}

	select {
	case err := <-job.Done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn through submit and hands its value back over a channel. The
// value is read only after the job has finished, never after ctx gave up.
func call[T any](ctx context.Context, s *Service, kind, modelID string, fn func(ctx context.Context) (T, error)) (T, error) {
	out := make(chan T, 1)
	err := s.submit(ctx, kind, modelID, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out <- v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return <-out, nil
}

// CreateModel creates a model with bootstrap weights.
func (s *Service) CreateModel(ctx context.Context, name string, metadata *string) (model.Record, error) {
	return call(ctx, s, jobqueue.KindCreate, "", func(ctx context.Context) (model.Record, error) {
		return s.manager.Create(ctx, lifecycle.CreateInput{Name: name, Metadata: metadata})
	})
}

// ListModels returns every model record.
func (s *Service) ListModels(ctx context.Context) ([]model.Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.manager.List(ctx)
}

// GetModel returns one model record.
func (s *Service) GetModel(ctx context.Context, id string) (model.Record, error) {
	if err := s.ready(); err != nil {
		return model.Record{}, err
	}
	return s.manager.Get(ctx, id)
}

// TrainModel fits the model on a labeled dataset.
func (s *Service) TrainModel(ctx context.Context, id string, dataset []model.FeatureRecord) (lifecycle.TrainResult, error) {
	return call(ctx, s, jobqueue.KindTrain, id, func(ctx context.Context) (lifecycle.TrainResult, error) {
		return s.manager.TrainIncrementally(ctx, id, dataset)
	})
}

// RankCandidates returns the topK highest scoring candidates.
func (s *Service) RankCandidates(ctx context.Context, id string, candidates []model.FeatureRecord, topK int) ([]model.ScoredCandidate, error) {
	return call(ctx, s, jobqueue.KindRank, id, func(ctx context.Context) ([]model.ScoredCandidate, error) {
		return s.engine.Rank(ctx, id, candidates, topK)
	})
}

// FetchArtifact opens the model artifact for streaming.
func (s *Service) FetchArtifact(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	return s.manager.FetchArtifact(ctx, id)
}

// DeleteModel removes a model and its artifact.
func (s *Service) DeleteModel(ctx context.Context, id string) (lifecycle.DeleteResult, error) {
	return call(ctx, s, jobqueue.KindDelete, id, func(ctx context.Context) (lifecycle.DeleteResult, error) {
		return s.manager.Delete(ctx, id)
	})
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}
	if !s.started {
		return stats
	}

	stats["queueLength"] = s.jobs.Len(ctx)
	stats["activeWorkers"] = s.pool.Active()
	stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
	if n, err := s.records.Count(ctx); err == nil {
		stats["models"] = n
		metrics.UpdateModelsTotal(n)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	stats["heapBytes"] = mem.HeapAlloc
	stats["goroutines"] = runtime.NumGoroutine()
	metrics.UpdateSystemMemoryUsage(mem.HeapAlloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	return stats
}
