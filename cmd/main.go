package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/noderank/internal/adapters/artifact"
	"github.com/okian/noderank/internal/adapters/http/api"
	"github.com/okian/noderank/internal/adapters/http/swagger"
	"github.com/okian/noderank/internal/adapters/mlp"
	"github.com/okian/noderank/internal/adapters/repository"
	app "github.com/okian/noderank/internal/app"
	"github.com/okian/noderank/internal/config"
	"github.com/okian/noderank/internal/domain/lifecycle"
	"github.com/okian/noderank/internal/domain/predictor"
	"github.com/okian/noderank/internal/domain/ranking"
	"github.com/okian/noderank/pkg/logger"
	"github.com/okian/noderank/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

// run loads configuration, wires the service and serves HTTP until ctx ends.
func run(ctx context.Context, out io.Writer) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitWithWriter(out, cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	records, closeRecords, err := openRecordStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRecords(); err != nil {
			log.Warn(ctx, "record store close failed", logger.Error(err))
		}
	}()

	svc := newService(cfg, log, records, artifact.NewStore(cfg.ArtifactRoot), mlp.NewFactory())
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.CORS(mux),
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		// No write timeout: training responses are bounded by train_timeout_ms.
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "server shutdown failed", logger.Error(err))
		}
		svc.Stop(shutdownCtx)
		return nil
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// openRecordStore opens the configured store once for the process lifetime.
func openRecordStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, func() error, error) {
	if cfg.DBDriver == config.DriverMemory {
		log.Warn(ctx, "using in-memory record store; records are lost on restart")
		return repository.NewMemoryStore(), func() error { return nil }, nil
	}
	store, err := repository.Open(ctx, cfg.DBDriver, cfg.DBDSN,
		repository.WithLogger(log.Named("gorm")),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open record store: %w", err)
	}
	log.Info(ctx, "record store ready", logger.String("driver", cfg.DBDriver))
	return store, store.Close, nil
}

func newService(cfg *config.Config, log logger.Logger, records repository.Store, artifacts *artifact.Store, factory predictor.Factory) *app.Service {
	topology := lifecycle.DefaultTopology()
	topology.Hidden = cfg.HiddenUnits

	return app.New(
		app.WithLogger(log),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithRecordStore(records),
		app.WithArtifactStore(artifacts),
		app.WithPredictorFactory(factory),
		app.WithLifecycleOptions(
			lifecycle.WithTopology(topology),
			lifecycle.WithTrainEpochs(cfg.TrainEpochs),
			lifecycle.WithBootstrapSamples(cfg.BootstrapSamples),
			lifecycle.WithLearningRate(cfg.LearningRate),
			lifecycle.WithBatchSize(cfg.BatchSize),
			lifecycle.WithTrainTimeout(cfg.TrainTimeout()),
			lifecycle.WithIOTimeout(cfg.IOTimeout()),
			lifecycle.WithMaxDatasetSize(cfg.MaxDatasetSize),
		),
		app.WithRankingOptions(
			ranking.WithIOTimeout(cfg.IOTimeout()),
			ranking.WithMaxCandidates(cfg.MaxCandidates),
		),
	)
}

// startSystemMetricsUpdater updates system metrics until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
