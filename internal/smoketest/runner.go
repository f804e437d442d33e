package smoketest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/noderank/internal/domain/model"
	"github.com/okian/noderank/pkg/logger"
	"golang.org/x/sync/errgroup"
)

func (c *Config) withDefaults() (*Config, error) {
	out := *c
	if out.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidRun)
	}
	if out.Models <= 0 {
		out.Models = DefaultModels
	}
	if out.Workers <= 0 {
		out.Workers = DefaultWorkers
	}
	if out.TrainRows <= 0 {
		out.TrainRows = DefaultTrainRows
	}
	if out.TrainCalls <= 0 {
		out.TrainCalls = DefaultTrainCalls
	}
	if out.Candidates <= 0 {
		out.Candidates = DefaultCandidates
	}
	if out.TopK <= 0 {
		out.TopK = DefaultTopK
	}
	if out.TopK > out.Candidates {
		return nil, fmt.Errorf("%w: top %d exceeds %d candidates", ErrInvalidRun, out.TopK, out.Candidates)
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	return &out, nil
}

// runner carries the shared state of one Run.
type runner struct {
	cfg    *Config
	client *Client
	log    logger.Logger

	mu    sync.Mutex
	stats *Stats
}

// Run drives Models models through create, train, rank, download and delete
// against a live service and verifies every response.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Stats, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &runner{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.Timeout),
		log:    log,
		stats:  &Stats{StartTime: time.Now(), RankingsByModel: map[string][]model.ScoredCandidate{}},
	}

	log.Info(ctx, "starting noderank smoke run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("models", cfg.Models),
		logger.Int("workers", cfg.Workers),
		logger.Int("trainRows", cfg.TrainRows),
		logger.Int("candidates", cfg.Candidates),
		logger.Int("topK", cfg.TopK))

	if err := r.client.Health(ctx); err != nil {
		return r.stats, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := 0; i < cfg.Models; i++ {
		g.Go(func() error {
			return r.exercise(gctx, i)
		})
	}
	runErr := g.Wait()

	r.stats.EndTime = time.Now()
	r.stats.Duration = r.stats.EndTime.Sub(r.stats.StartTime)
	r.report(ctx)

	if runErr != nil {
		return r.stats, runErr
	}
	if cfg.OutputFile != "" {
		if err := r.save(); err != nil {
			log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}
	log.Info(ctx, "smoke run completed successfully")
	return r.stats, nil
}

// exercise runs the full lifecycle of one model.
func (r *runner) exercise(ctx context.Context, i int) error {
	gen := NewGenerator(r.cfg.Seed + uint64(i))
	name := fmt.Sprintf("smoke-%d", i)
	meta := fmt.Sprintf(`{"run":%q}`, r.stats.StartTime.Format(time.RFC3339))

	var rec model.Record
	if err := r.retry(ctx, func() (err error) {
		rec, err = r.client.CreateModel(ctx, name, &meta)
		return err
	}); err != nil {
		return r.fail("create", name, err)
	}
	r.count(func(s *Stats) { s.ModelsCreated++ })
	if rec.Status != model.StatusNotTrained {
		return r.fail("create", name, fmt.Errorf("%w: status %q", ErrVerification, rec.Status))
	}
	log := r.log.With(logger.String("model_id", rec.ID))

	for c := 0; c < r.cfg.TrainCalls; c++ {
		dataset := gen.Dataset(r.cfg.TrainRows)
		if err := r.retry(ctx, func() (err error) {
			rec, err = r.client.TrainModel(ctx, rec.ID, dataset)
			return err
		}); err != nil {
			return r.fail("train", rec.ID, err)
		}
		r.count(func(s *Stats) { s.TrainCalls++ })
	}
	if rec.Status != model.StatusTrained {
		return r.fail("train", rec.ID, fmt.Errorf("%w: status %q", ErrVerification, rec.Status))
	}

	candidates := gen.Candidates(r.cfg.Candidates)
	var top []model.ScoredCandidate
	if err := r.retry(ctx, func() (err error) {
		top, err = r.client.Rank(ctx, rec.ID, candidates, r.cfg.TopK)
		return err
	}); err != nil {
		return r.fail("rank", rec.ID, err)
	}
	if err := VerifyRanking(candidates, r.cfg.TopK, top); err != nil {
		return r.fail("rank", rec.ID, err)
	}
	r.count(func(s *Stats) {
		s.RankCalls++
		s.RankingsByModel[rec.ID] = top
	})

	raw, err := r.client.Download(ctx, rec.ID)
	if err != nil {
		return r.fail("download", rec.ID, err)
	}
	if err := VerifyArtifact(raw); err != nil {
		return r.fail("download", rec.ID, err)
	}
	r.count(func(s *Stats) {
		s.Downloads++
		s.ArtifactBytes += int64(len(raw))
	})

	if r.cfg.Verbose {
		log.Info(ctx, "model verified", logger.Float64("topScore", top[0].Score))
	}
	if r.cfg.Keep {
		return nil
	}

	if err := r.retry(ctx, func() error {
		_, err := r.client.DeleteModel(ctx, rec.ID)
		return err
	}); err != nil {
		return r.fail("delete", rec.ID, err)
	}
	var se *StatusError
	if _, err := r.client.GetModel(ctx, rec.ID); !errors.As(err, &se) || se.Status != http.StatusNotFound {
		return r.fail("delete", rec.ID, fmt.Errorf("%w: model still readable after delete: %v", ErrVerification, err))
	}
	r.count(func(s *Stats) { s.ModelsDeleted++ })
	return nil
}

// retry repeats fn while the service answers 429.
func (r *runner) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxBackpressureRetries; attempt++ {
		err = fn()
		var se *StatusError
		if !errors.As(err, &se) || se.Status != http.StatusTooManyRequests {
			return err
		}
		r.count(func(s *Stats) { s.Backpressure++ })
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backpressureBackoff * time.Duration(attempt+1)):
		}
	}
	return err
}

func (r *runner) count(update func(*Stats)) {
	r.mu.Lock()
	update(r.stats)
	r.mu.Unlock()
}

func (r *runner) fail(step, subject string, err error) error {
	r.count(func(s *Stats) { s.Failures++ })
	return fmt.Errorf("%s %s: %w", step, subject, err)
}

// save writes the rankings as JSON to OutputFile.
func (r *runner) save() error {
	dir := filepath.Dir(r.cfg.OutputFile)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	b, err := json.MarshalIndent(r.stats.RankingsByModel, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return os.WriteFile(r.cfg.OutputFile, b, 0o600)
}

// report logs the final statistics.
func (r *runner) report(ctx context.Context) {
	s := r.stats
	var successRate, modelsPerSecond float64
	if s.ModelsCreated > 0 {
		successRate = float64(s.ModelsCreated-s.Failures) / float64(s.ModelsCreated) * percentMultiplier
	}
	if s.Duration > 0 {
		modelsPerSecond = float64(s.ModelsCreated) / s.Duration.Seconds()
	}
	r.log.Info(ctx, "final statistics",
		logger.Int("modelsCreated", s.ModelsCreated),
		logger.Int("trainCalls", s.TrainCalls),
		logger.Int("rankCalls", s.RankCalls),
		logger.Int("downloads", s.Downloads),
		logger.Int("modelsDeleted", s.ModelsDeleted),
		logger.Int("backpressure", s.Backpressure),
		logger.Int("failures", s.Failures),
		logger.Any("artifactBytes", s.ArtifactBytes),
		logger.Duration("duration", s.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("modelsPerSecond", modelsPerSecond))
}
