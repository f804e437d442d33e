// Package ranking scores candidate nodes with a stored predictor and returns
// the top K in a deterministic order.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/okian/noderank/internal/domain/encoding"
	"github.com/okian/noderank/internal/domain/errkind"
	"github.com/okian/noderank/internal/domain/model"
	"github.com/okian/noderank/internal/domain/predictor"
	"github.com/okian/noderank/pkg/logger"
	"github.com/okian/noderank/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const defaultIOTimeout = 10 * time.Second

// RecordFinder resolves model ids. A missing id must match errkind.ErrNotFound.
type RecordFinder interface {
	FindByID(ctx context.Context, id string) (model.Record, error)
}

// ArtifactOpener reads serialized predictors.
type ArtifactOpener interface {
	Open(ctx context.Context, id string) (io.ReadCloser, int64, error)
}

// Engine ranks candidates. Concurrent requests for the same model share one
// artifact load.
type Engine struct {
	records       RecordFinder
	artifacts     ArtifactOpener
	factory       predictor.Factory
	log           logger.Logger
	loads         singleflight.Group
	maxCandidates int
	ioTimeout     time.Duration
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMaxCandidates caps the batch size of one request. Zero means no cap.
func WithMaxCandidates(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxCandidates = n
		}
	}
}

// WithIOTimeout bounds an artifact load.
func WithIOTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.ioTimeout = d
		}
	}
}

// NewEngine returns an Engine.
func NewEngine(records RecordFinder, artifacts ArtifactOpener, factory predictor.Factory, opts ...Option) *Engine {
	e := &Engine{
		records:   records,
		artifacts: artifacts,
		factory:   factory,
		log:       logger.Nop(),
		ioTimeout: defaultIOTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rank scores every candidate with the predictor for id and returns the topK
// highest, ties kept in input order. The model need not be trained.
func (e *Engine) Rank(ctx context.Context, id string, candidates []model.FeatureRecord, topK int) ([]model.ScoredCandidate, error) {
	const op = "rank"
	start := time.Now()
	if err := encoding.ValidateCandidateBatch(candidates, topK, e.maxCandidates); err != nil {
		return nil, errkind.Wrap(op, err)
	}
	x := encoding.Features(candidates)

	if _, err := e.records.FindByID(ctx, id); err != nil {
		if errors.Is(err, errkind.ErrNotFound) {
			return nil, errkind.WrapKind(op, errkind.ErrNotFound, err)
		}
		return nil, errkind.WrapKind(op, errkind.ErrPersistence, err)
	}

	p, err := e.predictor(ctx, id)
	if err != nil {
		metrics.RecordInferenceError()
		e.log.Error(ctx, "predictor load failed", logger.String("model_id", id), logger.Error(err))
		return nil, errkind.WrapKind(op, errkind.ErrInference, err)
	}
	scores, err := p.Predict(x)
	if err != nil {
		metrics.RecordInferenceError()
		return nil, errkind.WrapKind(op, errkind.ErrInference, err)
	}
	if scores.Len() != len(candidates) {
		metrics.RecordInferenceError()
		return nil, errkind.Newf(op, errkind.ErrInference, "predictor returned %d scores for %d candidates", scores.Len(), len(candidates))
	}

	scored := make([]model.ScoredCandidate, len(candidates))
	for i, c := range candidates {
		if c.Label != nil {
			l := *c.Label
			c.Label = &l
		}
		scored[i] = model.ScoredCandidate{FeatureRecord: c, Score: scores.AtVec(i)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	metrics.RecordRank(len(candidates), float64(time.Since(start).Microseconds())/1000)
	return scored[:topK:topK], nil
}

// predictor loads the artifact for id, sharing the result with concurrent callers.
func (e *Engine) predictor(ctx context.Context, id string) (predictor.Predictor, error) {
	v, err, shared := e.loads.Do(id, func() (any, error) {
		ioCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.ioTimeout)
		defer cancel()
		rc, _, err := e.artifacts.Open(ioCtx, id)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return e.factory.Load(rc)
	})
	metrics.RecordPredictorLoad(shared)
	if err != nil {
		return nil, err
	}
	p, ok := v.(predictor.Predictor)
	if !ok {
		return nil, fmt.Errorf("unexpected predictor type %T", v)
	}
	return p, nil
}
