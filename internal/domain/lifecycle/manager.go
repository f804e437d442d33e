// Package lifecycle owns the model state machine: create with bootstrap
// weights, incremental training with in-place artifact replacement, and
// deletion. Training and deletion are serialized per model id.
package lifecycle

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/noderank/internal/domain/encoding"
	"github.com/okian/noderank/internal/domain/errkind"
	"github.com/okian/noderank/internal/domain/model"
	"github.com/okian/noderank/internal/domain/predictor"
	"github.com/okian/noderank/pkg/logger"
	"github.com/okian/noderank/pkg/metrics"
	"gonum.org/v1/gonum/mat"
)

// RecordStore is the subset of the record store the manager needs. A missing
// id must be reported with an error matching errkind.ErrNotFound.
type RecordStore interface {
	Create(ctx context.Context, rec model.Record) error
	FindByID(ctx context.Context, id string) (model.Record, error)
	FindAll(ctx context.Context) ([]model.Record, error)
	UpdateStatus(ctx context.Context, id string, status model.Status, at time.Time) (model.Record, error)
	Delete(ctx context.Context, id string) error
}

// ArtifactStore persists serialized predictors by model id. Open on a missing
// artifact must return an error matching fs.ErrNotExist.
type ArtifactStore interface {
	Location(id string) string
	Save(ctx context.Context, id string, write func(io.Writer) error) (int64, error)
	Open(ctx context.Context, id string) (io.ReadCloser, int64, error)
	Remove(ctx context.Context, id string) error
}

// CreateInput is the caller-supplied part of a new model.
type CreateInput struct {
	Name     string
	Metadata *string
}

// DeleteResult reports the outcome of a delete. The record is always gone
// when err is nil; ArtifactRemoved is false if the artifact directory could
// not be cleaned up.
type DeleteResult struct {
	ArtifactRemoved bool
}

// TrainResult is the updated record plus fit statistics.
type TrainResult struct {
	Record    model.Record
	Rows      int
	FinalLoss float64
}

// Manager implements create, train, delete and read operations on models.
type Manager struct {
	records   RecordStore
	artifacts ArtifactStore
	factory   predictor.Factory
	log       logger.Logger
	locks     *keyedMutex

	topology         predictor.Topology
	compile          predictor.Compile
	trainEpochs      int
	batchSize        int
	bootstrapSamples int
	trainTimeout     time.Duration
	ioTimeout        time.Duration
	maxDatasetSize   int

	now   func() time.Time
	newID func() string

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New returns a Manager over the given stores and predictor factory.
func New(records RecordStore, artifacts ArtifactStore, factory predictor.Factory, opts ...Option) *Manager {
	m := &Manager{
		records:   records,
		artifacts: artifacts,
		factory:   factory,
		log:       logger.Nop(),
		locks:     newKeyedMutex(),
		topology:  DefaultTopology(),
		compile: predictor.Compile{
			Optimizer:    predictor.OptimizerAdam,
			Loss:         predictor.LossBinaryCrossentropy,
			LearningRate: DefaultLearningRate,
		},
		trainEpochs:      DefaultTrainEpochs,
		batchSize:        DefaultBatchSize,
		bootstrapSamples: DefaultBootstrapSamples,
		trainTimeout:     DefaultTrainTimeout,
		ioTimeout:        DefaultIOTimeout,
		now:              func() time.Time { return time.Now().UTC() },
		newID:            uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return m
}

// Create validates the name, bootstraps a predictor, saves its artifact and
// writes a not-trained record.
func (m *Manager) Create(ctx context.Context, in CreateInput) (model.Record, error) {
	const op = "create"
	if err := encoding.ValidateName(in.Name); err != nil {
		return model.Record{}, errkind.Wrap(op, err)
	}
	id := m.newID()
	log := m.log.With(logger.String("model_id", id))

	size, err := m.bootstrap(ctx, id)
	if err != nil {
		m.removeOrphan(ctx, id, log)
		return model.Record{}, errkind.WrapKind(op, errkind.ErrTraining, err)
	}

	now := m.now()
	rec := model.Record{
		ID:               id,
		Name:             strings.TrimSpace(in.Name),
		ArtifactLocation: m.artifacts.Location(id),
		Status:           model.StatusNotTrained,
		Metadata:         in.Metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.records.Create(ctx, rec); err != nil {
		m.removeOrphan(ctx, id, log)
		return model.Record{}, errkind.WrapKind(op, errkind.ErrPersistence, err)
	}

	metrics.RecordModelCreated()
	metrics.RecordArtifactBytes(size)
	log.Info(ctx, "model created", logger.String("name", rec.Name), logger.Any("artifact_bytes", size))
	return rec, nil
}

// bootstrap fits a fresh predictor once on synthetic data so concrete weights
// exist, then saves it.
func (m *Manager) bootstrap(ctx context.Context, id string) (int64, error) {
	p, err := m.factory.Create(m.topology)
	if err != nil {
		return 0, err
	}
	if err := p.Compile(m.compile); err != nil {
		return 0, err
	}
	x, y := m.bootstrapData()
	fitCtx, cancel := context.WithTimeout(ctx, m.trainTimeout)
	defer cancel()
	if _, err := p.Fit(fitCtx, x, y, predictor.FitOptions{Epochs: 1, BatchSize: m.batchSize}); err != nil {
		return 0, err
	}
	return m.save(ctx, id, p)
}

// bootstrapData returns standard-normal features and uniform [0,1) labels.
func (m *Manager) bootstrapData() (*mat.Dense, *mat.VecDense) {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	n, cols := m.bootstrapSamples, m.topology.Inputs
	x := mat.NewDense(n, cols, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < cols; j++ {
			x.Set(i, j, m.rng.NormFloat64())
		}
		y.SetVec(i, m.rng.Float64())
	}
	return x, y
}

func (m *Manager) save(ctx context.Context, id string, p predictor.Predictor) (int64, error) {
	ioCtx, cancel := context.WithTimeout(ctx, m.ioTimeout)
	defer cancel()
	return m.artifacts.Save(ioCtx, id, p.Save)
}

func (m *Manager) load(ctx context.Context, id string) (predictor.Predictor, error) {
	ioCtx, cancel := context.WithTimeout(ctx, m.ioTimeout)
	defer cancel()
	rc, _, err := m.artifacts.Open(ioCtx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return m.factory.Load(rc)
}

func (m *Manager) removeOrphan(ctx context.Context, id string, log logger.Logger) {
	if err := m.artifacts.Remove(context.WithoutCancel(ctx), id); err != nil {
		metrics.RecordArtifactCleanupFailure()
		log.Warn(ctx, "orphaned artifact not removed", logger.Error(err))
	}
}

// TrainIncrementally fits the stored predictor for id on dataset and replaces
// its artifact. Every record must carry a label.
func (m *Manager) TrainIncrementally(ctx context.Context, id string, dataset []model.FeatureRecord) (TrainResult, error) {
	const op = "train"
	if err := encoding.ValidateDataset(dataset, m.maxDatasetSize); err != nil {
		return TrainResult{}, errkind.Wrap(op, err)
	}
	x := encoding.Features(dataset)
	y, err := encoding.Labels(dataset)
	if err != nil {
		return TrainResult{}, errkind.Wrap(op, err)
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	if _, err := m.find(ctx, op, id); err != nil {
		return TrainResult{}, err
	}

	log := m.log.With(logger.String("model_id", id))
	start := time.Now()
	res, err := m.fit(ctx, id, x, y)
	elapsed := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		outcome := metrics.OutcomeFailure
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = metrics.OutcomeTimeout
		}
		metrics.RecordTrainingRun(outcome, elapsed, 0)
		log.Error(ctx, "training failed", logger.Error(err), logger.String("outcome", outcome))
		return TrainResult{}, errkind.WrapKind(op, errkind.ErrTraining, err)
	}
	metrics.RecordTrainingRun(metrics.OutcomeSuccess, elapsed, res.FinalLoss)

	rec, err := m.records.UpdateStatus(ctx, id, model.StatusTrained, m.now())
	if err != nil {
		// The artifact already holds the new weights.
		log.Error(ctx, "status update failed after artifact save", logger.Error(err))
		return TrainResult{}, errkind.WrapKind(op, errkind.ErrPersistence, err)
	}
	log.Info(ctx, "model trained",
		logger.Int("rows", len(dataset)),
		logger.Float64("final_loss", res.FinalLoss),
		logger.Duration("took", time.Since(start)),
	)
	return TrainResult{Record: rec, Rows: len(dataset), FinalLoss: res.FinalLoss}, nil
}

func (m *Manager) fit(ctx context.Context, id string, x *mat.Dense, y *mat.VecDense) (predictor.FitResult, error) {
	p, err := m.load(ctx, id)
	if err != nil {
		return predictor.FitResult{}, err
	}
	if err := p.Compile(m.compile); err != nil {
		return predictor.FitResult{}, err
	}
	fitCtx, cancel := context.WithTimeout(ctx, m.trainTimeout)
	defer cancel()
	res, err := p.Fit(fitCtx, x, y, predictor.FitOptions{
		Epochs:    m.trainEpochs,
		BatchSize: m.batchSize,
		Shuffle:   true,
	})
	if err != nil {
		return predictor.FitResult{}, err
	}
	size, err := m.save(ctx, id, p)
	if err != nil {
		return predictor.FitResult{}, err
	}
	metrics.RecordArtifactBytes(size)
	return res, nil
}

// Delete removes the artifact directory and then the record. A missing
// artifact is not an error.
func (m *Manager) Delete(ctx context.Context, id string) (DeleteResult, error) {
	const op = "delete"
	unlock := m.locks.Lock(id)
	defer unlock()

	if _, err := m.find(ctx, op, id); err != nil {
		return DeleteResult{}, err
	}

	res := DeleteResult{ArtifactRemoved: true}
	if err := m.artifacts.Remove(ctx, id); err != nil {
		res.ArtifactRemoved = false
		metrics.RecordArtifactCleanupFailure()
		m.log.Warn(ctx, "artifact cleanup failed", logger.String("model_id", id), logger.Error(err))
	}
	if err := m.records.Delete(ctx, id); err != nil {
		if errors.Is(err, errkind.ErrNotFound) {
			return DeleteResult{}, errkind.WrapKind(op, errkind.ErrNotFound, err)
		}
		return DeleteResult{}, errkind.WrapKind(op, errkind.ErrPersistence, err)
	}
	metrics.RecordModelDeleted()
	m.log.Info(ctx, "model deleted", logger.String("model_id", id), logger.Bool("artifact_removed", res.ArtifactRemoved))
	return res, nil
}

// Get returns the record for id.
func (m *Manager) Get(ctx context.Context, id string) (model.Record, error) {
	return m.find(ctx, "get", id)
}

// List returns every record.
func (m *Manager) List(ctx context.Context) ([]model.Record, error) {
	recs, err := m.records.FindAll(ctx)
	if err != nil {
		return nil, errkind.WrapKind("list", errkind.ErrPersistence, err)
	}
	return recs, nil
}

// FetchArtifact opens the serialized predictor for id. The caller closes the reader.
func (m *Manager) FetchArtifact(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	const op = "fetch_artifact"
	if _, err := m.find(ctx, op, id); err != nil {
		return nil, 0, err
	}
	rc, size, err := m.artifacts.Open(ctx, id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, errkind.WrapKind(op, errkind.ErrNotFound, err)
		}
		return nil, 0, errkind.WrapKind(op, errkind.ErrPersistence, err)
	}
	return rc, size, nil
}

func (m *Manager) find(ctx context.Context, op, id string) (model.Record, error) {
	rec, err := m.records.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, errkind.ErrNotFound) {
			return model.Record{}, errkind.WrapKind(op, errkind.ErrNotFound, err)
		}
		return model.Record{}, errkind.WrapKind(op, errkind.ErrPersistence, err)
	}
	return rec, nil
}
