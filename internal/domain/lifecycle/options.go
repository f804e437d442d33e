package lifecycle

import (
	"math/rand/v2"
	"time"

	"github.com/okian/noderank/internal/domain/model"
	"github.com/okian/noderank/internal/domain/predictor"
	"github.com/okian/noderank/pkg/logger"
)

// Defaults for a Manager.
const (
	DefaultHiddenUnits      = 10
	DefaultTrainEpochs      = 10
	DefaultBatchSize        = 32
	DefaultBootstrapSamples = 10
	DefaultLearningRate     = 0.001
	DefaultTrainTimeout     = 60 * time.Second
	DefaultIOTimeout        = 10 * time.Second
)

// DefaultTopology maps the four node features through a relu hidden layer to
// one sigmoid score.
func DefaultTopology() predictor.Topology {
	return predictor.Topology{
		Inputs:           model.FeatureCount,
		Hidden:           DefaultHiddenUnits,
		Outputs:          1,
		HiddenActivation: predictor.ActivationReLU,
		OutputActivation: predictor.ActivationSigmoid,
	}
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithTopology sets the shape of newly created predictors.
func WithTopology(t predictor.Topology) Option {
	return func(m *Manager) { m.topology = t }
}

// WithLearningRate sets the Adam learning rate used for every fit.
func WithLearningRate(lr float64) Option {
	return func(m *Manager) {
		if lr > 0 {
			m.compile.LearningRate = lr
		}
	}
}

// WithTrainEpochs sets the epochs per incremental training call.
func WithTrainEpochs(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.trainEpochs = n
		}
	}
}

// WithBatchSize sets the mini-batch size for training.
func WithBatchSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithBootstrapSamples sets how many synthetic rows seed a new predictor.
func WithBootstrapSamples(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.bootstrapSamples = n
		}
	}
}

// WithTrainTimeout bounds a single fit.
func WithTrainTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.trainTimeout = d
		}
	}
}

// WithIOTimeout bounds artifact loads and saves.
func WithIOTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ioTimeout = d
		}
	}
}

// WithMaxDatasetSize caps the rows accepted by one training call. Zero means no cap.
func WithMaxDatasetSize(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxDatasetSize = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides uuid allocation.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// WithSeed makes bootstrap data reproducible.
func WithSeed(seed uint64) Option {
	return func(m *Manager) {
		m.rng = rand.New(rand.NewPCG(seed, seed+1))
	}
}
