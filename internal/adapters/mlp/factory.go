package mlp

import (
	"io"
	"math/rand/v2"
	"sync"

	"github.com/okian/noderank/internal/domain/predictor"
)

// Factory creates and loads Networks. Each Network gets its own random source
// derived from the factory seed stream.
type Factory struct {
	mu  sync.Mutex
	src *rand.Rand
}

var _ predictor.Factory = (*Factory)(nil)

// Option configures a Factory.
type Option func(*Factory)

// WithSeed makes weight initialisation and shuffling reproducible.
func WithSeed(seed uint64) Option {
	return func(f *Factory) {
		f.src = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// NewFactory returns a Factory seeded from the runtime unless WithSeed is given.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{}
	for _, opt := range opts {
		opt(f)
	}
	if f.src == nil {
		f.src = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return f
}

func (f *Factory) nextRand() *rand.Rand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return rand.New(rand.NewPCG(f.src.Uint64(), f.src.Uint64()))
}

// Create returns a Glorot-initialised network of shape t.
func (f *Factory) Create(t predictor.Topology) (predictor.Predictor, error) {
	n, err := newNetwork(t, f.nextRand())
	if err != nil {
		return nil, err
	}
	n.glorotInit()
	return n, nil
}

// Load restores a network written by Network.Save.
func (f *Factory) Load(r io.Reader) (predictor.Predictor, error) {
	a, err := decodeArtifact(r)
	if err != nil {
		return nil, err
	}
	n, err := newNetwork(a.Topology, f.nextRand())
	if err != nil {
		return nil, err
	}
	if err := n.restore(a.Weights); err != nil {
		return nil, err
	}
	return n, nil
}
