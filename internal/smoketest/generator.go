package smoketest

import (
	"math"
	"math/rand/v2"

	"github.com/okian/noderank/internal/domain/model"
)

// Feature ranges for generated nodes.
const (
	maxAge      = 100
	maxDepth    = 8
	nodeTypes   = 3
	labelNoise  = 0.05
	ageWeight   = -0.04
	depthWeight = -0.3
	noiseWeight = -2.0
	typeWeight  = 0.5
	labelBias   = 2.5
)

// Generator produces feature records from a seeded source.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator. Equal seeds produce equal data.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Candidate returns one unlabeled node.
func (g *Generator) Candidate() model.FeatureRecord {
	return model.FeatureRecord{
		Age:        g.rng.Int64N(maxAge),
		Depth:      g.rng.Int64N(maxDepth),
		NoiseLevel: math.Round(g.rng.Float64()*1000) / 1000,
		NodeType:   g.rng.Int64N(nodeTypes),
	}
}

// Candidates returns n unlabeled nodes.
func (g *Generator) Candidates(n int) []model.FeatureRecord {
	out := make([]model.FeatureRecord, n)
	for i := range out {
		out[i] = g.Candidate()
	}
	return out
}

// Dataset returns n nodes labeled by a fixed logistic rule: young, shallow,
// quiet nodes of higher type score high.
func (g *Generator) Dataset(n int) []model.FeatureRecord {
	out := g.Candidates(n)
	for i := range out {
		l := TargetScore(out[i]) + (g.rng.Float64()*2-1)*labelNoise
		l = math.Max(0, math.Min(1, l))
		out[i].Label = &l
	}
	return out
}

// TargetScore is the noiseless label of f.
func TargetScore(f model.FeatureRecord) float64 {
	z := labelBias +
		ageWeight*float64(f.Age) +
		depthWeight*float64(f.Depth) +
		noiseWeight*f.NoiseLevel +
		typeWeight*float64(f.NodeType)
	return 1 / (1 + math.Exp(-z))
}
