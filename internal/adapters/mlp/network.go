// Package mlp implements predictor.Predictor as a small dense network with one
// hidden layer, trained with Adam on binary cross-entropy. Numerics use gonum.
package mlp

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/okian/noderank/internal/domain/predictor"
	"gonum.org/v1/gonum/mat"
)

const (
	probabilityEpsilon = 1e-7
	adamBeta1          = 0.9
	adamBeta2          = 0.999
	adamEpsilon        = 1e-7
	defaultBatchSize   = 32
	defaultLearnRate   = 0.001
)

// params holds the trainable tensors as flat row-major slices.
type params struct {
	w1 []float64 // Inputs x Hidden
	b1 []float64 // Hidden
	w2 []float64 // Hidden x Outputs
	b2 []float64 // Outputs
}

func (p params) clone() params {
	return params{
		w1: append([]float64(nil), p.w1...),
		b1: append([]float64(nil), p.b1...),
		w2: append([]float64(nil), p.w2...),
		b2: append([]float64(nil), p.b2...),
	}
}

func (p params) slices() [][]float64 {
	return [][]float64{p.w1, p.b1, p.w2, p.b2}
}

func (p params) finite() bool {
	for _, s := range p.slices() {
		for _, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Network is a one-hidden-layer perceptron with a single sigmoid output.
type Network struct {
	topo   predictor.Topology
	p      params
	rng    *rand.Rand
	comp   *predictor.Compile
	hidden activation
}

var _ predictor.Predictor = (*Network)(nil)

func newNetwork(t predictor.Topology, rng *rand.Rand) (*Network, error) {
	if err := validateTopology(t); err != nil {
		return nil, err
	}
	act, _ := lookupActivation(t.HiddenActivation)
	return &Network{
		topo:   t,
		rng:    rng,
		hidden: act,
		p: params{
			w1: make([]float64, t.Inputs*t.Hidden),
			b1: make([]float64, t.Hidden),
			w2: make([]float64, t.Hidden*t.Outputs),
			b2: make([]float64, t.Outputs),
		},
	}, nil
}

func validateTopology(t predictor.Topology) error {
	switch {
	case t.Inputs < 1:
		return fmt.Errorf("%w: inputs must be positive", ErrInvalidTopology)
	case t.Hidden < 1:
		return fmt.Errorf("%w: hidden units must be positive", ErrInvalidTopology)
	case t.Outputs != 1:
		return fmt.Errorf("%w: exactly one output is supported", ErrInvalidTopology)
	case t.OutputActivation != predictor.ActivationSigmoid:
		return fmt.Errorf("%w: output activation must be %q", ErrInvalidTopology, predictor.ActivationSigmoid)
	}
	if _, ok := lookupActivation(t.HiddenActivation); !ok {
		return fmt.Errorf("%w: unknown hidden activation %q", ErrInvalidTopology, t.HiddenActivation)
	}
	return nil
}

// glorotInit fills the kernels with Glorot-uniform values and zeroes the biases.
func (n *Network) glorotInit() {
	fill := func(w []float64, fanIn, fanOut int) {
		limit := math.Sqrt(6 / float64(fanIn+fanOut))
		for i := range w {
			w[i] = (n.rng.Float64()*2 - 1) * limit
		}
	}
	fill(n.p.w1, n.topo.Inputs, n.topo.Hidden)
	fill(n.p.w2, n.topo.Hidden, n.topo.Outputs)
	clear(n.p.b1)
	clear(n.p.b2)
}

// Topology returns the network shape.
func (n *Network) Topology() predictor.Topology { return n.topo }

// Compile sets the optimizer configuration and resets optimizer state.
func (n *Network) Compile(c predictor.Compile) error {
	if c.Optimizer != predictor.OptimizerAdam {
		return fmt.Errorf("%w: %q", ErrUnsupportedOptimizer, c.Optimizer)
	}
	if c.Loss != predictor.LossBinaryCrossentropy {
		return fmt.Errorf("%w: %q", ErrUnsupportedLoss, c.Loss)
	}
	if c.LearningRate <= 0 {
		c.LearningRate = defaultLearnRate
	}
	n.comp = &c
	return nil
}

// Predict runs one forward pass over x and returns one score per row.
func (n *Network) Predict(x *mat.Dense) (*mat.VecDense, error) {
	if err := n.checkInput(x); err != nil {
		return nil, err
	}
	_, _, out := n.forward(n.p, x)
	rows, _ := out.Dims()
	scores := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		scores.SetVec(i, out.At(i, 0))
	}
	return scores, nil
}

func (n *Network) checkInput(x *mat.Dense) error {
	if x == nil || x.IsEmpty() {
		return ErrEmptyInput
	}
	if _, c := x.Dims(); c != n.topo.Inputs {
		return fmt.Errorf("%w: got %d columns, want %d", ErrShapeMismatch, c, n.topo.Inputs)
	}
	return nil
}

// forward returns the hidden pre-activations, hidden activations and output
// probabilities for x under p.
func (n *Network) forward(p params, x *mat.Dense) (z1, h, out *mat.Dense) {
	rows, _ := x.Dims()
	w1 := mat.NewDense(n.topo.Inputs, n.topo.Hidden, p.w1)
	w2 := mat.NewDense(n.topo.Hidden, n.topo.Outputs, p.w2)

	z1 = mat.NewDense(rows, n.topo.Hidden, nil)
	z1.Mul(x, w1)
	z1.Apply(func(_, j int, v float64) float64 { return v + p.b1[j] }, z1)

	h = mat.NewDense(rows, n.topo.Hidden, nil)
	h.Apply(func(_, _ int, v float64) float64 { return n.hidden.f(v) }, z1)

	out = mat.NewDense(rows, n.topo.Outputs, nil)
	out.Mul(h, w2)
	out.Apply(func(_, j int, v float64) float64 { return sigmoid(v + p.b2[j]) }, out)
	return z1, h, out
}

// Fit trains a copy of the weights and commits them only when every epoch
// completes and the result is finite.
func (n *Network) Fit(ctx context.Context, x *mat.Dense, y *mat.VecDense, opts predictor.FitOptions) (predictor.FitResult, error) {
	if n.comp == nil {
		return predictor.FitResult{}, ErrNotCompiled
	}
	if err := n.checkInput(x); err != nil {
		return predictor.FitResult{}, err
	}
	rows, _ := x.Dims()
	if y == nil || y.Len() != rows {
		return predictor.FitResult{}, fmt.Errorf("%w: labels do not match rows", ErrShapeMismatch)
	}
	if opts.Epochs < 1 {
		return predictor.FitResult{}, fmt.Errorf("%w: epochs must be positive", ErrInvalidFitOptions)
	}
	batch := opts.BatchSize
	if batch < 1 {
		batch = defaultBatchSize
	}

	work := n.p.clone()
	opt := newAdam(n.comp.LearningRate, work)
	order := make([]int, rows)
	for i := range order {
		order[i] = i
	}

	var loss float64
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		if opts.Shuffle {
			n.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		var total float64
		for start := 0; start < rows; start += batch {
			if err := ctx.Err(); err != nil {
				return predictor.FitResult{}, fmt.Errorf("fit interrupted at epoch %d: %w", epoch+1, err)
			}
			end := min(start+batch, rows)
			xb, yb := gather(x, y, order[start:end])
			l, grads := n.gradients(work, xb, yb)
			opt.step(work, grads)
			total += l * float64(end-start)
		}
		loss = total / float64(rows)
	}

	if !work.finite() || math.IsNaN(loss) {
		return predictor.FitResult{}, ErrDiverged
	}
	n.p = work
	return predictor.FitResult{Epochs: opts.Epochs, FinalLoss: loss}, nil
}

func gather(x *mat.Dense, y *mat.VecDense, idx []int) (*mat.Dense, []float64) {
	_, cols := x.Dims()
	xb := mat.NewDense(len(idx), cols, nil)
	yb := make([]float64, len(idx))
	for i, r := range idx {
		xb.SetRow(i, x.RawRowView(r))
		yb[i] = y.AtVec(r)
	}
	return xb, yb
}

// gradients returns the mean binary cross-entropy of the batch and the
// gradient of every parameter.
func (n *Network) gradients(p params, x *mat.Dense, y []float64) (float64, params) {
	rows, _ := x.Dims()
	z1, h, out := n.forward(p, x)
	m := float64(rows)

	var loss float64
	dz2 := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		prob := clamp(out.At(i, 0), probabilityEpsilon, 1-probabilityEpsilon)
		loss -= y[i]*math.Log(prob) + (1-y[i])*math.Log(1-prob)
		dz2.Set(i, 0, (out.At(i, 0)-y[i])/m)
	}
	loss /= m

	g := params{
		w1: make([]float64, len(p.w1)),
		b1: make([]float64, len(p.b1)),
		w2: make([]float64, len(p.w2)),
		b2: make([]float64, len(p.b2)),
	}

	dw2 := mat.NewDense(n.topo.Hidden, 1, g.w2)
	dw2.Mul(h.T(), dz2)
	for i := 0; i < rows; i++ {
		g.b2[0] += dz2.At(i, 0)
	}

	w2 := mat.NewDense(n.topo.Hidden, 1, p.w2)
	dz1 := mat.NewDense(rows, n.topo.Hidden, nil)
	dz1.Mul(dz2, w2.T())
	dz1.Apply(func(i, j int, v float64) float64 {
		return v * n.hidden.df(z1.At(i, j), h.At(i, j))
	}, dz1)

	dw1 := mat.NewDense(n.topo.Inputs, n.topo.Hidden, g.w1)
	dw1.Mul(x.T(), dz1)
	for i := 0; i < rows; i++ {
		for j := 0; j < n.topo.Hidden; j++ {
			g.b1[j] += dz1.At(i, j)
		}
	}
	return loss, g
}

// adam keeps first and second moment estimates for one Fit call.
type adam struct {
	lr   float64
	t    int
	m, v params
}

func newAdam(lr float64, like params) *adam {
	zero := func(s []float64) []float64 { return make([]float64, len(s)) }
	return &adam{
		lr: lr,
		m:  params{w1: zero(like.w1), b1: zero(like.b1), w2: zero(like.w2), b2: zero(like.b2)},
		v:  params{w1: zero(like.w1), b1: zero(like.b1), w2: zero(like.w2), b2: zero(like.b2)},
	}
}

func (a *adam) step(p, g params) {
	a.t++
	c1 := 1 - math.Pow(adamBeta1, float64(a.t))
	c2 := 1 - math.Pow(adamBeta2, float64(a.t))
	ps, gs, ms, vs := p.slices(), g.slices(), a.m.slices(), a.v.slices()
	for k := range ps {
		for i := range ps[k] {
			gi := gs[k][i]
			ms[k][i] = adamBeta1*ms[k][i] + (1-adamBeta1)*gi
			vs[k][i] = adamBeta2*vs[k][i] + (1-adamBeta2)*gi*gi
			mHat := ms[k][i] / c1
			vHat := vs[k][i] / c2
			ps[k][i] -= a.lr * mHat / (math.Sqrt(vHat) + adamEpsilon)
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
