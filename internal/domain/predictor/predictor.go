// Package predictor declares the trainable scoring capability the lifecycle
// manager and ranking engine depend on. Implementations live in adapters.
package predictor

import (
	"context"
	"io"

	"gonum.org/v1/gonum/mat"
)

// Activation names understood by predictors.
const (
	ActivationReLU    = "relu"
	ActivationSigmoid = "sigmoid"
	ActivationTanh    = "tanh"
	ActivationLinear  = "linear"
)

// Optimizer and loss names.
const (
	OptimizerAdam          = "adam"
	LossBinaryCrossentropy = "binaryCrossentropy"
)

// Topology describes a network with one hidden layer and one scalar output.
type Topology struct {
	Inputs           int    `json:"inputs"`
	Hidden           int    `json:"hidden"`
	Outputs          int    `json:"outputs"`
	HiddenActivation string `json:"hiddenActivation"`
	OutputActivation string `json:"outputActivation"`
}

// Compile configures how Fit updates weights. Optimizer state is never persisted,
// so a loaded predictor must be compiled again before fitting.
type Compile struct {
	Optimizer    string
	Loss         string
	LearningRate float64
}

// FitOptions controls a Fit call.
type FitOptions struct {
	Epochs    int
	BatchSize int
	Shuffle   bool
}

// FitResult summarizes a completed Fit call.
type FitResult struct {
	Epochs    int
	FinalLoss float64
}

// Predictor is a trainable function from an N x Inputs matrix to N scores.
type Predictor interface {
	Topology() Topology
	Compile(c Compile) error
	// Fit trains on x (N x Inputs) and y (N). It must not leave the predictor
	// half-updated on error: implementations train on a copy or validate first.
	Fit(ctx context.Context, x *mat.Dense, y *mat.VecDense, opts FitOptions) (FitResult, error)
	// Predict is read-only and safe for concurrent use.
	Predict(x *mat.Dense) (*mat.VecDense, error)
	Save(w io.Writer) error
}

// Factory creates fresh predictors and restores saved ones.
type Factory interface {
	Create(t Topology) (Predictor, error)
	Load(r io.Reader) (Predictor, error)
}
