package mlp

import (
	"math"

	"github.com/okian/noderank/internal/domain/predictor"
)

// activation pairs a function with its derivative. df receives both the
// pre-activation z and the activation a = f(z).
type activation struct {
	f  func(z float64) float64
	df func(z, a float64) float64
}

var activations = map[string]activation{
	predictor.ActivationReLU: {
		f: func(z float64) float64 { return math.Max(0, z) },
		df: func(z, _ float64) float64 {
			if z > 0 {
				return 1
			}
			return 0
		},
	},
	predictor.ActivationSigmoid: {
		f:  sigmoid,
		df: func(_, a float64) float64 { return a * (1 - a) },
	},
	predictor.ActivationTanh: {
		f:  math.Tanh,
		df: func(_, a float64) float64 { return 1 - a*a },
	},
	predictor.ActivationLinear: {
		f:  func(z float64) float64 { return z },
		df: func(_, _ float64) float64 { return 1 },
	},
}

func lookupActivation(name string) (activation, bool) {
	a, ok := activations[name]
	return a, ok
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
