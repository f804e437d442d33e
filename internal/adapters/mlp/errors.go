package mlp

import "errors"

var (
	ErrInvalidTopology      = errors.New("mlp: invalid topology")
	ErrUnsupportedOptimizer = errors.New("mlp: unsupported optimizer")
	ErrUnsupportedLoss      = errors.New("mlp: unsupported loss")
	ErrNotCompiled          = errors.New("mlp: fit called before compile")
	ErrEmptyInput           = errors.New("mlp: empty input")
	ErrShapeMismatch        = errors.New("mlp: shape mismatch")
	ErrInvalidFitOptions    = errors.New("mlp: invalid fit options")
	ErrDiverged             = errors.New("mlp: training produced non-finite weights")
	ErrInvalidArtifact      = errors.New("mlp: invalid artifact")
)
