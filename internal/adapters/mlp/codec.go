package mlp

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/okian/noderank/internal/domain/predictor"
)

const (
	artifactFormat  = "noderank-mlp"
	artifactVersion = 1
)

// artifact is the on-disk form of a Network: topology plus named weight tensors.
type artifact struct {
	Format   string             `json:"format"`
	Version  int                `json:"version"`
	Topology predictor.Topology `json:"topology"`
	Weights  []tensor           `json:"weights"`
}

type tensor struct {
	Name   string    `json:"name"`
	Shape  []int     `json:"shape"`
	Values []float64 `json:"values"`
}

// Save writes the topology and weights as JSON. Optimizer state is not saved.
func (n *Network) Save(w io.Writer) error {
	t := n.topo
	a := artifact{
		Format:   artifactFormat,
		Version:  artifactVersion,
		Topology: t,
		Weights: []tensor{
			{Name: "hidden/kernel", Shape: []int{t.Inputs, t.Hidden}, Values: n.p.w1},
			{Name: "hidden/bias", Shape: []int{t.Hidden}, Values: n.p.b1},
			{Name: "output/kernel", Shape: []int{t.Hidden, t.Outputs}, Values: n.p.w2},
			{Name: "output/bias", Shape: []int{t.Outputs}, Values: n.p.b2},
		},
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(a); err != nil {
		return fmt.Errorf("encode network: %w", err)
	}
	return nil
}

func decodeArtifact(r io.Reader) (artifact, error) {
	var a artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if a.Format != artifactFormat {
		return a, fmt.Errorf("%w: unexpected format %q", ErrInvalidArtifact, a.Format)
	}
	if a.Version != artifactVersion {
		return a, fmt.Errorf("%w: unsupported version %d", ErrInvalidArtifact, a.Version)
	}
	return a, nil
}

// restore copies decoded tensors into n after checking every shape.
func (n *Network) restore(ws []tensor) error {
	t := n.topo
	want := map[string]struct {
		shape []int
		dst   []float64
	}{
		"hidden/kernel": {[]int{t.Inputs, t.Hidden}, n.p.w1},
		"hidden/bias":   {[]int{t.Hidden}, n.p.b1},
		"output/kernel": {[]int{t.Hidden, t.Outputs}, n.p.w2},
		"output/bias":   {[]int{t.Outputs}, n.p.b2},
	}
	if len(ws) != len(want) {
		return fmt.Errorf("%w: expected %d tensors, got %d", ErrInvalidArtifact, len(want), len(ws))
	}
	seen := make(map[string]bool, len(ws))
	for _, w := range ws {
		spec, ok := want[w.Name]
		if !ok {
			return fmt.Errorf("%w: unknown tensor %q", ErrInvalidArtifact, w.Name)
		}
		if seen[w.Name] {
			return fmt.Errorf("%w: duplicate tensor %q", ErrInvalidArtifact, w.Name)
		}
		seen[w.Name] = true
		if !sameShape(w.Shape, spec.shape) || len(w.Values) != len(spec.dst) {
			return fmt.Errorf("%w: tensor %q has shape %v, want %v", ErrInvalidArtifact, w.Name, w.Shape, spec.shape)
		}
		for _, v := range w.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: tensor %q holds non-finite values", ErrInvalidArtifact, w.Name)
			}
		}
		copy(spec.dst, w.Values)
	}
	return nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
