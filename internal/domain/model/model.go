// Package model contains domain models passed between layers.
package model

import "time"

// Status is the training state of a model.
type Status string

const (
	// StatusNotTrained is assigned at creation. The artifact holds bootstrap weights only.
	StatusNotTrained Status = "not-trained"
	// StatusTrained means the artifact has been fit on at least one real dataset.
	StatusTrained Status = "trained"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusNotTrained || s == StatusTrained
}

// Record is the identity and status of one predictor instance.
type Record struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ArtifactLocation string    `json:"modelPath"`
	Status           Status    `json:"status"`
	BackupLocation   *string   `json:"backupModelPath"` // reserved for rollback, never populated
	Metadata         *string   `json:"metadata"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Trained reports whether the record reached StatusTrained.
func (r *Record) Trained() bool {
	return r.Status == StatusTrained
}

// FeatureRecord is one candidate node. Label is set only for training data.
type FeatureRecord struct {
	Age        int64    `json:"age"`
	Depth      int64    `json:"depth"`
	NoiseLevel float64  `json:"noiseLevel"`
	NodeType   int64    `json:"nodeType"`
	Label      *float64 `json:"label,omitempty"`
}

// FeatureCount is the width of an encoded FeatureRecord.
const FeatureCount = 4

// Vector returns the features in encoding order: age, depth, noiseLevel, nodeType.
func (f FeatureRecord) Vector() [FeatureCount]float64 {
	return [FeatureCount]float64{float64(f.Age), float64(f.Depth), f.NoiseLevel, float64(f.NodeType)}
}

// ScoredCandidate is a copy of a candidate with its predicted score.
type ScoredCandidate struct {
	FeatureRecord
	Score float64 `json:"score"`
}
