package smoketest

import (
	"time"

	"github.com/okian/noderank/internal/domain/model"
)

// Config holds configuration for a smoke run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Models     int           // Number of models to drive through the lifecycle
	Workers    int           // Number of models in flight at once
	TrainRows  int           // Labeled rows per training call
	TrainCalls int           // Incremental training calls per model
	Candidates int           // Candidates per ranking call
	TopK       int           // numberOfNodes requested per ranking call
	Timeout    time.Duration // HTTP request timeout
	Seed       uint64        // Seed for generated data
	OutputFile string        // Optional JSON report of ranking results
	Keep       bool          // Skip deleting models at the end
	Verbose    bool          // Enable per-model logging
}

// Stats holds run statistics.
type Stats struct {
	ModelsCreated   int
	TrainCalls      int
	RankCalls       int
	Downloads       int
	ModelsDeleted   int
	Backpressure    int
	Failures        int
	ArtifactBytes   int64
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
	RankingsByModel map[string][]model.ScoredCandidate
}

type createRequest struct {
	Name     string  `json:"name"`
	Metadata *string `json:"metadata,omitempty"`
}

type rankRequest struct {
	Dataset       []model.FeatureRecord `json:"dataset"`
	NumberOfNodes int                   `json:"numberOfNodes"`
}

type rankResponse struct {
	TopNodes []model.ScoredCandidate `json:"topNodes"`
}

type deleteResponse struct {
	Message         string `json:"message"`
	ArtifactRemoved bool   `json:"artifactRemoved"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
