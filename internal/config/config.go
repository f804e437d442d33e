// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables on top of New().
// - Errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Supported record store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":5000".
	Addr string `koanf:"addr"`

	// ArtifactRoot is the directory holding one subdirectory per model.
	ArtifactRoot string `koanf:"artifact_root"`

	// DBDriver selects the record store: memory, sqlite or postgres.
	DBDriver string `koanf:"db_driver"`
	DBDSN    string `koanf:"db_dsn"`

	// WorkerCount sets the number of job workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds pending jobs. A full queue rejects with 429.
	QueueSize int `koanf:"queue_size"`

	HiddenUnits      int     `koanf:"hidden_units"`
	TrainEpochs      int     `koanf:"train_epochs"`
	BootstrapSamples int     `koanf:"bootstrap_samples"`
	LearningRate     float64 `koanf:"learning_rate"`
	BatchSize        int     `koanf:"batch_size"`

	TrainTimeoutMS int `koanf:"train_timeout_ms"`
	IOTimeoutMS    int `koanf:"io_timeout_ms"`

	// MaxCandidates and MaxDatasetSize cap request batch sizes. Zero disables the cap.
	MaxCandidates  int `koanf:"max_candidates"`
	MaxDatasetSize int `koanf:"max_dataset_size"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":5000",
		ArtifactRoot:     "trained",
		DBDriver:         DriverSQLite,
		DBDSN:            "noderank.db",
		WorkerCount:      runtime.NumCPU(),
		QueueSize:        1024,
		HiddenUnits:      10,
		TrainEpochs:      10,
		BootstrapSamples: 10,
		LearningRate:     0.001,
		BatchSize:        32,
		TrainTimeoutMS:   60_000,
		IOTimeoutMS:      10_000,
		MaxCandidates:    10_000,
		MaxDatasetSize:   100_000,
	}
}

// TrainTimeout returns TrainTimeoutMS as a duration.
func (c *Config) TrainTimeout() time.Duration {
	return time.Duration(c.TrainTimeoutMS) * time.Millisecond
}

// IOTimeout returns IOTimeoutMS as a duration.
func (c *Config) IOTimeout() time.Duration {
	return time.Duration(c.IOTimeoutMS) * time.Millisecond
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.ArtifactRoot == "":
		return fmt.Errorf("%w: artifact_root must not be empty", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.HiddenUnits < 1:
		return fmt.Errorf("%w: hidden_units must be positive", ErrInvalidConfig)
	case c.TrainEpochs < 1:
		return fmt.Errorf("%w: train_epochs must be positive", ErrInvalidConfig)
	case c.BootstrapSamples < 1:
		return fmt.Errorf("%w: bootstrap_samples must be positive", ErrInvalidConfig)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch_size must be positive", ErrInvalidConfig)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning_rate must be positive", ErrInvalidConfig)
	case c.TrainTimeoutMS < 1 || c.IOTimeoutMS < 1:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.MaxCandidates < 0 || c.MaxDatasetSize < 0:
		return fmt.Errorf("%w: size caps must not be negative", ErrInvalidConfig)
	}
	switch c.DBDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("%w: db_dsn is required for %s", ErrInvalidConfig, c.DBDriver)
		}
	default:
		return fmt.Errorf("%w: unknown db_driver %q", ErrInvalidConfig, c.DBDriver)
	}
	return nil
}
