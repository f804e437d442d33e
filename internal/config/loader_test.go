package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/noderank/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New())
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("NODERANK_ADDR", ":8080")
			_ = os.Setenv("NODERANK_QUEUE_SIZE", "64")
			_ = os.Setenv("NODERANK_WORKER_COUNT", "3")
			_ = os.Setenv("NODERANK_DB_DRIVER", "Postgres")
			_ = os.Setenv("NODERANK_DB_DSN", "host=localhost user=noderank dbname=noderank")
			_ = os.Setenv("NODERANK_LEARNING_RATE", "0.01")
			_ = os.Setenv("NODERANK_TRAIN_TIMEOUT_MS", "5000")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.DBDriver, convey.ShouldEqual, config.DriverPostgres)
				convey.So(cfg.DBDSN, convey.ShouldEqual, "host=localhost user=noderank dbname=noderank")
				convey.So(cfg.LearningRate, convey.ShouldEqual, 0.01)
				convey.So(cfg.TrainTimeoutMS, convey.ShouldEqual, 5000)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
artifact_root: /var/lib/noderank
queue_size: 32
hidden_units: 16
train_epochs: 5
max_candidates: 500
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("NODERANK_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.ArtifactRoot, convey.ShouldEqual, "/var/lib/noderank")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 32)
				convey.So(cfg.HiddenUnits, convey.ShouldEqual, 16)
				convey.So(cfg.TrainEpochs, convey.ShouldEqual, 5)
				convey.So(cfg.MaxCandidates, convey.ShouldEqual, 500)
				convey.So(cfg.BatchSize, convey.ShouldEqual, 32)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
worker_count: 24
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("NODERANK_CONFIG", tmpFile)
			_ = os.Setenv("NODERANK_ADDR", ":8080")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 24)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("NODERANK_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("NODERANK_CONFIG", "/non/existent/noderank.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("NODERANK_WORKER_COUNT", "many")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When an override fails validation", func() {
			_ = os.Setenv("NODERANK_QUEUE_SIZE", "0")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"NODERANK_CONFIG",
		"NODERANK_ADDR",
		"NODERANK_QUEUE_SIZE",
		"NODERANK_WORKER_COUNT",
		"NODERANK_DB_DRIVER",
		"NODERANK_DB_DSN",
		"NODERANK_LEARNING_RATE",
		"NODERANK_TRAIN_TIMEOUT_MS",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "noderank-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
