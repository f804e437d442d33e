package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/noderank/internal/smoketest"
	"github.com/okian/noderank/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:5000", "Base URL of the service")
		models     = flag.Int("models", smoketest.DefaultModels, "Number of models to exercise")
		workers    = flag.Int("workers", smoketest.DefaultWorkers, "Number of models in flight at once")
		rows       = flag.Int("rows", smoketest.DefaultTrainRows, "Labeled rows per training call")
		trainCalls = flag.Int("train", smoketest.DefaultTrainCalls, "Training calls per model")
		candidates = flag.Int("candidates", smoketest.DefaultCandidates, "Candidates per ranking call")
		topK       = flag.Int("top", smoketest.DefaultTopK, "numberOfNodes per ranking call")
		seed       = flag.Uint64("seed", 1, "Seed for generated data")
		timeout    = flag.Duration("timeout", smoketest.DefaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Write rankings as JSON to this file")
		logFile    = flag.String("log", "", "Also write logs to this file")
		keep       = flag.Bool("keep", false, "Do not delete models at the end")
		verbose    = flag.Bool("verbose", false, "Log every verified model")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		smoketest.ShowHelp(os.Stdout)
		return
	}

	closeLog, err := smoketest.SetupLogging(*logFile, "text")
	if err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := &smoketest.Config{
		BaseURL:    *baseURL,
		Models:     *models,
		Workers:    *workers,
		TrainRows:  *rows,
		TrainCalls: *trainCalls,
		Candidates: *candidates,
		TopK:       *topK,
		Timeout:    *timeout,
		Seed:       *seed,
		OutputFile: *outputFile,
		Keep:       *keep,
		Verbose:    *verbose,
	}
	if _, err := smoketest.Run(ctx, cfg, logger.Named("smoketest")); err != nil {
		_, _ = os.Stderr.WriteString("Smoke test failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
