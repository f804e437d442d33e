package smoketest

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/noderank/pkg/logger"
)

// SetupLogging initializes the global logger on stdout and, when logFile is
// set, on that file as well. The returned func closes the file.
func SetupLogging(logFile, format string) (func() error, error) {
	var w io.Writer = os.Stdout
	closeFn := func() error { return nil }
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closeFn = f.Close
	}
	if err := logger.InitWithWriter(w, format); err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return closeFn, nil
}

// ShowHelp prints usage information for the smoke test tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `noderank smoke test
===================

Drives models through create, train, rank, download and delete against a
running service and verifies every response.

Usage:
  go run ./cmd/smoke-test [options]

Options:
  -url string        Base URL of the service (default "http://localhost:5000")
  -models int        Models to exercise (default 4)
  -workers int       Models in flight at once (default 2)
  -rows int          Labeled rows per training call (default 64)
  -train int         Training calls per model (default 2)
  -candidates int    Candidates per ranking call (default 20)
  -top int           numberOfNodes per ranking call (default 5)
  -seed uint         Seed for generated data (default 1)
  -timeout duration  HTTP request timeout (default 30s)
  -output string     Write rankings as JSON to this file
  -log string        Also write logs to this file
  -keep              Do not delete models at the end
  -verbose           Log every verified model
  -help              Show this help message

Examples:
  go run ./cmd/smoke-test -models 20 -workers 8
  go run ./cmd/smoke-test -url http://localhost:8080 -keep -output rankings.json
`)
}
