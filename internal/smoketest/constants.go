package smoketest

import "time"

// Defaults applied by Config.withDefaults.
const (
	DefaultModels     = 4
	DefaultWorkers    = 2
	DefaultTrainRows  = 64
	DefaultTrainCalls = 2
	DefaultCandidates = 20
	DefaultTopK       = 5
	DefaultTimeout    = 30 * time.Second
)

// Retry settings for 429 responses.
const (
	maxBackpressureRetries = 5
	backpressureBackoff    = 200 * time.Millisecond
)

const (
	directoryPermission = 0o750
	percentMultiplier   = 100
)
