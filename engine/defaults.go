package engine

import "time"

// Default tunables applied when the corresponding builder option is not
// used. Mirrors spec.md §6's Defaults table.
const (
	DefaultMaxRetries             = 3
	DefaultRetryDelay             = time.Second
	DefaultStepTimeout            = 5 * time.Minute
	DefaultCompensationTimeout    = 60 * time.Second
	DefaultMaxCompensationRetries = 1
	DefaultLoggingEnabled         = true
	DefaultSkipCompensation       = false
)
