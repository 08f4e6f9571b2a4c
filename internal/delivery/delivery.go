package delivery

import "time"

// Default engine tunables. These are configuration defaults, not
// contracts; every one of them can be overridden.
const (
	DefaultFlushInterval = 6 * time.Second
	DefaultMaxBatchSize  = 10
	DefaultMaxRetries    = 3
	DefaultBackoffBase   = 1200 * time.Millisecond
)

// Config holds the delivery engine tunables.
type Config struct {
	// FlushInterval is the periodic flush cadence.
	FlushInterval time.Duration
	// MaxBatchSize caps one flush batch; reaching it triggers an
	// immediate flush without waiting for the interval.
	MaxBatchSize int
	// MaxRetries bounds the backoff retry cycle. Records left over when
	// the cycle stops stay queued for opportunistic periodic flushes.
	MaxRetries int
	// BackoffBase is the first retry delay; attempt n waits
	// BackoffBase * 2^n.
	BackoffBase time.Duration
}

// DefaultConfig returns the default engine tunables.
func DefaultConfig() Config {
	return Config{
		FlushInterval: DefaultFlushInterval,
		MaxBatchSize:  DefaultMaxBatchSize,
		MaxRetries:    DefaultMaxRetries,
		BackoffBase:   DefaultBackoffBase,
	}
}

// Normalize fills zero fields with defaults and returns the result.
func (c Config) Normalize() Config {
	d := DefaultConfig()
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = d.MaxBatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	return c
}

// Trigger labels why a flush cycle started.
type Trigger string

const (
	TriggerInterval  Trigger = "interval"
	TriggerBatchSize Trigger = "batch_size"
	TriggerOnline    Trigger = "online"
	TriggerManual    Trigger = "manual"
	TriggerRetry     Trigger = "retry"
	TriggerTeardown  Trigger = "teardown"
)
