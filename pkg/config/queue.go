package config

import (
	"os"
	"strconv"
	"time"
)

// QueueConfig contains dispatcher and worker pool configuration. Field
// defaults and env var names match the external queue protocol (§6).
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/instance.
	// Each worker independently dequeues and processes messages.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentProcesses is the limit of concurrent processes run by
	// one worker pool (one replica/instance); it is not coordinated across
	// replicas.
	MaxConcurrentProcesses int `yaml:"max_concurrent_processes"`

	// VisibilityTimeout is how long a dequeued message stays invisible to
	// other workers before it is eligible for redelivery. Env:
	// VISIBILITY_TIMEOUT_MINUTES (default 5).
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`

	// MaxRetryCount is how many times a message may be redelivered before
	// it is moved to the dead-letter queue. Env: MAX_RETRY_COUNT (default 0,
	// meaning no retries: first failure dead-letters immediately).
	MaxRetryCount int `yaml:"max_retry_count"`

	// PollInterval is the base interval between empty-queue polls. Env:
	// POLL_INTERVAL_SECONDS (default 5).
	PollInterval time.Duration `yaml:"poll_interval"`

	// MessageTimeout is the maximum wall-clock time a single process may run
	// before it is forcibly terminated with a hard-timeout result. Env:
	// MESSAGE_TIMEOUT_MINUTES (default 25).
	MessageTimeout time.Duration `yaml:"message_timeout"`

	// GracefulShutdownTimeout is the max time to wait for in-flight
	// processes to finish during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// LeaseRenewalInterval is how often an in-flight message's visibility
	// timeout is renewed while its worker is still processing it.
	LeaseRenewalInterval time.Duration `yaml:"lease_renewal_interval"`
}

// DefaultQueueConfig returns the built-in queue defaults, matching the
// original service's string defaults exactly.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		MaxConcurrentProcesses:  5,
		VisibilityTimeout:       5 * time.Minute,
		MaxRetryCount:           0,
		PollInterval:            5 * time.Second,
		MessageTimeout:          25 * time.Minute,
		GracefulShutdownTimeout: 25 * time.Minute,
		LeaseRenewalInterval:    90 * time.Second,
	}
}

// QueueConfigFromEnv resolves queue settings from environment variables,
// falling back to DefaultQueueConfig for anything unset or unparsable.
func QueueConfigFromEnv() *QueueConfig {
	cfg := DefaultQueueConfig()

	if v, ok := envInt("VISIBILITY_TIMEOUT_MINUTES"); ok {
		cfg.VisibilityTimeout = time.Duration(v) * time.Minute
	}
	if v, ok := envInt("MAX_RETRY_COUNT"); ok {
		cfg.MaxRetryCount = v
	}
	if v, ok := envInt("POLL_INTERVAL_SECONDS"); ok {
		cfg.PollInterval = time.Duration(v) * time.Second
	}
	if v, ok := envInt("MESSAGE_TIMEOUT_MINUTES"); ok {
		cfg.MessageTimeout = time.Duration(v) * time.Minute
		cfg.GracefulShutdownTimeout = cfg.MessageTimeout
	}
	if v, ok := envInt("WORKER_COUNT"); ok {
		cfg.WorkerCount = v
	}
	if v, ok := envInt("MAX_CONCURRENT_PROCESSES"); ok {
		cfg.MaxConcurrentProcesses = v
	}

	return cfg
}

func envInt(name string) (int, bool) {
	raw, set := os.LookupEnv(name)
	if !set {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
