// Package dispatcher polls a migration-job queue and drives process
// execution with bounded worker concurrency, lease renewal, exponential
// backoff, and dead-letter routing. Unlike the Postgres "claim a row"
// pattern, message visibility and retry bookkeeping live in the queue
// itself; the dispatcher's job is staying within its lease and deciding
// when a failure should retry versus dead-letter.
package dispatcher

import (
	"context"
	"errors"
	"time"
)

// ErrNoJobsAvailable indicates the queue had nothing to dequeue this poll.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Message is a single dequeued job message plus the queue-protocol
// metadata a worker needs to renew its lease or delete/requeue it.
type Message struct {
	ID            string
	PopReceipt    string
	DequeueCount  int64
	Content       string // JSON-encoded Job
	InsertedOn    time.Time
	NextVisibleOn time.Time
}

// Queue is the subset of queue behavior the dispatcher depends on. A
// production implementation wraps azqueue.QueueClient (see
// pkg/storage/queueadapter); tests use an in-memory fake.
type Queue interface {
	// Dequeue retrieves up to one message, making it invisible to other
	// workers for visibilityTimeout. Returns ErrNoJobsAvailable if the
	// queue is empty.
	Dequeue(ctx context.Context, visibilityTimeout time.Duration) (*Message, error)

	// UpdateVisibility sets a message's invisibility window, used both for
	// lease renewal and to delay a retry. Returns the message with its
	// updated PopReceipt.
	UpdateVisibility(ctx context.Context, msg *Message, visibilityTimeout time.Duration) (*Message, error)

	// Delete removes a message after successful processing.
	Delete(ctx context.Context, msg *Message) error

	// Enqueue adds a new message, used for dead-letter routing.
	Enqueue(ctx context.Context, content string) error

	// ApproximateMessageCount reports the queue's approximate depth, for health reporting.
	ApproximateMessageCount(ctx context.Context) (int64, error)
}

// Job is the decoded unit of work a ProcessExecutor runs. Payload carries
// whatever the process state machine needs (for pkg/process, a JSON
// StartPayload) — the dispatcher itself never inspects it beyond the
// envelope.
type Job struct {
	ProcessID string
	Phase     string
	Payload   string
}

// ExecutionStatus is the terminal outcome of running a Job.
type ExecutionStatus string

const (
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed     ExecutionStatus = "failed"
	ExecutionTimedOut   ExecutionStatus = "timed_out"
	ExecutionCancelled  ExecutionStatus = "cancelled"
)

// ExecutionResult is the terminal state a ProcessExecutor reports back.
// Retryable distinguishes a transient failure (requeue with backoff) from
// one that should go straight to the dead-letter queue.
type ExecutionResult struct {
	Status    ExecutionStatus
	Error     error
	Retryable bool
}

// ProcessExecutor owns the entire process lifecycle for a single job: it
// drives the phase state machine end to end. The worker only handles
// dequeue, lease renewal, terminal bookkeeping, and dead-lettering.
type ProcessExecutor interface {
	Execute(ctx context.Context, job Job) *ExecutionResult
}

// PoolHealth reports the dispatcher's aggregate health.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	QueueReachable bool          `json:"queue_reachable"`
	QueueError    string         `json:"queue_error,omitempty"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	ActiveJobs    int            `json:"active_jobs"`
	MaxConcurrent int            `json:"max_concurrent"`
	QueueDepth    int64          `json:"queue_depth"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}

// WorkerHealth reports a single worker's current state.
type WorkerHealth struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	CurrentJobID    string    `json:"current_job_id,omitempty"`
	JobsProcessed   int       `json:"jobs_processed"`
	LastActivity    time.Time `json:"last_activity"`
}
