package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aks-migrator/engine/pkg/config"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// JobRegistry is the subset of WorkerPool a Worker uses for cancellation
// registration and capacity accounting.
type JobRegistry interface {
	RegisterJob(jobID string, cancel context.CancelFunc)
	UnregisterJob(jobID string)
	ActiveJobCount() int
}

// ActiveJobCount returns the number of jobs currently registered across the pool.
func (p *WorkerPool) ActiveJobCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.activeJobs)
}

// Worker polls the queue for messages and drives a ProcessExecutor for each.
type Worker struct {
	id         string
	podID      string
	queue      Queue
	deadLetter Queue
	config     *config.QueueConfig
	executor   ProcessExecutor
	registry   JobRegistry
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a dispatcher worker.
func NewWorker(id, podID string, queue, deadLetter Queue, cfg *config.QueueConfig, executor ProcessExecutor, registry JobRegistry) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		queue:        queue,
		deadLetter:   deadLetter,
		config:       cfg,
		executor:     executor,
		registry:     registry,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker's polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish its current job.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health reports the worker's current state.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.status),
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("dispatcher worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("dispatcher worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, dispatcher worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) || errors.Is(err, errAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing job", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

var errAtCapacity = errors.New("at capacity")

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess checks pool capacity, dequeues a message, and runs it to completion.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	if w.registry.ActiveJobCount() >= w.config.MaxConcurrentProcesses {
		return errAtCapacity
	}

	msg, err := w.queue.Dequeue(ctx, w.config.VisibilityTimeout)
	if err != nil {
		return err
	}

	var job Job
	if err := json.Unmarshal([]byte(msg.Content), &job); err != nil {
		slog.Error("malformed job message, dead-lettering", "message_id", msg.ID, "error", err)
		return w.deadLetterMessage(ctx, msg, fmt.Sprintf("malformed job payload: %v", err))
	}

	log := slog.With("job_id", job.ProcessID, "worker_id", w.id)
	log.Info("job dequeued")

	w.setStatus(WorkerStatusWorking, job.ProcessID)
	defer w.setStatus(WorkerStatusIdle, "")

	jobCtx, cancel := context.WithTimeout(ctx, w.config.MessageTimeout)
	defer cancel()

	w.registry.RegisterJob(job.ProcessID, cancel)
	defer w.registry.UnregisterJob(job.ProcessID)

	var leased atomic.Pointer[Message]
	leased.Store(msg)
	renewCtx, cancelRenew := context.WithCancel(jobCtx)
	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		w.renewLease(renewCtx, &leased)
	}()

	result := w.executor.Execute(jobCtx, job)
	cancelRenew()
	<-renewDone // wait so leased isn't written to after we read it below

	if result == nil {
		result = synthesizeResult(jobCtx, w.config.MessageTimeout)
	} else if result.Status == "" {
		if synth := synthesizeResult(jobCtx, w.config.MessageTimeout); synth != nil {
			result = synth
		}
	}

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()

	current := leased.Load()

	if result.Status == ExecutionCompleted {
		log.Info("job completed")
		return w.queue.Delete(context.Background(), current)
	}

	return w.handleFailure(context.Background(), current, job, result, log)
}

func synthesizeResult(ctx context.Context, timeout time.Duration) *ExecutionResult {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &ExecutionResult{Status: ExecutionTimedOut, Error: fmt.Errorf("job timed out after %v", timeout), Retryable: true}
	case errors.Is(ctx.Err(), context.Canceled):
		return &ExecutionResult{Status: ExecutionCancelled, Error: context.Canceled}
	default:
		return &ExecutionResult{Status: ExecutionFailed, Error: fmt.Errorf("executor returned no result"), Retryable: true}
	}
}

// handleFailure routes a failed job to dead-letter once it has exhausted
// its retry budget, or requeues it invisible for a backoff period
// otherwise (by extending the lease rather than deleting and re-enqueuing,
// so DequeueCount keeps tracking attempts).
func (w *Worker) handleFailure(ctx context.Context, msg *Message, job Job, result *ExecutionResult, log *slog.Logger) error {
	if result.Status == ExecutionCancelled {
		log.Info("job cancelled, deleting message")
		return w.queue.Delete(ctx, msg)
	}

	if !result.Retryable || int(msg.DequeueCount) > w.config.MaxRetryCount {
		reason := "unknown error"
		if result.Error != nil {
			reason = result.Error.Error()
		}
		log.Warn("job exhausted retry budget, dead-lettering", "dequeue_count", msg.DequeueCount, "error", reason)
		return w.deadLetterMessage(ctx, msg, reason)
	}

	backoff := w.config.PollInterval * time.Duration(1<<uint(msg.DequeueCount))
	log.Warn("job failed, retrying with backoff", "dequeue_count", msg.DequeueCount, "backoff", backoff, "error", result.Error)
	_, err := w.queue.UpdateVisibility(ctx, msg, backoff)
	return err
}

func (w *Worker) deadLetterMessage(ctx context.Context, msg *Message, reason string) error {
	if w.deadLetter != nil {
		envelope := struct {
			OriginalMessageID string `json:"original_message_id"`
			Reason            string `json:"reason"`
			Content           string `json:"content"`
		}{OriginalMessageID: msg.ID, Reason: reason, Content: msg.Content}
		payload, _ := json.Marshal(envelope)
		if err := w.deadLetter.Enqueue(ctx, string(payload)); err != nil {
			return fmt.Errorf("failed to dead-letter message %s: %w", msg.ID, err)
		}
	}
	return w.queue.Delete(ctx, msg)
}

// renewLease periodically extends the message's visibility timeout while
// the executor is still running, resolving what would otherwise be a
// visibility-timeout race against a long-running phase step. leased is
// only written here while ctx is live; the caller waits for this goroutine
// to exit before reading leased itself, so no further synchronization is
// needed on the read side.
func (w *Worker) renewLease(ctx context.Context, leased *atomic.Pointer[Message]) {
	ticker := time.NewTicker(w.config.LeaseRenewalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := leased.Load()
			renewed, err := w.queue.UpdateVisibility(context.Background(), current, w.config.VisibilityTimeout)
			if err != nil {
				slog.Warn("lease renewal failed", "message_id", current.ID, "error", err)
				continue
			}
			leased.Store(renewed)
		}
	}
}

func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := base / 4
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
