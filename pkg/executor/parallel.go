// Package executor runs a set of named tasks concurrently with bounded
// parallelism, per-task timeout, and exponential-backoff retry.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusRetrying Status = "retrying"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
)

// Result is the outcome of a single task after execute_all returns.
type Result struct {
	Name          string
	Status        Status
	Value         any
	Err           error
	Attempts      int
	ExecutionTime time.Duration
}

// TaskFunc is the work a task performs. It should honor ctx cancellation.
type TaskFunc func(ctx context.Context) (any, error)

// taskConfig holds one registered task and its retry/timeout policy.
type taskConfig struct {
	name           string
	fn             TaskFunc
	maxRetries     int
	retryDelayBase time.Duration
	timeout        time.Duration
}

// ProgressFunc is invoked each time a task's status changes.
type ProgressFunc func(name string, status Status, attempt int)

// Executor runs registered tasks in parallel with bounded concurrency.
type Executor struct {
	defaultMaxRetries int
	defaultRetryDelay time.Duration
	maxConcurrent     int64

	mu      sync.Mutex
	tasks   map[string]*taskConfig
	order   []string
	results map[string]*Result
}

// New creates an Executor. maxConcurrent <= 0 means unbounded concurrency.
func New(defaultMaxRetries int, defaultRetryDelay time.Duration, maxConcurrent int) *Executor {
	return &Executor{
		defaultMaxRetries: defaultMaxRetries,
		defaultRetryDelay: defaultRetryDelay,
		maxConcurrent:     int64(maxConcurrent),
		tasks:             make(map[string]*taskConfig),
		results:           make(map[string]*Result),
	}
}

// AddTask registers a task, returning the Executor for chaining. maxRetries
// or retryDelay of zero fall back to the Executor's defaults; timeout of
// zero means no per-task timeout.
func (e *Executor) AddTask(name string, fn TaskFunc, maxRetries int, retryDelay, timeout time.Duration) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()

	if maxRetries <= 0 {
		maxRetries = e.defaultMaxRetries
	}
	if retryDelay <= 0 {
		retryDelay = e.defaultRetryDelay
	}

	if _, exists := e.tasks[name]; !exists {
		e.order = append(e.order, name)
	}
	e.tasks[name] = &taskConfig{
		name:           name,
		fn:             fn,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelay,
		timeout:        timeout,
	}
	return e
}

// ExecuteAll runs all registered tasks concurrently. If stopOnFirstFailure
// is set, in-flight tasks are cancelled as soon as any task exhausts its
// retries. progress, if non-nil, is called on every status transition.
func (e *Executor) ExecuteAll(ctx context.Context, stopOnFirstFailure bool, progress ProgressFunc) map[string]*Result {
	e.mu.Lock()
	if len(e.tasks) == 0 {
		e.mu.Unlock()
		return map[string]*Result{}
	}
	names := make([]string, len(e.order))
	copy(names, e.order)
	configs := make(map[string]*taskConfig, len(e.tasks))
	for k, v := range e.tasks {
		configs[k] = v
	}
	results := make(map[string]*Result, len(names))
	for _, name := range names {
		results[name] = &Result{Name: name, Status: StatusPending}
	}
	e.results = results
	e.mu.Unlock()

	slog.Info("starting parallel task execution", "task_count", len(names))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sem *semaphore.Weighted
	if e.maxConcurrent > 0 {
		sem = semaphore.NewWeighted(e.maxConcurrent)
	}

	var wg sync.WaitGroup
	failureCh := make(chan struct{}, 1)

	for _, name := range names {
		cfg := configs[name]
		res := results[name]
		wg.Add(1)
		go func() {
			defer wg.Done()

			if sem != nil {
				if err := sem.Acquire(runCtx, 1); err != nil {
					return
				}
				defer sem.Release(1)
			}

			e.runWithRetry(runCtx, cfg, res, progress)

			if stopOnFirstFailure && res.Status == StatusFailed {
				select {
				case failureCh <- struct{}{}:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	var successCount int
	var failed []string
	for _, name := range names {
		switch results[name].Status {
		case StatusSuccess:
			successCount++
		case StatusFailed:
			failed = append(failed, name)
		}
	}
	slog.Info("parallel task execution completed",
		"succeeded", successCount, "total", len(names), "failed", failed)

	return results
}

func (e *Executor) runWithRetry(ctx context.Context, cfg *taskConfig, res *Result, progress ProgressFunc) {
	start := time.Now()
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		res.Attempts = attempt + 1
		if attempt > 0 {
			res.Status = StatusRetrying
		} else {
			res.Status = StatusRunning
		}
		if progress != nil {
			progress(cfg.name, res.Status, attempt)
		}

		value, err := e.runOnce(ctx, cfg)
		if err == nil {
			res.Value = value
			res.Status = StatusSuccess
			res.Err = nil
			res.ExecutionTime = time.Since(start)
			return
		}

		res.Err = err
		slog.Warn("task attempt failed",
			"task", cfg.name, "attempt", attempt+1, "error", err)

		if ctx.Err() != nil {
			break
		}
		if attempt < cfg.maxRetries {
			delay := cfg.retryDelayBase * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				break
			}
		}
	}

	res.Status = StatusFailed
	res.ExecutionTime = time.Since(start)
}

func (e *Executor) runOnce(ctx context.Context, cfg *taskConfig) (any, error) {
	runCtx := ctx
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := cfg.fn(runCtx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-runCtx.Done():
		return nil, fmt.Errorf("task %s timed out: %w", cfg.name, runCtx.Err())
	}
}

// SuccessfulResults returns the values of tasks that completed successfully.
func (e *Executor) SuccessfulResults() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]any)
	for name, res := range e.results {
		if res.Status == StatusSuccess {
			out[name] = res.Value
		}
	}
	return out
}

// FailedTasks returns the errors of tasks that exhausted all retries.
func (e *Executor) FailedTasks() map[string]error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]error)
	for name, res := range e.results {
		if res.Status == StatusFailed {
			out[name] = res.Err
		}
	}
	return out
}

// ClearTasks removes all registered tasks and results.
func (e *Executor) ClearTasks() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = make(map[string]*taskConfig)
	e.order = nil
	e.results = make(map[string]*Result)
}
