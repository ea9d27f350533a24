package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aks-migrator/engine/pkg/config"
)

// WorkerPool manages a pool of dispatcher workers all polling the same queue.
type WorkerPool struct {
	podID    string
	queue    Queue
	deadLetter Queue
	config   *config.QueueConfig
	executor ProcessExecutor
	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// job cancel registry: job id -> cancel function, for API-triggered cancellation.
	activeJobs map[string]context.CancelFunc
	mu         sync.RWMutex
	started    bool
}

// NewWorkerPool creates a worker pool draining queue and dead-lettering to deadLetter.
func NewWorkerPool(podID string, queue, deadLetter Queue, cfg *config.QueueConfig, executor ProcessExecutor) *WorkerPool {
	return &WorkerPool{
		podID:      podID,
		queue:      queue,
		deadLetter: deadLetter,
		config:     cfg,
		executor:   executor,
		workers:    make([]*Worker, 0, cfg.WorkerCount),
		stopCh:     make(chan struct{}),
		activeJobs: make(map[string]context.CancelFunc),
	}
}

// Start spawns the worker goroutines. Safe to call multiple times; later
// calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	slog.Info("starting dispatcher worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.podID, p.queue, p.deadLetter, p.config, p.executor, p)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	slog.Info("dispatcher worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	slog.Info("stopping dispatcher worker pool gracefully")

	active := p.getActiveJobIDs()
	if len(active) > 0 {
		slog.Info("waiting for active jobs to complete", "count", len(active), "job_ids", active)
	}

	for _, worker := range p.workers {
		worker.Stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("dispatcher worker pool stopped gracefully")
}

// RegisterJob stores a cancel function so CancelJob can stop processing.
func (p *WorkerPool) RegisterJob(jobID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeJobs[jobID] = cancel
}

// UnregisterJob removes the cancel function once processing ends.
func (p *WorkerPool) UnregisterJob(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeJobs, jobID)
}

// CancelJob triggers context cancellation for a job running on this pod.
// Returns true if the job was found on this pod.
func (p *WorkerPool) CancelJob(jobID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeJobs[jobID]; ok {
		cancel()
		return true
	}
	return false
}

// Health reports the pool's current health, including queue depth.
func (p *WorkerPool) Health(ctx context.Context) *PoolHealth {
	depth, err := p.queue.ApproximateMessageCount(ctx)
	queueReachable := err == nil
	var queueErr string
	if err != nil {
		queueErr = err.Error()
		slog.Error("failed to query queue depth for health check", "pod_id", p.podID, "error", err)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	active := p.getActiveJobIDs()

	return &PoolHealth{
		IsHealthy:      len(p.workers) > 0 && queueReachable,
		QueueReachable: queueReachable,
		QueueError:     queueErr,
		ActiveWorkers:  activeWorkers,
		TotalWorkers:   len(p.workers),
		ActiveJobs:     len(active),
		MaxConcurrent:  p.config.MaxConcurrentProcesses,
		QueueDepth:     depth,
		WorkerStats:    workerStats,
	}
}

func (p *WorkerPool) getActiveJobIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeJobs))
	for id := range p.activeJobs {
		ids = append(ids, id)
	}
	return ids
}
