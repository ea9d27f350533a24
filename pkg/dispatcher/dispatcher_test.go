package dispatcher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aks-migrator/engine/pkg/config"
)

// fakeQueue is an in-memory Queue double modeling azqueue-style visibility
// semantics: a dequeued message is hidden until its NextVisibleOn passes.
type fakeQueue struct {
	mu       sync.Mutex
	messages []*Message
	nextID   int
	deleted  []string
}

func newFakeQueue() *fakeQueue { return &fakeQueue{} }

func (q *fakeQueue) enqueueLocked(content string) {
	q.nextID++
	q.messages = append(q.messages, &Message{
		ID:            string(rune('a' + q.nextID)),
		PopReceipt:    "receipt-0",
		DequeueCount:  0,
		Content:       content,
		InsertedOn:    time.Now(),
		NextVisibleOn: time.Time{},
	})
}

func (q *fakeQueue) Enqueue(ctx context.Context, content string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueueLocked(content)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, visibilityTimeout time.Duration) (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for _, m := range q.messages {
		if m.NextVisibleOn.After(now) {
			continue
		}
		m.DequeueCount++
		m.NextVisibleOn = now.Add(visibilityTimeout)
		m.PopReceipt = m.PopReceipt + "+"
		cp := *m
		return &cp, nil
	}
	return nil, ErrNoJobsAvailable
}

func (q *fakeQueue) UpdateVisibility(ctx context.Context, msg *Message, visibilityTimeout time.Duration) (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.messages {
		if m.ID == msg.ID {
			m.NextVisibleOn = time.Now().Add(visibilityTimeout)
			m.PopReceipt = m.PopReceipt + "+"
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrNoJobsAvailable
}

func (q *fakeQueue) Delete(ctx context.Context, msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m.ID == msg.ID {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			q.deleted = append(q.deleted, msg.ID)
			return nil
		}
	}
	return nil
}

func (q *fakeQueue) ApproximateMessageCount(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.messages)), nil
}

type stubExecutor struct {
	mu      sync.Mutex
	results map[string]*ExecutionResult
	calls   []Job
}

func (e *stubExecutor) Execute(ctx context.Context, job Job) *ExecutionResult {
	e.mu.Lock()
	e.calls = append(e.calls, job)
	e.mu.Unlock()
	if r, ok := e.results[job.ProcessID]; ok {
		return r
	}
	return &ExecutionResult{Status: ExecutionCompleted}
}

func testQueueConfig() *config.QueueConfig {
	cfg := config.DefaultQueueConfig()
	cfg.WorkerCount = 1
	cfg.PollInterval = 5 * time.Millisecond
	cfg.VisibilityTimeout = time.Second
	cfg.LeaseRenewalInterval = 200 * time.Millisecond
	cfg.MessageTimeout = 2 * time.Second
	cfg.MaxConcurrentProcesses = 2
	cfg.MaxRetryCount = 1
	return cfg
}

func enqueueJob(t *testing.T, q *fakeQueue, job Job) {
	t.Helper()
	b, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), string(b)))
}

func TestWorkerPoolProcessesJobToCompletion(t *testing.T) {
	q := newFakeQueue()
	dl := newFakeQueue()
	enqueueJob(t, q, Job{ProcessID: "proc-1", Phase: "analysis"})

	exec := &stubExecutor{results: map[string]*ExecutionResult{}}
	pool := NewWorkerPool("pod-1", q, dl, testQueueConfig(), exec)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))

	require.Eventually(t, func() bool {
		n, _ := q.ApproximateMessageCount(context.Background())
		return n == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	pool.Stop()

	assert.Len(t, q.deleted, 1)
	assert.Empty(t, dl.messages)
}

func TestWorkerPoolDeadLettersAfterRetryBudgetExhausted(t *testing.T) {
	q := newFakeQueue()
	dl := newFakeQueue()
	enqueueJob(t, q, Job{ProcessID: "proc-2", Phase: "design"})

	exec := &stubExecutor{results: map[string]*ExecutionResult{
		"proc-2": {Status: ExecutionFailed, Retryable: true},
	}}
	cfg := testQueueConfig()
	cfg.MaxRetryCount = 0
	pool := NewWorkerPool("pod-1", q, dl, cfg, exec)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))

	require.Eventually(t, func() bool {
		return len(dl.messages) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	pool.Stop()

	n, _ := q.ApproximateMessageCount(context.Background())
	assert.Equal(t, int64(0), n)
}

func TestWorkerPoolRetriesBeforeDeadLettering(t *testing.T) {
	q := newFakeQueue()
	dl := newFakeQueue()
	enqueueJob(t, q, Job{ProcessID: "proc-3", Phase: "yaml_generation"})

	exec := &stubExecutor{results: map[string]*ExecutionResult{
		"proc-3": {Status: ExecutionFailed, Retryable: true},
	}}
	cfg := testQueueConfig()
	cfg.MaxRetryCount = 2
	pool := NewWorkerPool("pod-1", q, dl, cfg, exec)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))

	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return len(exec.calls) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	pool.Stop()
}

func TestHealthReportsQueueDepthAndWorkers(t *testing.T) {
	q := newFakeQueue()
	dl := newFakeQueue()
	enqueueJob(t, q, Job{ProcessID: "proc-4"})

	exec := &stubExecutor{results: map[string]*ExecutionResult{}}
	cfg := testQueueConfig()
	cfg.WorkerCount = 2
	pool := NewWorkerPool("pod-1", q, dl, cfg, exec)

	health := pool.Health(context.Background())
	assert.True(t, health.QueueReachable)
	assert.Equal(t, int64(1), health.QueueDepth)
	assert.Equal(t, 0, health.TotalWorkers, "workers only appear in health after Start")
}

func TestCancelJobStopsRegisteredExecution(t *testing.T) {
	q := newFakeQueue()
	dl := newFakeQueue()
	cfg := testQueueConfig()
	exec := &stubExecutor{results: map[string]*ExecutionResult{}}
	pool := NewWorkerPool("pod-1", q, dl, cfg, exec)

	var cancelled bool
	ctx, cancel := context.WithCancel(context.Background())
	pool.RegisterJob("proc-5", func() { cancelled = true; cancel() })

	assert.True(t, pool.CancelJob("proc-5"))
	assert.True(t, cancelled)
	assert.False(t, pool.CancelJob("unknown-job"))
	_ = ctx
}
