package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteAllRunsTasksConcurrently(t *testing.T) {
	e := New(0, time.Millisecond, 0)
	e.AddTask("a", func(ctx context.Context) (any, error) { return "a-done", nil }, 0, 0, 0)
	e.AddTask("b", func(ctx context.Context) (any, error) { return "b-done", nil }, 0, 0, 0)

	results := e.ExecuteAll(context.Background(), false, nil)

	require.Len(t, results, 2)
	assert.Equal(t, StatusSuccess, results["a"].Status)
	assert.Equal(t, StatusSuccess, results["b"].Status)
	assert.Equal(t, "a-done", results["a"].Value)

	succeeded := e.SuccessfulResults()
	assert.Equal(t, "a-done", succeeded["a"])
	assert.Empty(t, e.FailedTasks())
}

func TestExecuteAllRetriesUntilSuccess(t *testing.T) {
	e := New(3, time.Millisecond, 0)
	var attempts int32
	e.AddTask("flaky", func(ctx context.Context) (any, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return nil, errors.New("not yet")
		}
		return "recovered", nil
	}, 0, 0, 0)

	results := e.ExecuteAll(context.Background(), false, nil)

	assert.Equal(t, StatusSuccess, results["flaky"].Status)
	assert.Equal(t, 3, results["flaky"].Attempts)
}

func TestExecuteAllExhaustsRetriesAndFails(t *testing.T) {
	e := New(2, time.Millisecond, 0)
	e.AddTask("always-fails", func(ctx context.Context) (any, error) {
		return nil, errors.New("permanent failure")
	}, 0, 0, 0)

	results := e.ExecuteAll(context.Background(), false, nil)

	assert.Equal(t, StatusFailed, results["always-fails"].Status)
	assert.Equal(t, 3, results["always-fails"].Attempts)
	failed := e.FailedTasks()
	require.Contains(t, failed, "always-fails")
	assert.EqualError(t, failed["always-fails"], "permanent failure")
}

func TestExecuteAllRespectsMaxConcurrent(t *testing.T) {
	e := New(0, 0, 1)
	var concurrent, maxSeen int32
	task := func(ctx context.Context) (any, error) {
		n := atomic.AddInt32(&concurrent, 1)
		defer atomic.AddInt32(&concurrent, -1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	}
	e.AddTask("t1", task, 0, 0, 0)
	e.AddTask("t2", task, 0, 0, 0)
	e.AddTask("t3", task, 0, 0, 0)

	e.ExecuteAll(context.Background(), false, nil)

	assert.Equal(t, int32(1), maxSeen)
}

func TestExecuteAllTaskTimeout(t *testing.T) {
	e := New(0, 0, 0)
	e.AddTask("slow", func(ctx context.Context) (any, error) {
		select {
		case <-time.After(time.Second):
			return "too slow", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, 0, 0, 10*time.Millisecond)

	results := e.ExecuteAll(context.Background(), false, nil)

	assert.Equal(t, StatusFailed, results["slow"].Status)
	require.Error(t, results["slow"].Err)
}

func TestExecuteAllEmptyReturnsEmptyMap(t *testing.T) {
	e := New(0, 0, 0)
	results := e.ExecuteAll(context.Background(), false, nil)
	assert.Empty(t, results)
}

func TestClearTasksResetsState(t *testing.T) {
	e := New(0, 0, 0)
	e.AddTask("a", func(ctx context.Context) (any, error) { return nil, nil }, 0, 0, 0)
	e.ExecuteAll(context.Background(), false, nil)
	require.NotEmpty(t, e.SuccessfulResults())

	e.ClearTasks()

	assert.Empty(t, e.SuccessfulResults())
	assert.Empty(t, e.ExecuteAll(context.Background(), false, nil))
}

func TestExecuteAllProgressCallback(t *testing.T) {
	e := New(0, 0, 0)
	e.AddTask("a", func(ctx context.Context) (any, error) { return nil, nil }, 0, 0, 0)

	var statuses []Status
	e.ExecuteAll(context.Background(), false, func(name string, status Status, attempt int) {
		statuses = append(statuses, status)
	})

	assert.Contains(t, statuses, StatusRunning)
}
