package taskmgr

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	seen map[string][]int
}

func (r *recorder) record(_ context.Context, key string, task int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[key] = append(r.seen[key], task)
	return nil
}

func TestRunKeepsPerKeyOrder(t *testing.T) {
	rec := &recorder{seen: make(map[string][]int)}
	mgr := NewTaskManager[string, int](rec.record)
	for _, key := range []string{"worker-0", "worker-1"} {
		mgr.AddContext(key, key)
	}
	for i := 0; i < 10; i++ {
		key := "worker-0"
		if i%2 == 1 {
			key = "worker-1"
		}
		mgr.AddTask(key, i)
	}

	require.NoError(t, mgr.Run(context.Background()))
	require.Equal(t, []int{0, 2, 4, 6, 8}, rec.seen["worker-0"])
	require.Equal(t, []int{1, 3, 5, 7, 9}, rec.seen["worker-1"])
}

func TestRunStopsAfterFailure(t *testing.T) {
	errBoom := errors.New("boom")
	var ran []int
	mgr := NewTaskManager(func(ctx context.Context, _ struct{}, task int) error {
		ran = append(ran, task)
		if task == 1 {
			return errBoom
		}
		return nil
	})
	mgr.AddContext("only", struct{}{})
	for i := 0; i < 5; i++ {
		mgr.AddTask("only", i)
	}

	err := mgr.Run(context.Background())
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, []int{0, 1}, ran)
}

func TestRunHonoursCancelledContext(t *testing.T) {
	calls := 0
	mgr := NewTaskManager(func(ctx context.Context, _ int, task int) error {
		calls++
		return nil
	})
	mgr.AddContext("k", 0)
	mgr.AddTask("k", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := mgr.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, calls)
}

func TestAddTaskDuringRun(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []int
		mgr  *TaskManager[struct{}, int]
	)
	mgr = NewTaskManager(func(ctx context.Context, _ struct{}, task int) error {
		mu.Lock()
		seen = append(seen, task)
		mu.Unlock()
		if task < 3 {
			mgr.AddTask("k", task+1)
		}
		return nil
	})
	mgr.AddContext("k", struct{}{})
	mgr.AddTask("k", 0)

	require.NoError(t, mgr.Run(context.Background()))
	require.Equal(t, []int{0, 1, 2, 3}, seen)
}
