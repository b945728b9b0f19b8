// Package taskmgr runs queued tasks grouped by key: tasks sharing a key run
// one after another on that key's context, distinct keys run concurrently.
package taskmgr

import (
	"container/list"
	"context"
	"errors"
	"sync"
)

// HandlerFunc runs one task with the context registered for its key.
type HandlerFunc[C, T any] func(ctx context.Context, keyCtx C, task T) error

type queue struct {
	running bool
	tasks   list.List
}

type TaskManager[C, T any] struct {
	contexts  map[string]C
	mutex     sync.Mutex
	queues    map[string]*queue
	handler   HandlerFunc[C, T]
	running   bool
	runCtx    context.Context
	errs      []error
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

func NewTaskManager[C, T any](handler HandlerFunc[C, T]) *TaskManager[C, T] {
	return &TaskManager[C, T]{
		contexts: make(map[string]C),
		queues:   make(map[string]*queue),
		handler:  handler,
	}
}

// AddContext registers the context handed to every task queued under key.
func (t *TaskManager[C, T]) AddContext(key string, keyCtx C) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.contexts[key] = keyCtx
}

// AddTask queues task under key. Tasks added while Run is in progress are
// picked up by the same run.
func (t *TaskManager[C, T]) AddTask(key string, task T) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	q, ok := t.queues[key]
	if !ok {
		q = &queue{}
		t.queues[key] = q
	}
	q.tasks.PushBack(task)
	if t.running && !q.running {
		q.running = true
		t.wg.Add(1)
		go t.runQueue(key, q)
	}
}

func (t *TaskManager[C, T]) runQueue(key string, q *queue) {
	defer t.wg.Done()
	t.mutex.Lock()
	keyCtx := t.contexts[key]
	ctx := t.runCtx
	for {
		if q.tasks.Len() == 0 {
			q.running = false
			t.mutex.Unlock()
			return
		}
		task := q.tasks.Remove(q.tasks.Front()).(T)
		t.mutex.Unlock()
		var err error
		if err = ctx.Err(); err == nil {
			err = t.handler(ctx, keyCtx, task)
		}
		t.mutex.Lock()
		if err != nil {
			if ctx.Err() == nil || len(t.errs) == 0 {
				t.errs = append(t.errs, err)
			}
			// Abandon the rest of the run once any task fails.
			t.cancelRun()
		}
	}
}

// Run executes every queued task and blocks until all queues are drained.
// The first failing task cancels the context passed to the remaining ones;
// all task errors are joined into the returned error.
func (t *TaskManager[C, T]) Run(ctx context.Context) error {
	t.mutex.Lock()
	t.running = true
	t.errs = nil
	t.runCtx, t.cancelRun = context.WithCancel(ctx)
	for key, q := range t.queues {
		if q.running || q.tasks.Len() == 0 {
			continue
		}
		q.running = true
		t.wg.Add(1)
		go t.runQueue(key, q)
	}
	t.mutex.Unlock()

	t.wg.Wait()

	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.running = false
	t.cancelRun()
	errs := t.errs
	t.errs = nil
	if len(errs) == 0 {
		// The caller's context may have been cancelled with nothing failing.
		return ctx.Err()
	}
	return errors.Join(errs...)
}
