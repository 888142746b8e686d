package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/imago/core"
	"github.com/poiesic/imago/storage"
)

func newTestTaskStore(t *testing.T, opts ...Option) (*TaskStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store, err := NewTaskStore(client, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func TestNewTaskStoreNilClient(t *testing.T) {
	_, err := NewTaskStore(nil)
	assert.Error(t, err)
}

func TestTaskStoreCreate(t *testing.T) {
	store, mr := newTestTaskStore(t)
	ctx := context.Background()

	task, err := store.Create(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, core.TaskQueued, task.Status)
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)

	ttl := mr.TTL(taskKey("task-1"))
	assert.Greater(t, ttl, 23*time.Hour)
}

func TestTaskStoreCreateDuplicate(t *testing.T) {
	store, _ := newTestTaskStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "task-1")
	require.NoError(t, err)

	_, err = store.Create(ctx, "task-1")
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestTaskStoreGet(t *testing.T) {
	store, _ := newTestTaskStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "task-1")
	require.NoError(t, err)

	got, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, core.TaskQueued, got.Status)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
}

func TestTaskStoreGetNotFound(t *testing.T) {
	store, _ := newTestTaskStore(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTaskStoreGetExpired(t *testing.T) {
	store, mr := newTestTaskStore(t, WithTaskTTL(time.Minute))
	ctx := context.Background()

	_, err := store.Create(ctx, "task-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Get(ctx, "task-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTaskStoreTransitionLifecycle(t *testing.T) {
	store, _ := newTestTaskStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "task-1")
	require.NoError(t, err)

	task, err := store.Transition(ctx, "task-1", core.TaskProcessing, storage.TransitionPayload{})
	require.NoError(t, err)
	assert.Equal(t, core.TaskProcessing, task.Status)

	result := &core.TaskResult{ID: "abc123", FileName: "cat.png"}
	task, err = store.Transition(ctx, "task-1", core.TaskCompleted, storage.TransitionPayload{Result: result})
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, task.Status)
	require.NotNil(t, task.Result)
	assert.Equal(t, "abc123", task.Result.ID)

	got, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "cat.png", got.Result.FileName)
}

func TestTaskStoreTransitionKeepsTTL(t *testing.T) {
	store, mr := newTestTaskStore(t, WithTaskTTL(time.Hour))
	ctx := context.Background()

	_, err := store.Create(ctx, "task-1")
	require.NoError(t, err)

	mr.FastForward(30 * time.Minute)

	_, err = store.Transition(ctx, "task-1", core.TaskProcessing, storage.TransitionPayload{})
	require.NoError(t, err)

	ttl := mr.TTL(taskKey("task-1"))
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 30*time.Minute)
}

func TestTaskStoreTransitionInvalid(t *testing.T) {
	store, _ := newTestTaskStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		setup []core.TaskStatus
		next  core.TaskStatus
	}{
		{name: "queued to completed", setup: nil, next: core.TaskCompleted},
		{name: "completed is terminal", setup: []core.TaskStatus{core.TaskProcessing, core.TaskCompleted}, next: core.TaskFailed},
		{name: "failed is terminal", setup: []core.TaskStatus{core.TaskProcessing, core.TaskFailed}, next: core.TaskProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			taskID := core.NewTaskID()
			_, err := store.Create(ctx, taskID)
			require.NoError(t, err)
			for _, status := range tt.setup {
				_, err := store.Transition(ctx, taskID, status, storage.TransitionPayload{})
				require.NoError(t, err)
			}

			_, err = store.Transition(ctx, taskID, tt.next, storage.TransitionPayload{})
			assert.ErrorIs(t, err, storage.ErrInvalidTransition)
		})
	}
}

func TestTaskStoreTransitionNotFound(t *testing.T) {
	store, _ := newTestTaskStore(t)

	_, err := store.Transition(context.Background(), "missing", core.TaskProcessing, storage.TransitionPayload{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTaskStoreTransitionConcurrentSingleWinner(t *testing.T) {
	store, _ := newTestTaskStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "task-1")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Transition(ctx, "task-1", core.TaskProcessing, storage.TransitionPayload{})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, storage.ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestTaskStoreSweep(t *testing.T) {
	store, _ := newTestTaskStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "stale-queued")
	require.NoError(t, err)

	_, err = store.Create(ctx, "done")
	require.NoError(t, err)
	_, err = store.Transition(ctx, "done", core.TaskProcessing, storage.TransitionPayload{})
	require.NoError(t, err)
	_, err = store.Transition(ctx, "done", core.TaskCompleted, storage.TransitionPayload{Result: &core.TaskResult{ID: "x"}})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	count, err := store.Sweep(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	task, err := store.Get(ctx, "stale-queued")
	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, task.Status)
	assert.Equal(t, "timeout", task.Error)

	task, err = store.Get(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, task.Status)
}

func TestTaskStoreSweepFreshTasksUntouched(t *testing.T) {
	store, _ := newTestTaskStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "fresh")
	require.NoError(t, err)

	count, err := store.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
