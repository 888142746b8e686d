package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/poiesic/imago/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	tests := []struct {
		name string
		task core.Task
	}{
		{
			name: "queued task",
			task: core.Task{
				ID:        "3e1f0a3c-9a5f-4d7e-8c2b-0f6f4f1f2a3b",
				Status:    core.TaskQueued,
				CreatedAt: now,
				UpdatedAt: now,
			},
		},
		{
			name: "completed task with result",
			task: core.Task{
				ID:     "t1",
				Status: core.TaskCompleted,
				Result: &core.TaskResult{
					ID:       "f1",
					FileName: "x.png",
				},
				CreatedAt: now.Add(-time.Minute),
				UpdatedAt: now,
			},
		},
		{
			name: "failed task with error",
			task: core.Task{
				ID:        "t2",
				Status:    core.TaskFailed,
				Error:     "encode: connection refused",
				CreatedAt: now.Add(-time.Hour),
				UpdatedAt: now,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalTask(&tt.task)
			require.NotEmpty(t, data)

			got, err := UnmarshalTask(data)
			require.NoError(t, err)
			assert.Equal(t, tt.task, *got)
		})
	}
}

func TestUnmarshalTask_Truncated(t *testing.T) {
	task := core.Task{
		ID:        "t1",
		Status:    core.TaskCompleted,
		Result:    &core.TaskResult{ID: "f1", FileName: "x.png"},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	data := MarshalTask(&task)

	_, err := UnmarshalTask(data[:len(data)/2])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSerializationFailed))
}

func TestUnmarshalTask_Empty(t *testing.T) {
	_, err := UnmarshalTask(nil)
	require.Error(t, err)
}
