// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/poiesic/imago/core"
	"github.com/poiesic/imago/storage"
)

const (
	taskKeyPrefix = "imago:task:"

	defaultTaskTTL = 24 * time.Hour

	// Optimistic WATCH transactions that lose a race are retried this many
	// times before the error surfaces.
	maxWatchRetries = 5
)

func taskKey(taskID string) string {
	return taskKeyPrefix + taskID
}

// TaskStore implements storage.TaskStore on Redis. Transitions use WATCH
// optimistic transactions, so concurrent racers on the same step see exactly
// one winner. Records expire via Redis TTL.
type TaskStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ storage.TaskStore = (*TaskStore)(nil)

// Option configures a TaskStore.
type Option func(*TaskStore)

// WithTaskTTL sets the record lifetime. Default is 24 hours.
func WithTaskTTL(ttl time.Duration) Option {
	return func(s *TaskStore) {
		s.ttl = ttl
	}
}

// NewTaskStore creates a task store on the given Redis client.
func NewTaskStore(client *redis.Client, opts ...Option) (*TaskStore, error) {
	if client == nil {
		return nil, errors.New("redis: client required")
	}

	s := &TaskStore{
		client: client,
		ttl:    defaultTaskTTL,
		logger: slog.Default().With("component", "redis-taskstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create stores a new task in the QUEUED state with the configured TTL.
func (s *TaskStore) Create(ctx context.Context, taskID string) (*core.Task, error) {
	if taskID == "" {
		return nil, errors.New("redis: task id cannot be empty")
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	task := &core.Task{
		ID:        taskID,
		Status:    core.TaskQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	set, err := s.client.SetNX(ctx, taskKey(taskID), storage.MarshalTask(task), s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: create task: %w", storage.ErrUnavailable, err)
	}
	if !set {
		return nil, fmt.Errorf("%w: task %s", storage.ErrAlreadyExists, taskID)
	}
	return task, nil
}

// Get returns the task or storage.ErrNotFound. Expired records surface as
// not found once Redis drops them.
func (s *TaskStore) Get(ctx context.Context, taskID string) (*core.Task, error) {
	data, err := s.client.Get(ctx, taskKey(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: task %s", storage.ErrNotFound, taskID)
		}
		return nil, fmt.Errorf("%w: get task: %w", storage.ErrUnavailable, err)
	}
	return storage.UnmarshalTask(data)
}

// Transition atomically moves the task to status, carrying the payload into
// terminal states. The record keeps its remaining TTL.
func (s *TaskStore) Transition(ctx context.Context, taskID string, status core.TaskStatus, payload storage.TransitionPayload) (*core.Task, error) {
	key := taskKey(taskID)

	var task *core.Task
	for attempt := 0; ; attempt++ {
		task = nil
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return fmt.Errorf("%w: task %s", storage.ErrNotFound, taskID)
				}
				return err
			}

			current, err := storage.UnmarshalTask(data)
			if err != nil {
				return err
			}

			if !current.Status.CanTransitionTo(status) {
				return fmt.Errorf("%w: task %s cannot move %s -> %s",
					storage.ErrInvalidTransition, taskID, current.Status, status)
			}

			current.Status = status
			current.Result = payload.Result
			current.Error = payload.Error
			current.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, storage.MarshalTask(current), redis.KeepTTL)
				return nil
			})
			if err != nil {
				return err
			}

			task = current
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) && attempt < maxWatchRetries {
			continue
		}
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidTransition) ||
				errors.Is(err, storage.ErrSerializationFailed) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: transition task: %w", storage.ErrUnavailable, err)
		}
		return task, nil
	}
}

// Sweep force-fails every non-terminal task not updated within olderThan and
// returns how many were failed.
func (s *TaskStore) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	var stale []string
	iter := s.client.Scan(ctx, 0, taskKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return 0, fmt.Errorf("%w: sweep scan: %w", storage.ErrUnavailable, err)
		}

		task, err := storage.UnmarshalTask(data)
		if err != nil {
			return 0, err
		}
		if !task.Status.Terminal() && task.UpdatedAt.Before(cutoff) {
			stale = append(stale, strings.TrimPrefix(key, taskKeyPrefix))
		}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("%w: sweep scan: %w", storage.ErrUnavailable, err)
	}

	// Transition re-checks state per task, so a worker finishing between the
	// scan and the write simply wins the race.
	count := 0
	for _, id := range stale {
		_, err := s.Transition(ctx, id, core.TaskFailed, storage.TransitionPayload{Error: "timeout"})
		if err != nil {
			if errors.Is(err, storage.ErrInvalidTransition) || errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return count, err
		}
		s.logger.Warn("task swept", "task_id", id)
		count++
	}
	return count, nil
}

// Close closes the underlying Redis client.
func (s *TaskStore) Close() error {
	return s.client.Close()
}
