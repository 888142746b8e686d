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


package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/imago/core"
	"github.com/poiesic/imago/storage"
)

const (
	taskKeyPrefix = "task:"

	defaultTaskTTL = 24 * time.Hour

	// Write transactions that lose a conflict are retried this many times
	// before the error surfaces.
	maxConflictRetries = 5
)

// makeTaskKey generates a key for a task record by ID.
func makeTaskKey(taskID string) []byte {
	return []byte(taskKeyPrefix + taskID)
}

// TaskStore implements storage.TaskStore on BadgerDB. Transitions run as
// serializable transactions; conflicting writers are retried and re-checked
// against the state machine, so concurrent racers on the same step see
// exactly one winner.
type TaskStore struct {
	backend *Backend
	ttl     time.Duration
	logger  *slog.Logger
}

var _ storage.TaskStore = (*TaskStore)(nil)

// TaskStoreOption configures a TaskStore.
type TaskStoreOption func(*TaskStore)

// WithTaskTTL sets the record lifetime. Default is 24 hours.
func WithTaskTTL(ttl time.Duration) TaskStoreOption {
	return func(s *TaskStore) {
		s.ttl = ttl
	}
}

// NewTaskStore creates a task store on the given backend.
func NewTaskStore(backend *Backend, opts ...TaskStoreOption) (*TaskStore, error) {
	if backend == nil {
		return nil, errors.New("badger: backend required")
	}

	s := &TaskStore{
		backend: backend,
		ttl:     defaultTaskTTL,
		logger:  slog.Default().With("component", "badger-taskstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create stores a new task in the QUEUED state with the configured TTL.
func (s *TaskStore) Create(ctx context.Context, taskID string) (*core.Task, error) {
	if taskID == "" {
		return nil, errors.New("badger: task id cannot be empty")
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	task := &core.Task{
		ID:        taskID,
		Status:    core.TaskQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	key := makeTaskKey(taskID)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(key)
		if err == nil {
			return fmt.Errorf("%w: task %s", storage.ErrAlreadyExists, taskID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		entry := badger.NewEntry(key, storage.MarshalTask(task)).WithTTL(s.ttl)
		return tx.SetEntry(entry)
	}, true)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Get returns the task or storage.ErrNotFound. Expired records surface as
// not found once BadgerDB drops them.
func (s *TaskStore) Get(ctx context.Context, taskID string) (*core.Task, error) {
	var task *core.Task

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeTaskKey(taskID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: task %s", storage.ErrNotFound, taskID)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			task, err = storage.UnmarshalTask(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Transition atomically moves the task to status, carrying the payload into
// terminal states. The record keeps its remaining TTL.
func (s *TaskStore) Transition(ctx context.Context, taskID string, status core.TaskStatus, payload storage.TransitionPayload) (*core.Task, error) {
	key := makeTaskKey(taskID)

	var task *core.Task
	for attempt := 0; ; attempt++ {
		task = nil
		err := s.backend.WithTx(func(tx *badger.Txn) error {
			item, err := tx.Get(key)
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("%w: task %s", storage.ErrNotFound, taskID)
				}
				return err
			}

			var current *core.Task
			if err := item.Value(func(val []byte) error {
				current, err = storage.UnmarshalTask(val)
				return err
			}); err != nil {
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

			entry := badger.NewEntry(key, storage.MarshalTask(current))
			if exp := item.ExpiresAt(); exp > 0 {
				remaining := time.Until(time.Unix(int64(exp), 0))
				if remaining <= 0 {
					return fmt.Errorf("%w: task %s", storage.ErrNotFound, taskID)
				}
				entry = entry.WithTTL(remaining)
			}
			if err := tx.SetEntry(entry); err != nil {
				return err
			}

			task = current
			return nil
		}, true)

		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		if err != nil {
			return nil, err
		}
		return task, nil
	}
}

// Sweep force-fails every non-terminal task not updated within olderThan and
// returns how many were failed.
func (s *TaskStore) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	var stale []string
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(taskKeyPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var task *core.Task
			err := iter.Item().Value(func(val []byte) error {
				var err error
				task, err = storage.UnmarshalTask(val)
				return err
			})
			if err != nil {
				return err
			}
			if !task.Status.Terminal() && task.UpdatedAt.Before(cutoff) {
				stale = append(stale, task.ID)
			}
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
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

// Close is a no-op; the shared backend owns the database handle.
func (s *TaskStore) Close() error {
	return nil
}
