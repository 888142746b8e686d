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


package core

import (
	"time"

	"github.com/google/uuid"
)

// NewTaskID generates a globally unique task identifier.
// Task identity is independent of content identity: two submissions of the
// same image get different task IDs but converge on the same IndexItem ID.
func NewTaskID() string {
	return uuid.NewString()
}

// IndexItem is one entry in the vector store. Its ID is the content
// fingerprint, so bit-identical images always map to the same entry.
type IndexItem struct {
	ID       string
	Vector   []float32
	FileName string
}

// VectorID returns the primary key of the item.
func (it IndexItem) VectorID() string { return it.ID }

// VectorData returns the embedding vector of the item.
func (it IndexItem) VectorData() []float32 { return it.Vector }

// ScalarFields returns the non-vector fields of the item keyed by column name.
func (it IndexItem) ScalarFields() map[string]any {
	return map[string]any{"file_name": it.FileName}
}

// TaskStatus is the lifecycle state of an ingest task.
type TaskStatus int

const (
	// TaskQueued means the task was accepted but processing has not started.
	TaskQueued TaskStatus = iota + 1
	// TaskProcessing means a worker is executing the task.
	TaskProcessing
	// TaskCompleted means the task finished and its result is available.
	TaskCompleted
	// TaskFailed means the task terminated with an error.
	TaskFailed
)

// String returns the wire representation of the status.
func (s TaskStatus) String() string {
	switch s {
	case TaskQueued:
		return "QUEUED"
	case TaskProcessing:
		return "PROCESSING"
	case TaskCompleted:
		return "COMPLETED"
	case TaskFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the status is final. Terminal states are immutable.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransitionTo reports whether moving from s to next is a legal step of the
// task state machine. Transitions are monotonic:
// QUEUED -> PROCESSING -> {COMPLETED, FAILED}, plus the sweeper-driven
// QUEUED -> FAILED for tasks that expire before pickup.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskQueued:
		return next == TaskProcessing || next == TaskFailed
	case TaskProcessing:
		return next == TaskCompleted || next == TaskFailed
	default:
		return false
	}
}

// TaskResult holds the outcome of a completed task.
type TaskResult struct {
	// ID is the content fingerprint the task converged on.
	ID string
	// FileName is the display name the content was submitted under.
	FileName string
}

// Task is one submission's lifecycle record. Tasks are created QUEUED by
// Submit and mutated only through TaskStore.Transition until they reach a
// terminal state or expire.
type Task struct {
	ID        string
	Status    TaskStatus
	Result    *TaskResult // set only when Status == TaskCompleted
	Error     string      // set only when Status == TaskFailed
	CreatedAt time.Time
	UpdatedAt time.Time
}
