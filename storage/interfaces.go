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


package storage

import (
	"context"
	"time"

	"github.com/poiesic/imago/core"
)

// Vectorized is implemented by record types stored in a vector collection.
type Vectorized interface {
	// VectorID returns the primary key of the record.
	VectorID() string

	// VectorData returns the embedding vector of the record.
	VectorData() []float32

	// ScalarFields returns the record's non-vector fields keyed by the
	// column names declared in the CollectionSpec.
	ScalarFields() map[string]any
}

// FieldType identifies the storage type of a scalar collection field.
type FieldType int

const (
	// FieldTypeVarchar is a bounded string field.
	FieldTypeVarchar FieldType = iota + 1
	// FieldTypeText is an unbounded string field.
	FieldTypeText
	// FieldTypeInt is a 64-bit integer field.
	FieldTypeInt
	// FieldTypeFloat is a 64-bit float field.
	FieldTypeFloat
)

// FieldSpec declares one scalar field of a vector collection.
type FieldSpec struct {
	Name   string
	Type   FieldType
	MaxLen int // varchar only
}

// CollectionSpec declares the schema of a vector collection: its name, the
// embedding dimension, and the scalar fields stored alongside id and vector.
type CollectionSpec struct {
	Name      string
	Dimension int
	Fields    []FieldSpec
}

// Metric is the distance metric of an approximate-nearest-neighbor index.
type Metric int

const (
	// MetricCosine orders results by cosine distance.
	MetricCosine Metric = iota + 1
	// MetricL2 orders results by Euclidean distance.
	MetricL2
	// MetricInnerProduct orders results by negative inner product.
	MetricInnerProduct
)

// IndexSpec declares the ANN index built over a collection's vector field.
type IndexSpec struct {
	Name   string
	Metric Metric

	// HNSW construction parameters.
	M              int
	EfConstruction int
}

// VectorRepository owns schema/index lifecycle and CRUD against a vector
// database for one record type. The collection schema is fixed at
// construction; the index is supplied per lifecycle call so bootstrap tooling
// can vary construction parameters.
type VectorRepository[T Vectorized] interface {
	// EnsureSchema performs idempotent setup: creates the namespace if
	// absent, the collection if absent, and the ANN index if absent. Safe
	// to call on every process start; never destroys existing data.
	EnsureSchema(ctx context.Context, index IndexSpec) error

	// Reset drops the collection and recreates it from scratch.
	// Destructive; intended for test and bootstrap tooling only.
	Reset(ctx context.Context, index IndexSpec) error

	// Create inserts records and returns their ids in input order.
	// A single-item call is never partially applied; multi-item batch
	// atomicity is implementation-defined per backend and must not be
	// relied upon. Returns ErrDuplicateKey when an id already exists,
	// ErrUnavailable on transport or backend errors.
	Create(ctx context.Context, items []T) ([]string, error)

	// ReadByID returns the records whose ids are present. Absent ids are
	// silently omitted, not an error.
	ReadByID(ctx context.Context, ids []string) ([]T, error)

	// DeleteByID removes records by id and returns the number deleted.
	// Idempotent: absent ids count as 0, not an error.
	DeleteByID(ctx context.Context, ids []string) (int, error)

	// Search returns at most k records ordered by increasing distance to
	// the query vector (most similar first), ties broken by ascending id.
	Search(ctx context.Context, vector []float32, k int) ([]T, error)

	// Close releases the backend connection.
	Close() error
}

// BlobStore is content-addressed object storage. Put must be idempotent:
// writing the same key twice is overwrite-safe, never an error, so duplicate
// ingestions of identical content race harmlessly.
type BlobStore interface {
	// EnsureBucket creates the bucket if absent. Idempotent.
	EnsureBucket(ctx context.Context, bucket string) error

	// Put writes data under key with the given content type.
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error

	// Get reads the blob stored under key. Returns ErrNotFound if absent.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Exists reports whether a blob is stored under key.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Delete removes the blob under key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, bucket, key string) error
}

// TransitionPayload carries the terminal-state data of a task transition.
type TransitionPayload struct {
	// Result is stored when transitioning to TaskCompleted.
	Result *core.TaskResult
	// Error is stored when transitioning to TaskFailed.
	Error string
}

// TaskStore maps task identifiers to task lifecycle state, with expiry.
// Records are owned exclusively by the store; the pipeline never deletes them.
type TaskStore interface {
	// Create stores a new task in the QUEUED state. Returns
	// ErrAlreadyExists if the ID is already present, which indicates an ID
	// generator bug rather than a caller race.
	Create(ctx context.Context, taskID string) (*core.Task, error)

	// Get returns the task or ErrNotFound.
	Get(ctx context.Context, taskID string) (*core.Task, error)

	// Transition atomically moves the task to status, enforcing the
	// monotonic state machine. It is a compare-and-set: concurrent callers
	// racing on the same step see exactly one winner; the rest get
	// ErrInvalidTransition. Returns ErrNotFound for unknown ids.
	Transition(ctx context.Context, taskID string, status core.TaskStatus, payload TransitionPayload) (*core.Task, error)

	// Sweep force-fails every non-terminal task not updated within
	// olderThan, recording "timeout" as the cause. Returns the number of
	// tasks failed. Late Transition attempts by a still-running worker are
	// then rejected by the terminal-state invariant.
	Sweep(ctx context.Context, olderThan time.Duration) (int, error)

	// Close closes the store.
	Close() error
}
