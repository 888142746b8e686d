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


// Package storage provides the storage abstraction layer for imago.
//
// This package defines the interfaces that decouple the ingestion core from
// its three independently provisioned backends:
//
//   - VectorRepository: schema lifecycle and CRUD against a vector database
//     for one record type (storage/pgvector)
//   - BlobStore: content-addressed object storage (storage/s3)
//   - TaskStore: task lifecycle records with expiry (storage/redis,
//     storage/badger)
//
// # Constructor Return Type Pattern
//
// Public constructors in the backend subpackages return these interfaces, not
// concrete types:
//
//	tasks, err := redis.NewTaskStore(opts)  // returns storage.TaskStore
//
// This keeps the ingestion pipeline swappable across backends and lets tests
// substitute doubles without modification.
//
// # Consistency Model
//
// The three backends fail independently; there is no cross-store transaction.
// The pipeline in package ingestion defines the partial-failure ordering.
// Vector reads may observe the backend's eventual-consistency lag; callers
// must not assume read-your-write semantics across processes.
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access from
// multiple goroutines. TaskStore.Transition must be an atomic compare-and-set
// on task status: it is the mutual-exclusion point that guarantees at-most-one
// processing per task.
package storage
