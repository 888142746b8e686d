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

import "errors"

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey indicates a write whose key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrAlreadyExists indicates a task created with a reused task ID.
	// Under correct ID generation this never happens; seeing it means the
	// generator is broken, not that the caller raced.
	ErrAlreadyExists = errors.New("task already exists")

	// ErrInvalidTransition indicates a task status change that violates the
	// monotonic state machine, including any change out of a terminal state.
	ErrInvalidTransition = errors.New("invalid task transition")

	// ErrUnavailable indicates a transport or backend failure. Retryable.
	ErrUnavailable = errors.New("store unavailable")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")
)
