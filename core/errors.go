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

import "errors"

// Domain validation errors
var (
	// ErrEmptyImage indicates a submission with no image bytes.
	ErrEmptyImage = errors.New("image content cannot be empty")

	// ErrEmptyID indicates an IndexItem without a fingerprint ID.
	ErrEmptyID = errors.New("item id cannot be empty")

	// ErrIDTooLong indicates an IndexItem ID exceeding the schema limit.
	ErrIDTooLong = errors.New("item id exceeds maximum length")

	// ErrEmptyVector indicates an IndexItem without an embedding vector.
	ErrEmptyVector = errors.New("item vector cannot be empty")

	// ErrDimensionMismatch indicates a vector whose length does not match
	// the collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
