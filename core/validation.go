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

import "fmt"

// MaxIDLength is the maximum length of an IndexItem ID. It matches the
// primary key column width of the vector collection.
const MaxIDLength = 64

// ValidateIndexItem validates an IndexItem against domain rules before it is
// written to the vector store.
//
// Validation rules:
//   - ID must not be empty and must fit in the key column
//   - Vector must not be empty
//   - Vector length must equal dimension when dimension > 0
//
// NOT validated:
//   - FileName (display only, not part of identity; may be empty)
func ValidateIndexItem(item *IndexItem, dimension int) error {
	if item == nil {
		return fmt.Errorf("index item is nil")
	}

	if item.ID == "" {
		return ErrEmptyID
	}

	if len(item.ID) > MaxIDLength {
		return fmt.Errorf("%w: %d > %d", ErrIDTooLong, len(item.ID), MaxIDLength)
	}

	if len(item.Vector) == 0 {
		return ErrEmptyVector
	}

	if dimension > 0 && len(item.Vector) != dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(item.Vector), dimension)
	}

	return nil
}
