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

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// TaskMUS serializes Task values in the MUS format for key-value backends.
// Timestamps are encoded as Unix microseconds and decoded in UTC.
var TaskMUS = taskSerializer{}

type taskSerializer struct{}

// Marshal encodes the task into bs and returns the number of bytes written.
// bs must be at least Size(task) bytes long.
func (taskSerializer) Marshal(task Task, bs []byte) (n int) {
	n = ord.String.Marshal(task.ID, bs)
	n += varint.Int.Marshal(int(task.Status), bs[n:])
	n += ord.Bool.Marshal(task.Result != nil, bs[n:])
	if task.Result != nil {
		n += ord.String.Marshal(task.Result.ID, bs[n:])
		n += ord.String.Marshal(task.Result.FileName, bs[n:])
	}
	n += ord.String.Marshal(task.Error, bs[n:])
	n += varint.Int64.Marshal(task.CreatedAt.UnixMicro(), bs[n:])
	n += varint.Int64.Marshal(task.UpdatedAt.UnixMicro(), bs[n:])
	return n
}

// Unmarshal decodes a task from bs, returning the task and the number of
// bytes consumed.
func (taskSerializer) Unmarshal(bs []byte) (task Task, n int, err error) {
	var n1 int

	task.ID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}

	var status int
	status, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	task.Status = TaskStatus(status)

	var hasResult bool
	hasResult, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if hasResult {
		result := &TaskResult{}
		result.ID, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		result.FileName, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		task.Result = result
	}

	task.Error, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	var usec int64
	usec, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	task.CreatedAt = time.UnixMicro(usec).UTC()

	usec, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	task.UpdatedAt = time.UnixMicro(usec).UTC()

	return
}

// Size returns the number of bytes Marshal will produce for the task.
func (taskSerializer) Size(task Task) (size int) {
	size = ord.String.Size(task.ID)
	size += varint.Int.Size(int(task.Status))
	size += ord.Bool.Size(task.Result != nil)
	if task.Result != nil {
		size += ord.String.Size(task.Result.ID)
		size += ord.String.Size(task.Result.FileName)
	}
	size += ord.String.Size(task.Error)
	size += varint.Int64.Size(task.CreatedAt.UnixMicro())
	size += varint.Int64.Size(task.UpdatedAt.UnixMicro())
	return size
}
