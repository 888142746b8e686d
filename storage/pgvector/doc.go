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


// Package pgvector implements storage.VectorRepository on PostgreSQL with the
// pgvector extension.
//
// The namespace/collection/index hierarchy maps onto Postgres as
// schema/table/HNSW index. EnsureSchema is idempotent DDL (CREATE ... IF NOT
// EXISTS throughout) and is safe to run on every process start; Reset drops
// the table first and exists for test and bootstrap tooling only.
//
// Duplicate primary keys surface as storage.ErrDuplicateKey (unique_violation,
// SQLSTATE 23505); every other database error is wrapped in
// storage.ErrUnavailable. Postgres provides read-your-write consistency on a
// single connection pool, so the staleness window documented on the interface
// is zero for this backend.
package pgvector
