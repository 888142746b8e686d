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


package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/poiesic/imago/storage"
)

// FromRowFunc builds a record from the columns of one row.
type FromRowFunc[T storage.Vectorized] func(id string, vector []float32, fields map[string]any) (T, error)

// Repository implements storage.VectorRepository for one collection.
type Repository[T storage.Vectorized] struct {
	db       *sqlx.DB
	schema   string
	col      storage.CollectionSpec
	fromRow  FromRowFunc[T]
	efSearch int
	logger   *slog.Logger
}

// Option configures a Repository.
type Option func(*options)

type options struct {
	schema   string
	efSearch int
}

// WithSchema sets the Postgres schema the collection lives in.
// Default is "public".
func WithSchema(schema string) Option {
	return func(o *options) {
		o.schema = schema
	}
}

// WithEfSearch sets the query-time HNSW candidate list size applied to every
// Search call. Zero keeps the server default.
func WithEfSearch(ef int) Option {
	return func(o *options) {
		o.efSearch = ef
	}
}

// New creates a vector repository for the given collection. fromRow binds the
// generic record type to the collection's columns.
//
// Returns storage.VectorRepository interface to enforce abstraction.
func New[T storage.Vectorized](db *sqlx.DB, col storage.CollectionSpec, fromRow FromRowFunc[T], opts ...Option) (storage.VectorRepository[T], error) {
	if db == nil {
		return nil, errors.New("pgvector: db required")
	}
	if col.Name == "" {
		return nil, errors.New("pgvector: collection name required")
	}
	if col.Dimension < 1 {
		return nil, errors.New("pgvector: collection dimension required")
	}
	if fromRow == nil {
		return nil, errors.New("pgvector: fromRow required")
	}

	o := &options{schema: "public"}
	for _, opt := range opts {
		opt(o)
	}

	return &Repository[T]{
		db:       db,
		schema:   o.schema,
		col:      col,
		fromRow:  fromRow,
		efSearch: o.efSearch,
		logger:   slog.Default().With("component", "pgvector", "collection", col.Name),
	}, nil
}

// table returns the quoted, schema-qualified table identifier.
func (r *Repository[T]) table() string {
	return pq.QuoteIdentifier(r.schema) + "." + pq.QuoteIdentifier(r.col.Name)
}

// columns returns the full column list: id, embedding, then scalar fields in
// spec order.
func (r *Repository[T]) columns() []string {
	cols := make([]string, 0, 2+len(r.col.Fields))
	cols = append(cols, "id", "embedding")
	for _, f := range r.col.Fields {
		cols = append(cols, pq.QuoteIdentifier(f.Name))
	}
	return cols
}

func fieldDDL(f storage.FieldSpec) (string, error) {
	switch f.Type {
	case storage.FieldTypeVarchar:
		maxLen := f.MaxLen
		if maxLen <= 0 {
			maxLen = 255
		}
		return fmt.Sprintf("%s VARCHAR(%d) NOT NULL DEFAULT ''", pq.QuoteIdentifier(f.Name), maxLen), nil
	case storage.FieldTypeText:
		return fmt.Sprintf("%s TEXT NOT NULL DEFAULT ''", pq.QuoteIdentifier(f.Name)), nil
	case storage.FieldTypeInt:
		return fmt.Sprintf("%s BIGINT NOT NULL DEFAULT 0", pq.QuoteIdentifier(f.Name)), nil
	case storage.FieldTypeFloat:
		return fmt.Sprintf("%s DOUBLE PRECISION NOT NULL DEFAULT 0", pq.QuoteIdentifier(f.Name)), nil
	default:
		return "", fmt.Errorf("pgvector: unsupported field type %d for %q", f.Type, f.Name)
	}
}

func opclass(metric storage.Metric) (string, error) {
	switch metric {
	case storage.MetricCosine:
		return "vector_cosine_ops", nil
	case storage.MetricL2:
		return "vector_l2_ops", nil
	case storage.MetricInnerProduct:
		return "vector_ip_ops", nil
	default:
		return "", fmt.Errorf("pgvector: unsupported metric %d", metric)
	}
}

func distanceOp(metric storage.Metric) (string, error) {
	switch metric {
	case storage.MetricCosine:
		return "<=>", nil
	case storage.MetricL2:
		return "<->", nil
	case storage.MetricInnerProduct:
		return "<#>", nil
	default:
		return "", fmt.Errorf("pgvector: unsupported metric %d", metric)
	}
}

// EnsureSchema performs idempotent setup of the namespace, collection and ANN
// index. Safe to call on every process start.
func (r *Repository[T]) EnsureSchema(ctx context.Context, index storage.IndexSpec) error {
	var extExists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_extension WHERE extname = 'vector'
		)
	`).Scan(&extExists)
	if err != nil {
		return fmt.Errorf("%w: check pgvector extension: %w", storage.ErrUnavailable, err)
	}
	if !extExists {
		return errors.New("pgvector: extension is not installed")
	}

	if _, err := r.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(r.schema)); err != nil {
		return fmt.Errorf("%w: create schema: %w", storage.ErrUnavailable, err)
	}

	fieldCols := make([]string, 0, len(r.col.Fields))
	for _, f := range r.col.Fields {
		ddl, err := fieldDDL(f)
		if err != nil {
			return err
		}
		fieldCols = append(fieldCols, ddl)
	}
	extra := ""
	if len(fieldCols) > 0 {
		extra = ",\n\t\t\t" + strings.Join(fieldCols, ",\n\t\t\t")
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(64) PRIMARY KEY,
			embedding vector(%d) NOT NULL%s,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`, r.table(), r.col.Dimension, extra)
	if _, err := r.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("%w: create collection: %w", storage.ErrUnavailable, err)
	}

	oc, err := opclass(index.Metric)
	if err != nil {
		return err
	}
	indexName := index.Name
	if indexName == "" {
		indexName = r.col.Name + "_embedding_idx"
	}
	m := index.M
	if m <= 0 {
		m = 16
	}
	efc := index.EfConstruction
	if efc <= 0 {
		efc = 200
	}
	createIndex := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding %s) WITH (m = %d, ef_construction = %d)",
		pq.QuoteIdentifier(indexName), r.table(), oc, m, efc,
	)
	if _, err := r.db.ExecContext(ctx, createIndex); err != nil {
		return fmt.Errorf("%w: create index: %w", storage.ErrUnavailable, err)
	}

	// Postgres tables are queryable as soon as they exist; there is no
	// separate load step for this backend.
	r.logger.Info("vector schema ensured", "schema", r.schema, "dimension", r.col.Dimension)
	return nil
}

// Reset drops the collection and recreates it from scratch. Destructive.
func (r *Repository[T]) Reset(ctx context.Context, index storage.IndexSpec) error {
	if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+r.table()); err != nil {
		return fmt.Errorf("%w: drop collection: %w", storage.ErrUnavailable, err)
	}
	return r.EnsureSchema(ctx, index)
}

// Create inserts records and returns their ids in input order. Single-item
// calls are never partially applied; multi-item batches run in one
// transaction on this backend.
func (r *Repository[T]) Create(ctx context.Context, items []T) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}

	for _, item := range items {
		if item.VectorID() == "" {
			return nil, errors.New("pgvector: item id cannot be empty")
		}
		if len(item.VectorData()) != r.col.Dimension {
			return nil, fmt.Errorf("pgvector: vector dimension %d does not match collection dimension %d",
				len(item.VectorData()), r.col.Dimension)
		}
	}

	placeholders := make([]string, 0, 2+len(r.col.Fields))
	for i := range 2 + len(r.col.Fields) {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.table(), strings.Join(r.columns(), ", "), strings.Join(placeholders, ", "))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", storage.ErrUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	ids := make([]string, 0, len(items))
	for _, item := range items {
		args := make([]any, 0, 2+len(r.col.Fields))
		args = append(args, item.VectorID(), pgv.NewVector(item.VectorData()))
		fields := item.ScalarFields()
		for _, f := range r.col.Fields {
			args = append(args, fields[f.Name])
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, mapWriteError(err, item.VectorID())
		}
		ids = append(ids, item.VectorID())
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", storage.ErrUnavailable, err)
	}
	return ids, nil
}

func mapWriteError(err error, id string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: id %s", storage.ErrDuplicateKey, id)
	}
	return fmt.Errorf("%w: insert: %w", storage.ErrUnavailable, err)
}

// ReadByID returns the records whose ids are present; absent ids are omitted.
func (r *Repository[T]) ReadByID(ctx context.Context, ids []string) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ANY($1)",
		strings.Join(r.columns(), ", "), r.table())

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	return r.scan(rows)
}

// DeleteByID removes records by id; absent ids count as 0 deleted.
func (r *Repository[T]) DeleteByID(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", r.table())
	result, err := r.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("%w: delete: %w", storage.ErrUnavailable, err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: delete count: %w", storage.ErrUnavailable, err)
	}
	return int(count), nil
}

// Search returns at most k records ordered by increasing distance, ties
// broken by ascending id.
func (r *Repository[T]) Search(ctx context.Context, vector []float32, k int) ([]T, error) {
	if len(vector) != r.col.Dimension {
		return nil, fmt.Errorf("pgvector: query dimension %d does not match collection dimension %d",
			len(vector), r.col.Dimension)
	}
	if k < 1 {
		return nil, errors.New("pgvector: k must be positive")
	}

	op, err := distanceOp(storage.MetricCosine)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY embedding %s $1, id ASC LIMIT $2",
		strings.Join(r.columns(), ", "), r.table(), op)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", storage.ErrUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if r.efSearch > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", r.efSearch)); err != nil {
			return nil, fmt.Errorf("%w: set ef_search: %w", storage.ErrUnavailable, err)
		}
	}

	rows, err := tx.QueryContext(ctx, query, pgv.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", storage.ErrUnavailable, err)
	}

	items, err := r.scan(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", storage.ErrUnavailable, err)
	}
	return items, nil
}

// scan maps result rows onto records via fromRow.
func (r *Repository[T]) scan(rows *sql.Rows) ([]T, error) {
	var items []T
	for rows.Next() {
		var (
			id  string
			vec pgv.Vector
		)
		dests := make([]any, 0, 2+len(r.col.Fields))
		dests = append(dests, &id, &vec)

		holders := make([]any, len(r.col.Fields))
		for i, f := range r.col.Fields {
			switch f.Type {
			case storage.FieldTypeVarchar, storage.FieldTypeText:
				holders[i] = new(string)
			case storage.FieldTypeInt:
				holders[i] = new(int64)
			case storage.FieldTypeFloat:
				holders[i] = new(float64)
			default:
				return nil, fmt.Errorf("pgvector: unsupported field type %d for %q", f.Type, f.Name)
			}
			dests = append(dests, holders[i])
		}

		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", storage.ErrUnavailable, err)
		}

		fields := make(map[string]any, len(r.col.Fields))
		for i, f := range r.col.Fields {
			switch v := holders[i].(type) {
			case *string:
				fields[f.Name] = *v
			case *int64:
				fields[f.Name] = *v
			case *float64:
				fields[f.Name] = *v
			}
		}

		item, err := r.fromRow(id, vec.Slice(), fields)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %w", storage.ErrUnavailable, err)
	}
	return items, nil
}

// Close releases the database connection pool.
func (r *Repository[T]) Close() error {
	return r.db.Close()
}
