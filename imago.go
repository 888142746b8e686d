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


package imago

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/poiesic/imago/ai"
	"github.com/poiesic/imago/ai/clip"
	"github.com/poiesic/imago/ai/phash"
	"github.com/poiesic/imago/core"
	"github.com/poiesic/imago/ingestion"
	"github.com/poiesic/imago/storage"
	"github.com/poiesic/imago/storage/badger"
	"github.com/poiesic/imago/storage/pgvector"
	"github.com/poiesic/imago/storage/redis"
	"github.com/poiesic/imago/storage/s3"
)

// Defaults for the storage layout.
const (
	DefaultSchema     = "ingest"
	DefaultCollection = "vector"
	DefaultBucket     = "index"
	DefaultEfSearch   = 256
)

// Config holds connection settings for all three stores and the encoder.
type Config struct {
	// PostgresDSN is the pgvector database connection string.
	PostgresDSN string

	// Schema, Collection and Bucket override the storage layout.
	Schema     string
	Collection string
	Bucket     string

	// EfSearch tunes ANN query recall. Zero keeps the server default.
	EfSearch int

	// RedisAddr selects the shared Redis task store, e.g. "localhost:6379".
	// Empty falls back to an embedded BadgerDB task store at TaskPath.
	RedisAddr     string
	RedisPassword string

	// TaskPath is the BadgerDB directory for the embedded task store.
	// Empty means in-memory, which does not survive restarts.
	TaskPath string

	// TaskTTL bounds task record lifetime. Zero means 24 hours.
	TaskTTL time.Duration

	// Blob is the S3-compatible object store configuration.
	Blob s3.Config

	// AI configures the embedding encoder. Nil uses defaults.
	AI *ai.Config
}

// System wires the stores, the encoder and the fingerprinter into one
// handle. It is the composition root for embedding and for cmd/imago.
type System struct {
	db            *sqlx.DB
	repo          storage.VectorRepository[core.IndexItem]
	blobs         storage.BlobStore
	tasks         storage.TaskStore
	backend       *badger.Backend
	encoder       ai.Encoder
	fingerprinter ai.Fingerprinter
	bucket        string
	index         storage.IndexSpec
	logger        *slog.Logger
}

// indexItemFromRow binds core.IndexItem to the collection's columns.
func indexItemFromRow(id string, vector []float32, fields map[string]any) (core.IndexItem, error) {
	name, _ := fields["file_name"].(string)
	return core.IndexItem{ID: id, Vector: vector, FileName: name}, nil
}

// CollectionSpec returns the collection layout for the given embedding
// dimension.
func CollectionSpec(name string, dimension int) storage.CollectionSpec {
	return storage.CollectionSpec{
		Name:      name,
		Dimension: dimension,
		Fields: []storage.FieldSpec{
			{Name: "file_name", Type: storage.FieldTypeVarchar, MaxLen: 255},
		},
	}
}

// NewSystem connects all components from the given config.
func NewSystem(ctx context.Context, cfg Config) (*System, error) {
	if cfg.PostgresDSN == "" {
		return nil, errors.New("postgres DSN required")
	}

	aiCfg := cfg.AI
	if aiCfg == nil {
		aiCfg = ai.DefaultConfig()
	}

	encoder, err := clip.NewEncoder(aiCfg)
	if err != nil {
		return nil, err
	}
	fingerprinter := phash.NewFingerprinter()

	schema := cfg.Schema
	if schema == "" {
		schema = DefaultSchema
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}
	efSearch := cfg.EfSearch
	if efSearch == 0 {
		efSearch = DefaultEfSearch
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	repo, err := pgvector.New(db, CollectionSpec(collection, aiCfg.Dimension), indexItemFromRow,
		pgvector.WithSchema(schema), pgvector.WithEfSearch(efSearch))
	if err != nil {
		db.Close()
		return nil, err
	}

	blobs, err := s3.New(ctx, cfg.Blob)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &System{
		db:            db,
		repo:          repo,
		blobs:         blobs,
		encoder:       encoder,
		fingerprinter: fingerprinter,
		bucket:        bucket,
		index:         storage.IndexSpec{Metric: storage.MetricCosine},
		logger:        slog.Default().With("component", "imago"),
	}

	if err := s.openTaskStore(cfg); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *System) openTaskStore(cfg Config) error {
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		var opts []redis.Option
		if cfg.TaskTTL > 0 {
			opts = append(opts, redis.WithTaskTTL(cfg.TaskTTL))
		}
		tasks, err := redis.NewTaskStore(client, opts...)
		if err != nil {
			client.Close()
			return err
		}
		s.tasks = tasks
		return nil
	}

	backend, err := badger.OpenBackend(cfg.TaskPath, cfg.TaskPath == "")
	if err != nil {
		return err
	}
	var opts []badger.TaskStoreOption
	if cfg.TaskTTL > 0 {
		opts = append(opts, badger.WithTaskTTL(cfg.TaskTTL))
	}
	tasks, err := badger.NewTaskStore(backend, opts...)
	if err != nil {
		backend.Close()
		return err
	}
	s.backend = backend
	s.tasks = tasks
	return nil
}

// Init performs idempotent setup of the vector schema and the blob bucket.
// Safe to call on every start.
func (s *System) Init(ctx context.Context) error {
	if err := s.repo.EnsureSchema(ctx, s.index); err != nil {
		return err
	}
	return s.blobs.EnsureBucket(ctx, s.bucket)
}

// Reset drops and recreates the vector collection. Blobs and tasks are left
// in place; orphaned blobs are harmless under content addressing.
func (s *System) Reset(ctx context.Context) error {
	return s.repo.Reset(ctx, s.index)
}

// NewIngestionPipeline creates a pipeline over the system's stores.
func (s *System) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	opts = append([]ingestion.Option{ingestion.WithBucket(s.bucket)}, opts...)
	return ingestion.NewPipeline(s.tasks, s.repo, s.blobs, s.encoder, s.fingerprinter, opts...)
}

// NewSweeper creates a task sweeper over the system's task store.
func (s *System) NewSweeper(opts ...ingestion.SweeperOption) (*ingestion.Sweeper, error) {
	return ingestion.NewSweeper(s.tasks, opts...)
}

// VectorRepository returns the vector index handle.
func (s *System) VectorRepository() storage.VectorRepository[core.IndexItem] {
	return s.repo
}

// BlobStore returns the blob store handle.
func (s *System) BlobStore() storage.BlobStore {
	return s.blobs
}

// TaskStore returns the task store handle.
func (s *System) TaskStore() storage.TaskStore {
	return s.tasks
}

func (s *System) Close() error {
	var firstErr error

	if err := s.tasks.Close(); err != nil {
		s.logger.Error("error closing task store", "err", err)
		firstErr = err
	}
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			s.logger.Error("error closing task backend", "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if err := s.repo.Close(); err != nil {
		s.logger.Error("error closing vector repository", "err", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
