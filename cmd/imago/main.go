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


package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/imago"
	"github.com/poiesic/imago/ai"
	"github.com/poiesic/imago/ingestion"
	"github.com/poiesic/imago/storage/s3"
)

func main() {
	app := &cli.App{
		Name:  "imago",
		Usage: "Image ingestion service with semantic vector indexing",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the ingestion HTTP API",
				Action: serveCommand,
				Flags: append(storeFlags(),
					&cli.StringFlag{
						Name:  "listen",
						Usage: "HTTP listen address",
						Value: ":8080",
					},
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Worker pool size for image processing (0 = auto)",
					},
					&cli.DurationFlag{
						Name:  "sweep-interval",
						Usage: "How often stalled tasks are swept",
						Value: time.Minute,
					},
					&cli.DurationFlag{
						Name:  "sweep-age",
						Usage: "Age after which a stalled task is failed as timed out",
						Value: 10 * time.Minute,
					},
				),
			},
			{
				Name:   "init",
				Usage:  "Create the vector schema and the blob bucket",
				Action: initCommand,
				Flags:  storeFlags(),
			},
			{
				Name:   "reset",
				Usage:  "Drop and recreate the vector collection (destructive)",
				Action: resetCommand,
				Flags:  storeFlags(),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "postgres-dsn",
			Usage:    "pgvector database connection string",
			Required: true,
			EnvVars:  []string{"IMAGO_POSTGRES_DSN"},
		},
		&cli.StringFlag{
			Name:  "schema",
			Usage: "Postgres schema holding the collection",
			Value: imago.DefaultSchema,
		},
		&cli.StringFlag{
			Name:  "collection",
			Usage: "Vector collection name",
			Value: imago.DefaultCollection,
		},
		&cli.StringFlag{
			Name:  "bucket",
			Usage: "Blob bucket name",
			Value: imago.DefaultBucket,
		},
		&cli.IntFlag{
			Name:  "ef-search",
			Usage: "HNSW query-time candidate list size",
			Value: imago.DefaultEfSearch,
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis address for the task store (empty = embedded store)",
			EnvVars: []string{"IMAGO_REDIS_ADDR"},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{"IMAGO_REDIS_PASSWORD"},
		},
		&cli.StringFlag{
			Name:  "task-path",
			Usage: "Directory for the embedded task store (empty = in-memory)",
		},
		&cli.DurationFlag{
			Name:  "task-ttl",
			Usage: "Task record lifetime",
			Value: 24 * time.Hour,
		},
		&cli.StringFlag{
			Name:    "s3-endpoint",
			Usage:   "S3-compatible endpoint, e.g. http://localhost:9000 for MinIO",
			EnvVars: []string{"IMAGO_S3_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:  "s3-region",
			Usage: "S3 region",
			Value: "us-east-1",
		},
		&cli.StringFlag{
			Name:    "s3-access-key",
			Usage:   "S3 access key",
			EnvVars: []string{"IMAGO_S3_ACCESS_KEY"},
		},
		&cli.StringFlag{
			Name:    "s3-secret-key",
			Usage:   "S3 secret key",
			EnvVars: []string{"IMAGO_S3_SECRET_KEY"},
		},
		&cli.BoolFlag{
			Name:  "s3-path-style",
			Usage: "Force path-style S3 addressing (required by MinIO)",
			Value: true,
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:7997/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "ViT-SO400M-16-SigLIP2-384",
		},
		&cli.IntFlag{
			Name:  "dimension",
			Usage: "Embedding vector dimension",
			Value: 1152,
		},
	}
}

func systemFromFlags(ctx context.Context, c *cli.Context) (*imago.System, error) {
	aiCfg := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithDimension(c.Int("dimension")),
	)
	if err := aiCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	return imago.NewSystem(ctx, imago.Config{
		PostgresDSN:   c.String("postgres-dsn"),
		Schema:        c.String("schema"),
		Collection:    c.String("collection"),
		Bucket:        c.String("bucket"),
		EfSearch:      c.Int("ef-search"),
		RedisAddr:     c.String("redis-addr"),
		RedisPassword: c.String("redis-password"),
		TaskPath:      c.String("task-path"),
		TaskTTL:       c.Duration("task-ttl"),
		Blob: s3.Config{
			Endpoint:     c.String("s3-endpoint"),
			Region:       c.String("s3-region"),
			AccessKey:    c.String("s3-access-key"),
			SecretKey:    c.String("s3-secret-key"),
			UsePathStyle: c.Bool("s3-path-style"),
		},
		AI: aiCfg,
	})
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	system, err := systemFromFlags(ctx, c)
	if err != nil {
		return err
	}
	defer system.Close()

	if err := system.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	var pipelineOpts []ingestion.Option
	if size := c.Int("pool-size"); size > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPoolSize(size))
	}
	pipeline, err := system.NewIngestionPipeline(pipelineOpts...)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	sweeper, err := system.NewSweeper(
		ingestion.WithSweepInterval(c.Duration("sweep-interval")),
		ingestion.WithSweepAge(c.Duration("sweep-age")),
	)
	if err != nil {
		return err
	}
	go sweeper.Run(ctx) //nolint:errcheck // stops with the server context

	server := &http.Server{
		Addr:    c.String("listen"),
		Handler: newRouter(pipeline),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func initCommand(c *cli.Context) error {
	ctx := context.Background()

	system, err := systemFromFlags(ctx, c)
	if err != nil {
		return err
	}
	defer system.Close()

	if err := system.Init(ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "storage initialized")
	return nil
}

func resetCommand(c *cli.Context) error {
	ctx := context.Background()

	system, err := systemFromFlags(ctx, c)
	if err != nil {
		return err
	}
	defer system.Close()

	if err := system.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "vector collection reset")
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
