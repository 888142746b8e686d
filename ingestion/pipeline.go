package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/imago/ai"
	"github.com/poiesic/imago/core"
	"github.com/poiesic/imago/storage"
)

const defaultBucket = "index"

// Pipeline orchestrates the ingestion of images into the vector index and
// blob store, tracking each submission as an async task.
type Pipeline struct {
	tasks         storage.TaskStore
	repo          storage.VectorRepository[core.IndexItem]
	blobs         storage.BlobStore
	encoder       ai.Encoder
	fingerprinter ai.Fingerprinter
	pool          *ants.Pool
	bucket        string
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithBucket sets the blob bucket images are stored in. Default is "index".
func WithBucket(bucket string) Option {
	return func(p *Pipeline) error {
		if bucket == "" {
			return errors.New("bucket cannot be empty")
		}
		p.bucket = bucket
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	tasks storage.TaskStore,
	repo storage.VectorRepository[core.IndexItem],
	blobs storage.BlobStore,
	encoder ai.Encoder,
	fingerprinter ai.Fingerprinter,
	opts ...Option,
) (*Pipeline, error) {
	if tasks == nil {
		return nil, ErrTaskStoreRequired
	}
	if repo == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if blobs == nil {
		return nil, ErrBlobStoreRequired
	}
	if encoder == nil {
		return nil, ErrEncoderRequired
	}
	if fingerprinter == nil {
		return nil, ErrFingerprinterRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		tasks:         tasks,
		repo:          repo,
		blobs:         blobs,
		encoder:       encoder,
		fingerprinter: fingerprinter,
		pool:          pool,
		bucket:        defaultBucket,
		logger:        slog.Default().With("component", "ingestion"),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	return p, nil
}

// Submit registers a new task in the QUEUED state for the given image.
// It performs no processing and never touches the index, the blob store or
// the encoder; callers own scheduling of Process with the same arguments.
func (p *Pipeline) Submit(ctx context.Context, image []byte, fileName string) (*core.Task, error) {
	if len(image) == 0 {
		return nil, core.ErrEmptyImage
	}

	task, err := p.tasks.Create(ctx, core.NewTaskID())
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	return task, nil
}

// Dispatch submits the image and schedules its processing on the worker
// pool. It returns as soon as the task is registered; the outcome is
// observable via GetStatus.
func (p *Pipeline) Dispatch(ctx context.Context, image []byte, fileName string) (*core.Task, error) {
	task, err := p.Submit(ctx, image, fileName)
	if err != nil {
		return nil, err
	}

	taskID := task.ID
	err = p.pool.Submit(func() {
		// The submitter's context may be gone by the time the worker
		// runs; processing is owned by the pipeline.
		if err := p.Process(context.Background(), taskID, image, fileName); err != nil {
			p.logger.Error("error processing image", "task_id", taskID, "err", err)
		}
	})
	if err != nil {
		p.fail(ctx, taskID, fmt.Sprintf("queue: %s", err))
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	return task, nil
}

// Process executes the ingestion steps for a registered task: claim the
// task, fingerprint, encode, index, store the blob, and record the outcome.
// Step failures are recorded on the task and are not returned; the error
// return covers infrastructure faults only.
//
// Process is safe to call concurrently for the same task: the claim
// transition admits exactly one worker.
func (p *Pipeline) Process(ctx context.Context, taskID string, image []byte, fileName string) error {
	_, err := p.tasks.Transition(ctx, taskID, core.TaskProcessing, storage.TransitionPayload{})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) || errors.Is(err, storage.ErrNotFound) {
			p.logger.Info("task already claimed or gone", "task_id", taskID)
			return nil
		}
		return fmt.Errorf("claim task: %w", err)
	}

	fingerprint, err := p.fingerprinter.Hash(image)
	if err != nil {
		p.fail(ctx, taskID, fmt.Sprintf("fingerprint: %s", err))
		return nil
	}

	vector, err := p.encoder.Encode(ctx, image)
	if err != nil {
		p.fail(ctx, taskID, fmt.Sprintf("encode: %s", err))
		return nil
	}

	item := core.IndexItem{
		ID:       fingerprint,
		Vector:   vector,
		FileName: fileName,
	}
	if err := core.ValidateIndexItem(&item, 0); err != nil {
		p.fail(ctx, taskID, fmt.Sprintf("validate: %s", err))
		return nil
	}

	// Index before blob: a crash between the two writes leaves an index
	// entry whose blob a later duplicate submission restores, since the
	// blob write is an idempotent overwrite under the same fingerprint.
	_, err = p.repo.Create(ctx, []core.IndexItem{item})
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		p.fail(ctx, taskID, fmt.Sprintf("index: %s", err))
		return nil
	}
	duplicate := errors.Is(err, storage.ErrDuplicateKey)

	contentType := http.DetectContentType(image)
	if err := p.blobs.Put(ctx, p.bucket, fingerprint, image, contentType); err != nil {
		p.fail(ctx, taskID, fmt.Sprintf("blob: %s", err))
		return nil
	}

	_, err = p.tasks.Transition(ctx, taskID, core.TaskCompleted, storage.TransitionPayload{
		Result: &core.TaskResult{ID: fingerprint, FileName: fileName},
	})
	if err != nil {
		// Likely swept as a timeout while the work was finishing; the
		// index and blob writes stand.
		p.logger.Warn("could not record completion", "task_id", taskID, "err", err)
		return nil
	}

	p.logger.Info("image ingested",
		"task_id", taskID, "fingerprint", fingerprint, "duplicate", duplicate)
	return nil
}

// GetStatus returns the current task state.
func (p *Pipeline) GetStatus(ctx context.Context, taskID string) (*core.Task, error) {
	return p.tasks.Get(ctx, taskID)
}

// fail records a terminal failure on the task. Losing the transition race
// is logged, not propagated.
func (p *Pipeline) fail(ctx context.Context, taskID, cause string) {
	_, err := p.tasks.Transition(ctx, taskID, core.TaskFailed, storage.TransitionPayload{Error: cause})
	if err != nil {
		p.logger.Error("could not record failure", "task_id", taskID, "cause", cause, "err", err)
		return
	}
	p.logger.Warn("ingestion failed", "task_id", taskID, "cause", cause)
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
