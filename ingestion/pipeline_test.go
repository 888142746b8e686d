package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/imago/ai/mock"
	"github.com/poiesic/imago/core"
	"github.com/poiesic/imago/storage"
	"github.com/poiesic/imago/storage/badger"
)

// pngImage returns bytes that sniff as image/png.
func pngImage(fill byte) []byte {
	image := make([]byte, 64)
	copy(image, []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a})
	for i := 8; i < len(image); i++ {
		image[i] = fill
	}
	return image
}

// eventLog records the order of store writes across fakes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeRepo is an in-memory storage.VectorRepository.
type fakeRepo struct {
	mu        sync.Mutex
	items     map[string]core.IndexItem
	createErr error
	log       *eventLog
}

var _ storage.VectorRepository[core.IndexItem] = (*fakeRepo)(nil)

func newFakeRepo(log *eventLog) *fakeRepo {
	return &fakeRepo{items: make(map[string]core.IndexItem), log: log}
}

func (r *fakeRepo) EnsureSchema(ctx context.Context, index storage.IndexSpec) error { return nil }

func (r *fakeRepo) Reset(ctx context.Context, index storage.IndexSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = make(map[string]core.IndexItem)
	return nil
}

func (r *fakeRepo) Create(ctx context.Context, items []core.IndexItem) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := r.items[item.ID]; ok {
			return nil, fmt.Errorf("%w: id %s", storage.ErrDuplicateKey, item.ID)
		}
		r.items[item.ID] = item
		ids = append(ids, item.ID)
	}
	if r.log != nil {
		r.log.add("index")
	}
	return ids, nil
}

func (r *fakeRepo) ReadByID(ctx context.Context, ids []string) ([]core.IndexItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found []core.IndexItem
	for _, id := range ids {
		if item, ok := r.items[id]; ok {
			found = append(found, item)
		}
	}
	return found, nil
}

func (r *fakeRepo) DeleteByID(ctx context.Context, ids []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, id := range ids {
		if _, ok := r.items[id]; ok {
			delete(r.items, id)
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) Search(ctx context.Context, vector []float32, k int) ([]core.IndexItem, error) {
	return nil, nil
}

func (r *fakeRepo) Close() error { return nil }

func (r *fakeRepo) get(id string) (core.IndexItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	return item, ok
}

// fakeBlobs is an in-memory storage.BlobStore.
type fakeBlobs struct {
	mu           sync.Mutex
	blobs        map[string][]byte
	contentTypes map[string]string
	putErr       error
	log          *eventLog
}

var _ storage.BlobStore = (*fakeBlobs)(nil)

func newFakeBlobs(log *eventLog) *fakeBlobs {
	return &fakeBlobs{
		blobs:        make(map[string][]byte),
		contentTypes: make(map[string]string),
		log:          log,
	}
}

func blobKey(bucket, key string) string { return bucket + "/" + key }

func (b *fakeBlobs) EnsureBucket(ctx context.Context, bucket string) error { return nil }

func (b *fakeBlobs) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.blobs[blobKey(bucket, key)] = append([]byte(nil), data...)
	b.contentTypes[blobKey(bucket, key)] = contentType
	if b.log != nil {
		b.log.add("blob")
	}
	return nil
}

func (b *fakeBlobs) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[blobKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, bucket, key)
	}
	return data, nil
}

func (b *fakeBlobs) Exists(ctx context.Context, bucket, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blobs[blobKey(bucket, key)]
	return ok, nil
}

func (b *fakeBlobs) Delete(ctx context.Context, bucket, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, blobKey(bucket, key))
	return nil
}

type testPipeline struct {
	pipeline      *Pipeline
	tasks         *badger.TaskStore
	repo          *fakeRepo
	blobs         *fakeBlobs
	encoder       *mock.MockEncoder
	fingerprinter *mock.MockFingerprinter
	log           *eventLog
}

func newTestPipeline(t *testing.T, opts ...Option) *testPipeline {
	t.Helper()

	tasks, backend, err := badger.NewMemoryTaskStore()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	log := &eventLog{}
	tp := &testPipeline{
		tasks:         tasks,
		repo:          newFakeRepo(log),
		blobs:         newFakeBlobs(log),
		encoder:       mock.NewMockEncoder(),
		fingerprinter: mock.NewMockFingerprinter(),
		log:           log,
	}

	pipeline, err := NewPipeline(tasks, tp.repo, tp.blobs, tp.encoder, tp.fingerprinter, opts...)
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	tp.pipeline = pipeline
	return tp
}

func TestNewPipelineValidation(t *testing.T) {
	tasks, backend, err := badger.NewMemoryTaskStore()
	require.NoError(t, err)
	defer backend.Close()

	repo := newFakeRepo(nil)
	blobs := newFakeBlobs(nil)
	encoder := mock.NewMockEncoder()
	fingerprinter := mock.NewMockFingerprinter()

	tests := []struct {
		name    string
		build   func() (*Pipeline, error)
		wantErr error
	}{
		{
			name: "nil task store",
			build: func() (*Pipeline, error) {
				return NewPipeline(nil, repo, blobs, encoder, fingerprinter)
			},
			wantErr: ErrTaskStoreRequired,
		},
		{
			name: "nil repository",
			build: func() (*Pipeline, error) {
				return NewPipeline(tasks, nil, blobs, encoder, fingerprinter)
			},
			wantErr: ErrVectorRepositoryRequired,
		},
		{
			name: "nil blob store",
			build: func() (*Pipeline, error) {
				return NewPipeline(tasks, repo, nil, encoder, fingerprinter)
			},
			wantErr: ErrBlobStoreRequired,
		},
		{
			name: "nil encoder",
			build: func() (*Pipeline, error) {
				return NewPipeline(tasks, repo, blobs, nil, fingerprinter)
			},
			wantErr: ErrEncoderRequired,
		},
		{
			name: "nil fingerprinter",
			build: func() (*Pipeline, error) {
				return NewPipeline(tasks, repo, blobs, encoder, nil)
			},
			wantErr: ErrFingerprinterRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSubmitEmptyImage(t *testing.T) {
	tp := newTestPipeline(t)

	_, err := tp.pipeline.Submit(context.Background(), nil, "a.png")
	assert.ErrorIs(t, err, core.ErrEmptyImage)
}

func TestSubmitCreatesQueuedTask(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	task, err := tp.pipeline.Submit(ctx, pngImage(1), "a.png")
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, core.TaskQueued, task.Status)

	got, err := tp.pipeline.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskQueued, got.Status)
}

func TestProcessHappyPath(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()
	image := pngImage(1)

	task, err := tp.pipeline.Submit(ctx, image, "a.png")
	require.NoError(t, err)

	err = tp.pipeline.Process(ctx, task.ID, image, "cat.png")
	require.NoError(t, err)

	got, err := tp.pipeline.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "cat.png", got.Result.FileName)

	fingerprint := got.Result.ID
	item, ok := tp.repo.get(fingerprint)
	require.True(t, ok)
	assert.Equal(t, "cat.png", item.FileName)
	assert.NotEmpty(t, item.Vector)

	data, err := tp.blobs.Get(ctx, "index", fingerprint)
	require.NoError(t, err)
	assert.Equal(t, image, data)
	assert.Equal(t, "image/png", tp.blobs.contentTypes[blobKey("index", fingerprint)])
}

func TestProcessWritesIndexBeforeBlob(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()
	image := pngImage(2)

	task, err := tp.pipeline.Submit(ctx, image, "a.png")
	require.NoError(t, err)
	require.NoError(t, tp.pipeline.Process(ctx, task.ID, image, "a.png"))

	assert.Equal(t, []string{"index", "blob"}, tp.log.list())
}

func TestProcessFingerprintFailure(t *testing.T) {
	tp := newTestPipeline(t)
	tp.fingerprinter.HashFunc = func(image []byte) (string, error) {
		return "", errors.New("not an image")
	}
	ctx := context.Background()
	image := pngImage(3)

	task, err := tp.pipeline.Submit(ctx, image, "a.png")
	require.NoError(t, err)
	require.NoError(t, tp.pipeline.Process(ctx, task.ID, image, "a.png"))

	got, err := tp.pipeline.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, got.Status)
	assert.Contains(t, got.Error, "fingerprint:")
	assert.Empty(t, tp.log.list())
}

func TestProcessEncoderFailure(t *testing.T) {
	tp := newTestPipeline(t)
	tp.encoder.EncodeFunc = func(ctx context.Context, image []byte) ([]float32, error) {
		return nil, errors.New("embedding host down")
	}
	ctx := context.Background()
	image := pngImage(4)

	task, err := tp.pipeline.Submit(ctx, image, "a.png")
	require.NoError(t, err)
	require.NoError(t, tp.pipeline.Process(ctx, task.ID, image, "a.png"))

	got, err := tp.pipeline.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, got.Status)
	assert.Contains(t, got.Error, "encode:")
	assert.Empty(t, tp.log.list())
}

func TestProcessIndexFailure(t *testing.T) {
	tp := newTestPipeline(t)
	tp.repo.createErr = fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
	ctx := context.Background()
	image := pngImage(5)

	task, err := tp.pipeline.Submit(ctx, image, "a.png")
	require.NoError(t, err)
	require.NoError(t, tp.pipeline.Process(ctx, task.ID, image, "a.png"))

	got, err := tp.pipeline.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, got.Status)
	assert.Contains(t, got.Error, "index:")

	// No blob write may happen after an index failure.
	assert.Empty(t, tp.log.list())
}

func TestProcessBlobFailure(t *testing.T) {
	tp := newTestPipeline(t)
	tp.blobs.putErr = fmt.Errorf("%w: bucket gone", storage.ErrUnavailable)
	ctx := context.Background()
	image := pngImage(6)

	task, err := tp.pipeline.Submit(ctx, image, "a.png")
	require.NoError(t, err)
	require.NoError(t, tp.pipeline.Process(ctx, task.ID, image, "a.png"))

	got, err := tp.pipeline.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, got.Status)
	assert.Contains(t, got.Error, "blob:")

	// The index entry stands; a duplicate submission later restores the blob.
	assert.Equal(t, []string{"index"}, tp.log.list())
}

func TestProcessDuplicateContentCompletes(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()
	image := pngImage(7)

	first, err := tp.pipeline.Submit(ctx, image, "a.png")
	require.NoError(t, err)
	require.NoError(t, tp.pipeline.Process(ctx, first.ID, image, "a.png"))

	second, err := tp.pipeline.Submit(ctx, image, "a.png")
	require.NoError(t, err)
	require.NoError(t, tp.pipeline.Process(ctx, second.ID, image, "copy-of-a.png"))

	got, err := tp.pipeline.GetStatus(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, got.Status)
	require.NotNil(t, got.Result)

	// The original index entry is untouched; the blob is overwritten in place.
	item, ok := tp.repo.get(got.Result.ID)
	require.True(t, ok)
	assert.Equal(t, "a.png", item.FileName)

	data, err := tp.blobs.Get(ctx, "index", got.Result.ID)
	require.NoError(t, err)
	assert.Equal(t, image, data)
}

func TestProcessConcurrentAtMostOnce(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()
	image := pngImage(8)

	task, err := tp.pipeline.Submit(ctx, image, "a.png")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, tp.pipeline.Process(ctx, task.ID, image, "a.png"))
		}()
	}
	wg.Wait()

	got, err := tp.pipeline.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, got.Status)
	assert.Equal(t, 1, tp.encoder.CallCount())
	assert.Equal(t, []string{"index", "blob"}, tp.log.list())
}

func TestProcessUnknownTaskIsNoOp(t *testing.T) {
	tp := newTestPipeline(t)

	err := tp.pipeline.Process(context.Background(), "missing", pngImage(9), "a.png")
	require.NoError(t, err)
	assert.Empty(t, tp.log.list())
}

func TestProcessCustomBucket(t *testing.T) {
	tp := newTestPipeline(t, WithBucket("archive"))
	ctx := context.Background()
	image := pngImage(10)

	task, err := tp.pipeline.Submit(ctx, image, "a.png")
	require.NoError(t, err)
	require.NoError(t, tp.pipeline.Process(ctx, task.ID, image, "a.png"))

	got, err := tp.pipeline.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Result)

	exists, err := tp.blobs.Exists(ctx, "archive", got.Result.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDispatchProcessesAsynchronously(t *testing.T) {
	tp := newTestPipeline(t, WithPoolSize(2))
	ctx := context.Background()
	image := pngImage(11)

	task, err := tp.pipeline.Dispatch(ctx, image, "a.png")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := tp.pipeline.GetStatus(ctx, task.ID)
		return err == nil && got.Status == core.TaskCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestGetStatusUnknownTask(t *testing.T) {
	tp := newTestPipeline(t)

	_, err := tp.pipeline.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
