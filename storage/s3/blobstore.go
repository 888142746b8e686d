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


package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sethvargo/go-retry"

	"github.com/poiesic/imago/storage"
)

const (
	defaultRetryBase = 250 * time.Millisecond
	defaultRetryMax  = 3
)

// Config holds connection settings for an S3-compatible object store.
type Config struct {
	// Endpoint overrides the AWS endpoint, e.g. "http://localhost:9000" for
	// MinIO. Empty uses the AWS default resolution.
	Endpoint string
	// Region defaults to "us-east-1".
	Region string
	// AccessKey and SecretKey are static credentials. Both empty falls back
	// to the ambient AWS credential chain.
	AccessKey string
	SecretKey string
	// UsePathStyle forces path-style addressing, required by MinIO.
	UsePathStyle bool
}

// BlobStore implements storage.BlobStore on S3-compatible object storage.
// Writes are retried with exponential backoff; the write path is idempotent
// because keys are content fingerprints.
type BlobStore struct {
	client *s3.Client
	logger *slog.Logger
}

var _ storage.BlobStore = (*BlobStore)(nil)

// New creates a blob store from the given config.
func New(ctx context.Context, cfg Config) (*BlobStore, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewWithClient(client), nil
}

// NewWithClient creates a blob store around an existing S3 client.
func NewWithClient(client *s3.Client) *BlobStore {
	return &BlobStore{
		client: client,
		logger: slog.Default().With("component", "s3-blobstore"),
	}
}

// EnsureBucket creates the bucket if absent. Idempotent.
func (b *BlobStore) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := b.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("%w: create bucket %s: %w", storage.ErrUnavailable, bucket, err)
	}
	b.logger.Info("bucket created", "bucket", bucket)
	return nil
}

// Put writes data under key, overwriting any existing blob. Transient
// failures are retried with exponential backoff.
func (b *BlobStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	backoff := retry.WithMaxRetries(defaultRetryMax, retry.NewExponential(defaultRetryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: put %s/%s: %w", storage.ErrUnavailable, bucket, key, err)
	}
	return nil
}

// Get reads the blob stored under key.
func (b *BlobStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("%w: get %s/%s: %w", storage.ErrUnavailable, bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s/%s: %w", storage.ErrUnavailable, bucket, key, err)
	}
	return data, nil
}

// Exists reports whether a blob is stored under key.
func (b *BlobStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: head %s/%s: %w", storage.ErrUnavailable, bucket, key, err)
	}
	return true, nil
}

// Delete removes the blob under key. Deleting an absent key is a no-op, as
// S3 itself treats it.
func (b *BlobStore) Delete(ctx context.Context, bucket, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s/%s: %w", storage.ErrUnavailable, bucket, key, err)
	}
	return nil
}
