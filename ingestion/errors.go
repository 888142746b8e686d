package ingestion

import "errors"

var (
	// ErrTaskStoreRequired is returned when a task store is not provided.
	ErrTaskStoreRequired = errors.New("task store required")

	// ErrVectorRepositoryRequired is returned when a vector repository is not provided.
	ErrVectorRepositoryRequired = errors.New("vector repository required")

	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrEncoderRequired is returned when an encoder is not provided.
	ErrEncoderRequired = errors.New("encoder required")

	// ErrFingerprinterRequired is returned when a fingerprinter is not provided.
	ErrFingerprinterRequired = errors.New("fingerprinter required")
)
