package ai

import "context"

// Encoder generates semantic embedding vectors from image bytes.
// Implementations must be thread-safe for concurrent use.
type Encoder interface {
	// Encode generates a fixed-length embedding vector for one image.
	// The vector length is constant for a given deployment and never
	// partially populated. Returns an error if the model call fails or the
	// bytes are not a supported image.
	Encode(ctx context.Context, image []byte) ([]float32, error)
}

// Fingerprinter derives a stable content key from image bytes.
// Implementations must be thread-safe for concurrent use.
type Fingerprinter interface {
	// Hash returns a deterministic, content-derived identifier: for any
	// two bit-identical inputs the result is equal. The identifier is used
	// as the vector record's primary key for deduplication.
	Hash(image []byte) (string, error)
}
