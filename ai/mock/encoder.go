package mock

import (
	"context"
	"hash/fnv"
)

// MockEncoder is a test double for ai.Encoder.
// It allows custom behavior injection via function fields.
type MockEncoder struct {
	// EncodeFunc is called by Encode if set.
	// If nil, uses default deterministic behavior.
	EncodeFunc func(ctx context.Context, image []byte) ([]float32, error)

	// Dimension is the length of default vectors. Zero means 8.
	Dimension int

	callCount int
}

// NewMockEncoder creates a mock encoder with default deterministic behavior.
// Returns the concrete type to allow test assertions.
func NewMockEncoder() *MockEncoder {
	return &MockEncoder{}
}

// Encode generates a deterministic vector derived from the image bytes.
func (m *MockEncoder) Encode(ctx context.Context, image []byte) ([]float32, error) {
	m.callCount++

	if m.EncodeFunc != nil {
		return m.EncodeFunc(ctx, image)
	}

	dim := m.Dimension
	if dim == 0 {
		dim = 8
	}
	return deterministicVector(image, dim), nil
}

// CallCount returns the number of times Encode was called.
func (m *MockEncoder) CallCount() int {
	return m.callCount
}

// Reset clears the call count.
func (m *MockEncoder) Reset() {
	m.callCount = 0
}

// deterministicVector derives a stable pseudo-embedding from content bytes,
// so identical inputs map to identical vectors in tests.
func deterministicVector(content []byte, dim int) []float32 {
	h := fnv.New64a()
	h.Write(content)
	seed := h.Sum64()

	vector := make([]float32, dim)
	for i := range vector {
		seed = seed*6364136223846793005 + 1442695040888963407
		vector[i] = float32(seed%1000) / 1000.0
	}
	return vector
}
