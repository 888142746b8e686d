package mock

import (
	"fmt"
	"hash/fnv"
)

// MockFingerprinter is a test double for ai.Fingerprinter.
// It allows custom behavior injection via function fields.
type MockFingerprinter struct {
	// HashFunc is called by Hash if set.
	// If nil, uses default deterministic behavior.
	HashFunc func(image []byte) (string, error)

	callCount int
}

// NewMockFingerprinter creates a mock fingerprinter with default
// deterministic behavior. Returns the concrete type to allow test assertions.
func NewMockFingerprinter() *MockFingerprinter {
	return &MockFingerprinter{}
}

// Hash returns a deterministic hex key derived from the image bytes.
func (m *MockFingerprinter) Hash(image []byte) (string, error) {
	m.callCount++

	if m.HashFunc != nil {
		return m.HashFunc(image)
	}

	h := fnv.New64a()
	h.Write(image)
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// CallCount returns the number of times Hash was called.
func (m *MockFingerprinter) CallCount() int {
	return m.callCount
}

// Reset clears the call count.
func (m *MockFingerprinter) Reset() {
	m.callCount = 0
}
