// Package mock provides test double implementations of the ai interfaces.
//
// This package contains mock implementations of ai.Encoder and
// ai.Fingerprinter for use in unit tests. The mocks allow tests to run
// without an inference server and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	enc := mock.NewMockEncoder()
//	vec, err := enc.Encode(ctx, imageBytes)
//
//	// Custom behavior injection
//	enc.EncodeFunc = func(ctx context.Context, image []byte) ([]float32, error) {
//	    return []float32{0.1, 0.2}, nil
//	}
//
//	// Check call counts
//	count := enc.CallCount()
//
// # Default Behavior
//
//   - MockEncoder: Returns deterministic vectors derived from the image bytes
//   - MockFingerprinter: Returns a deterministic hex key derived from the bytes
package mock
