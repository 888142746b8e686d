// Package phash provides an ai.Fingerprinter computing a 64-bit perceptual
// hash of the image, rendered as a 16-character hex string. The hash is
// deterministic for identical bytes, which makes it usable as the
// content-addressed key shared by the vector index and the blob store.
package phash

import (
	"bytes"
	"fmt"
	"image"

	// Register decoders for the image formats the pipeline accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	"github.com/poiesic/imago/ai"
)

// Fingerprinter implements ai.Fingerprinter using a DCT perceptual hash.
type Fingerprinter struct{}

var _ ai.Fingerprinter = (*Fingerprinter)(nil)

// NewFingerprinter creates a perceptual-hash fingerprinter.
//
// Returns ai.Fingerprinter interface to enforce abstraction.
func NewFingerprinter() ai.Fingerprinter {
	return &Fingerprinter{}
}

// Hash decodes the image and returns its perceptual hash as a hex string.
func (f *Fingerprinter) Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("fingerprint: empty image")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("fingerprint: decode image: %w", err)
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("fingerprint: perception hash: %w", err)
	}

	return fmt.Sprintf("%016x", hash.GetHash()), nil
}
