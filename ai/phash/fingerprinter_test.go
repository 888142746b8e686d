package phash

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodePNG renders a 64x64 test image where set decides each pixel.
func encodePNG(t *testing.T, set func(x, y int) bool) []byte {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if set(x, y) {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHash_Deterministic(t *testing.T) {
	data := encodePNG(t, func(x, y int) bool { return x > y })

	f := NewFingerprinter()
	h1, err := f.Hash(data)
	require.NoError(t, err)
	h2, err := f.Hash(data)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)
}

func TestHash_EqualForIdenticalBytes(t *testing.T) {
	a := encodePNG(t, func(x, y int) bool { return (x/8+y/8)%2 == 0 })
	b := make([]byte, len(a))
	copy(b, a)

	f := NewFingerprinter()
	ha, err := f.Hash(a)
	require.NoError(t, err)
	hb, err := f.Hash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestHash_DiffersForDifferentContent(t *testing.T) {
	gradient := encodePNG(t, func(x, y int) bool { return x > y })
	checkers := encodePNG(t, func(x, y int) bool { return (x/8+y/8)%2 == 0 })

	f := NewFingerprinter()
	h1, err := f.Hash(gradient)
	require.NoError(t, err)
	h2, err := f.Hash(checkers)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestHash_InvalidImage(t *testing.T) {
	f := NewFingerprinter()

	_, err := f.Hash([]byte("not an image"))
	assert.Error(t, err)

	_, err = f.Hash(nil)
	assert.Error(t, err)
}
