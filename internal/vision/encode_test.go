package vision

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facewatch/internal/apperr"
)

func uniformImage(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestEncode_Deterministic(t *testing.T) {
	img := patternImage(300, 200)
	box := image.Rect(40, 30, 220, 190)

	first, err := Encode(img, box)
	require.NoError(t, err)
	second, err := Encode(img, box)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, string(first), EncodingLength)
	assert.Equal(t, 256, EncodingLength)
	assert.True(t, first.Valid())
	assert.Contains(t, string(first), "0")
	assert.Contains(t, string(first), "1")
}

func TestEncode_Threshold(t *testing.T) {
	white, err := Encode(uniformImage(100, 100, 255), image.Rect(0, 0, 100, 100))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("1", EncodingLength), string(white))

	black, err := Encode(uniformImage(100, 100, 0), image.Rect(0, 0, 100, 100))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("0", EncodingLength), string(black))

	// exactly 128 is not bright
	mid, err := Encode(uniformImage(100, 100, 128), image.Rect(0, 0, 100, 100))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("0", EncodingLength), string(mid))
}

func TestEncode_BoxClampedToImage(t *testing.T) {
	img := patternImage(100, 100)

	clamped, err := Encode(img, image.Rect(50, 50, 400, 400))
	require.NoError(t, err)
	inside, err := Encode(img, image.Rect(50, 50, 100, 100))
	require.NoError(t, err)
	assert.Equal(t, inside, clamped)

	_, err = Encode(img, image.Rect(200, 200, 300, 300))
	assert.ErrorIs(t, err, apperr.ErrNoFaceDetected)
}

func TestEncodeLargest(t *testing.T) {
	img := patternImage(200, 200)

	_, _, err := EncodeLargest(img, nil)
	assert.ErrorIs(t, err, apperr.ErrNoFaceDetected)

	faces := []Face{
		{Box: image.Rect(0, 0, 40, 40), Confidence: 0.9},
		{Box: image.Rect(60, 60, 180, 180), Confidence: 0.7},
	}
	enc, face, err := EncodeLargest(img, faces)
	require.NoError(t, err)
	assert.Equal(t, faces[1], face)

	direct, err := Encode(img, faces[1].Box)
	require.NoError(t, err)
	assert.Equal(t, direct, enc)
}

func TestEncoding_Valid(t *testing.T) {
	assert.True(t, Encoding("0101").Valid())
	assert.False(t, Encoding("").Valid())
	assert.False(t, Encoding("01a1").Valid())
}
