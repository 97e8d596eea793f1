package haar

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualize_StretchesContrast(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(100 + x/2) // narrow band 100..131
			src.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	gray, err := Equalize(src)
	require.NoError(t, err)
	assert.Equal(t, src.Bounds().Size(), gray.Bounds().Size())

	lo, hi := uint8(255), uint8(0)
	for _, v := range gray.Pix {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	assert.Less(t, lo, uint8(20))
	assert.Equal(t, uint8(255), hi)
}
