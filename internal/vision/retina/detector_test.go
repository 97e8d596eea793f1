package retina

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNMS(t *testing.T) {
	cands := []candidate{
		{box: [4]float32{0, 0, 10, 10}, score: 0.6},
		{box: [4]float32{1, 1, 11, 11}, score: 0.9},
		{box: [4]float32{50, 50, 60, 60}, score: 0.7},
	}

	kept := nms(cands, 0.4)
	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].score)
	assert.Equal(t, float32(0.7), kept[1].score)
}

func TestIoU(t *testing.T) {
	assert.InDelta(t, 1.0, iou([4]float32{0, 0, 10, 10}, [4]float32{0, 0, 10, 10}), 1e-6)
	assert.Zero(t, iou([4]float32{0, 0, 10, 10}, [4]float32{20, 20, 30, 30}))
	assert.InDelta(t, 25.0/175.0, iou([4]float32{0, 0, 10, 10}, [4]float32{5, 5, 15, 15}), 1e-6)
}

func TestToCHW_ReplicatesGrayPlane(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	data := toCHW(img)
	plane := inputSize * inputSize
	require.Len(t, data, 3*plane)
	assert.Equal(t, data[0], data[plane])
	assert.Equal(t, data[0], data[2*plane])
	assert.InDelta(t, (255-127.5)/128.0, data[0], 0.01)
}
