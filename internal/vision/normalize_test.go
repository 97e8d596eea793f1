package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facewatch/internal/apperr"
)

func TestNormalizer_Normalize(t *testing.T) {
	data := encodePNG(t, patternImage(120, 90))

	tests := []struct {
		name        string
		data        []byte
		contentType string
		wantErr     error
	}{
		{name: "png sniffed", data: data},
		{name: "png declared", data: data, contentType: "image/png"},
		{name: "declared with params", data: data, contentType: "image/png; charset=binary"},
		{name: "octet stream", data: data, contentType: "application/octet-stream"},
		{name: "unsupported type", data: data, contentType: "image/tiff", wantErr: apperr.ErrInvalidImage},
		{name: "garbage bytes", data: []byte("not an image"), wantErr: apperr.ErrInvalidImage},
		{name: "empty", data: nil, wantErr: apperr.ErrInvalidImage},
		{name: "too small", data: encodePNG(t, patternImage(10, 10)), wantErr: apperr.ErrInvalidImage},
		{name: "too narrow", data: encodePNG(t, patternImage(49, 200)), wantErr: apperr.ErrInvalidImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNormalizer(nil, 0)
			img, err := n.Normalize(context.Background(), tt.data, tt.contentType, "")

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, img)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "png", img.Format)
			assert.Equal(t, "image/png", img.ContentType)
			assert.Equal(t, image.Rect(0, 0, 120, 90), img.Gray.Bounds())
			assert.Equal(t, image.Rect(0, 0, 120, 90), img.Original.Bounds())
			assert.Empty(t, img.Key)
		})
	}
}

func TestNormalizer_MinimumSizeAccepted(t *testing.T) {
	n := NewNormalizer(nil, DefaultMinImageSize)
	_, err := n.Normalize(context.Background(), encodePNG(t, patternImage(50, 50)), "", "")
	assert.NoError(t, err)
}

func TestNormalizer_StoresSourceImage(t *testing.T) {
	store := &fakeStore{}
	n := NewNormalizer(store, 0)

	img, err := n.Normalize(context.Background(), encodePNG(t, patternImage(64, 64)), "image/png", "detections/cam-1/a.png")
	require.NoError(t, err)

	assert.Equal(t, "detections/cam-1/a.png", img.Key)
	assert.Equal(t, []string{"detections/cam-1/a.png"}, store.keys)
}

func TestNormalizer_StoreFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{err: errors.New("bucket unavailable")}
	n := NewNormalizer(store, 0)

	img, err := n.Normalize(context.Background(), encodePNG(t, patternImage(64, 64)), "", "detections/x.png")
	require.NoError(t, err)
	assert.Empty(t, img.Key)
}

func TestDecodeImagePayload(t *testing.T) {
	raw := encodePNG(t, patternImage(60, 60))
	b64 := base64.StdEncoding.EncodeToString(raw)

	t.Run("plain base64", func(t *testing.T) {
		data, ct, err := DecodeImagePayload(b64)
		require.NoError(t, err)
		assert.Equal(t, raw, data)
		assert.Empty(t, ct)
	})

	t.Run("data uri", func(t *testing.T) {
		data, ct, err := DecodeImagePayload("data:image/png;base64," + b64)
		require.NoError(t, err)
		assert.Equal(t, raw, data)
		assert.Equal(t, "image/png", ct)
	})

	t.Run("unpadded", func(t *testing.T) {
		data, _, err := DecodeImagePayload(base64.RawStdEncoding.EncodeToString(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, data)
	})

	t.Run("invalid", func(t *testing.T) {
		_, _, err := DecodeImagePayload("%%%not-base64%%%")
		assert.ErrorIs(t, err, apperr.ErrInvalidImage)
	})

	t.Run("data uri without comma", func(t *testing.T) {
		_, _, err := DecodeImagePayload("data:image/png;base64")
		assert.ErrorIs(t, err, apperr.ErrInvalidImage)
	})

	t.Run("empty", func(t *testing.T) {
		_, _, err := DecodeImagePayload("  ")
		assert.ErrorIs(t, err, apperr.ErrInvalidImage)
	})
}

func TestEqualize_StretchesRange(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 2))
	for x := 0; x < 4; x++ {
		src.SetGray(x, 0, color.Gray{Y: 10})
		src.SetGray(x, 1, color.Gray{Y: 200})
	}

	dst := Equalize(src)
	assert.Equal(t, uint8(0), dst.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), dst.GrayAt(0, 1).Y)
	assert.Equal(t, uint8(10), src.GrayAt(0, 0).Y, "source must not be modified")
}

func TestEqualize_UniformImage(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 3))
	for i := range src.Pix {
		src.Pix[i] = 77
	}
	dst := Equalize(src)
	for _, v := range dst.Pix {
		assert.Equal(t, uint8(77), v)
	}
}

func TestNormalizer_UsesPreprocessor(t *testing.T) {
	marker := image.NewGray(image.Rect(0, 0, 64, 64))
	var calls int
	n := NewNormalizer(nil, 0).UsePreprocessor(func(img image.Image) (*image.Gray, error) {
		calls++
		assert.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())
		return marker, nil
	})

	img, err := n.Normalize(context.Background(), encodePNG(t, patternImage(64, 64)), "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Same(t, marker, img.Gray)
}

func TestNormalizer_PreprocessorFailureFallsBack(t *testing.T) {
	src := patternImage(64, 64)
	n := NewNormalizer(nil, 0).UsePreprocessor(func(image.Image) (*image.Gray, error) {
		return nil, errors.New("opencv unavailable")
	})

	img, err := n.Normalize(context.Background(), encodePNG(t, src), "", "")
	require.NoError(t, err)
	assert.Equal(t, Equalize(ToGray(img.Original)).Pix, img.Gray.Pix)
}
