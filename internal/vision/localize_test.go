package vision

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facewatch/internal/apperr"
	"github.com/your-org/facewatch/internal/config"
)

func testVisionConfig() config.VisionConfig {
	return config.VisionConfig{
		Primary:    config.PassConfig{ScaleFactor: 1.1, MinNeighbors: 5, MinSizeRatio: 0.1, MinConfidence: 0.5},
		Aggressive: config.PassConfig{ScaleFactor: 1.05, MinNeighbors: 3, MinSizeRatio: 0.05, MinConfidence: 0.3},
	}
}

func readyLocalizer(t *testing.T, b Backend) *Localizer {
	t.Helper()
	l := NewLocalizer(testVisionConfig())
	require.NoError(t, l.Initialize(func() (Backend, error) { return b, nil }))
	return l
}

func TestLocalizer_NotInitialized(t *testing.T) {
	l := NewLocalizer(testVisionConfig())

	assert.False(t, l.Ready())
	assert.Contains(t, l.Status(), "not initialized")

	_, err := l.Locate(context.Background(), image.NewGray(image.Rect(0, 0, 100, 100)))
	assert.ErrorIs(t, err, apperr.ErrDetectorUninitialized)
}

func TestLocalizer_InitializeFailure(t *testing.T) {
	l := NewLocalizer(testVisionConfig())
	err := l.Initialize(func() (Backend, error) { return nil, errors.New("cascade missing") })

	require.Error(t, err)
	assert.False(t, l.Ready())
	assert.Contains(t, l.Status(), "cascade missing")
}

func TestLocalizer_PrimaryPassHit(t *testing.T) {
	face := Face{Box: image.Rect(10, 10, 60, 60), Confidence: 1}
	b := &fakeBackend{results: [][]Face{{face}}}
	l := readyLocalizer(t, b)

	loc, err := l.Locate(context.Background(), image.NewGray(image.Rect(0, 0, 200, 100)))
	require.NoError(t, err)

	assert.Equal(t, PassPrimary, loc.Pass)
	assert.Equal(t, []Face{face}, loc.Faces)
	require.Len(t, b.calls, 1)
	assert.Equal(t, PassParams{ScaleFactor: 1.1, MinNeighbors: 5, MinSize: 10, MinConfidence: 0.5}, b.calls[0].params)
}

func TestLocalizer_AggressiveFallback(t *testing.T) {
	face := Face{Box: image.Rect(0, 0, 20, 20), Confidence: 0.4}
	b := &fakeBackend{results: [][]Face{nil, {face}}}
	l := readyLocalizer(t, b)

	loc, err := l.Locate(context.Background(), image.NewGray(image.Rect(0, 0, 200, 100)))
	require.NoError(t, err)

	assert.Equal(t, PassAggressive, loc.Pass)
	assert.Equal(t, []Face{face}, loc.Faces)
	require.Len(t, b.calls, 2)
	assert.Equal(t, PassParams{ScaleFactor: 1.05, MinNeighbors: 3, MinSize: 5, MinConfidence: 0.3}, b.calls[1].params)
}

func TestLocalizer_BackendErrorIsSoft(t *testing.T) {
	b := &fakeBackend{errs: []error{errors.New("primary broke"), errors.New("aggressive broke")}}
	l := readyLocalizer(t, b)

	loc, err := l.Locate(context.Background(), image.NewGray(image.Rect(0, 0, 100, 100)))
	require.NoError(t, err)
	assert.Empty(t, loc.Faces)
	assert.Empty(t, loc.Pass)
	assert.Len(t, b.calls, 2)
}

func TestLocalizer_Close(t *testing.T) {
	b := &fakeBackend{}
	l := readyLocalizer(t, b)

	require.NoError(t, l.Close())
	assert.True(t, b.closed)
	assert.False(t, l.Ready())
}

func TestLargest(t *testing.T) {
	tests := []struct {
		name  string
		faces []Face
		want  image.Rectangle
		ok    bool
	}{
		{name: "empty", faces: nil, ok: false},
		{
			name:  "single",
			faces: []Face{{Box: image.Rect(0, 0, 5, 5)}},
			want:  image.Rect(0, 0, 5, 5),
			ok:    true,
		},
		{
			name: "greatest area wins",
			faces: []Face{
				{Box: image.Rect(0, 0, 10, 10)},
				{Box: image.Rect(0, 0, 30, 20)},
				{Box: image.Rect(0, 0, 15, 15)},
			},
			want: image.Rect(0, 0, 30, 20),
			ok:   true,
		},
		{
			name: "tie keeps first",
			faces: []Face{
				{Box: image.Rect(0, 0, 10, 20)},
				{Box: image.Rect(50, 50, 70, 60)},
			},
			want: image.Rect(0, 0, 10, 20),
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Largest(tt.faces)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.Box)
		})
	}
}
