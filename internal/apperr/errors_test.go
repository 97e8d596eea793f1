package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	cause := errors.New("decode failed")
	err := ErrInvalidImage.WithError(cause)

	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNoFaceDetected)

	wrapped := fmt.Errorf("normalize: %w", err)
	assert.ErrorIs(t, wrapped, ErrInvalidImage)
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "Invalid image", ErrInvalidImage.Error())
	assert.Equal(t, "Invalid image: boom", ErrInvalidImage.WithError(errors.New("boom")).Error())
	assert.Equal(t, "too small", ErrInvalidImage.WithMessage("too small").Error())
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid image", ErrInvalidImage, http.StatusBadRequest},
		{"no face", fmt.Errorf("x: %w", ErrNoFaceDetected), http.StatusUnprocessableEntity},
		{"uninitialized", ErrDetectorUninitialized, http.StatusServiceUnavailable},
		{"persistence", ErrPersistence.WithError(errors.New("tx")), http.StatusInternalServerError},
		{"untyped", errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestCode(t *testing.T) {
	assert.Equal(t, "NOT_FOUND", Code(ErrNotFound))
	assert.Equal(t, "INTERNAL_ERROR", Code(errors.New("x")))
}
