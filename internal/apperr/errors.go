package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed application error. Two errors are considered equal by
// errors.Is when their codes match, so wrapped copies produced by WithError
// still compare against the package-level sentinels.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) WithError(err error) *Error {
	return &Error{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

func (e *Error) WithMessage(msg string) *Error {
	return &Error{
		Code:       e.Code,
		Message:    msg,
		StatusCode: e.StatusCode,
		Err:        e.Err,
	}
}

var (
	ErrInvalidImage = &Error{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image",
		StatusCode: http.StatusBadRequest,
	}

	ErrNoFaceDetected = &Error{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in image",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrDetectorUninitialized = &Error{
		Code:       "DETECTOR_UNINITIALIZED",
		Message:    "Face detector is not initialized",
		StatusCode: http.StatusServiceUnavailable,
	}

	ErrPersistence = &Error{
		Code:       "PERSISTENCE_ERROR",
		Message:    "Failed to persist record",
		StatusCode: http.StatusInternalServerError,
	}

	// ErrDelivery is logged by the dispatcher and never returned to API callers.
	ErrDelivery = &Error{
		Code:       "DELIVERY_ERROR",
		Message:    "Notification delivery failed",
		StatusCode: http.StatusBadGateway,
	}

	ErrMalformedEncoding = &Error{
		Code:       "MALFORMED_ENCODING",
		Message:    "Face encoding is empty or malformed",
		StatusCode: http.StatusInternalServerError,
	}

	ErrNotFound = &Error{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &Error{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrQueueUnavailable = &Error{
		Code:       "QUEUE_UNAVAILABLE",
		Message:    "Background queue is full or closed",
		StatusCode: http.StatusServiceUnavailable,
	}

	ErrDetectionTimeout = &Error{
		Code:       "DETECTION_TIMEOUT",
		Message:    "Face detection did not finish in time",
		StatusCode: http.StatusServiceUnavailable,
	}

	ErrInternal = &Error{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: http.StatusInternalServerError,
	}
)

// StatusCode returns the HTTP status carried by err, or 500 for untyped errors.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Code returns the error code carried by err, or INTERNAL_ERROR.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal.Code
}
