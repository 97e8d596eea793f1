package vision

import (
	"image"
	"strings"

	"golang.org/x/image/draw"

	"github.com/your-org/facewatch/internal/apperr"
)

const (
	// CanonicalSize is the side of the square face crop that is sampled.
	CanonicalSize = 128
	// SampleStride is the distance between sampled pixels on both axes.
	SampleStride = 8
	// EncodingLength is the number of symbols in an Encoding.
	EncodingLength = (CanonicalSize / SampleStride) * (CanonicalSize / SampleStride)

	brightThreshold = 128
)

// Encoding is a thresholded pixel grid of a face crop, one '0' or '1' per
// sampled pixel in row-major order.
type Encoding string

// Valid reports whether e is non-empty and contains only '0' and '1'.
func (e Encoding) Valid() bool {
	if e == "" {
		return false
	}
	for i := 0; i < len(e); i++ {
		if e[i] != '0' && e[i] != '1' {
			return false
		}
	}
	return true
}

// Encode crops box from img, scales it to CanonicalSize, converts it to
// grayscale and thresholds every SampleStride-th pixel.
// The same image and box always produce the same encoding.
func Encode(img image.Image, box image.Rectangle) (Encoding, error) {
	crop := box.Canon().Intersect(img.Bounds())
	if crop.Empty() {
		return "", apperr.ErrNoFaceDetected.WithMessage("face region is outside the image")
	}

	scaled := image.NewRGBA(image.Rect(0, 0, CanonicalSize, CanonicalSize))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), img, crop, draw.Src, nil)
	gray := ToGray(scaled)

	var sb strings.Builder
	sb.Grow(EncodingLength)
	for y := 0; y < CanonicalSize; y += SampleStride {
		for x := 0; x < CanonicalSize; x += SampleStride {
			if gray.GrayAt(x, y).Y > brightThreshold {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
	}
	return Encoding(sb.String()), nil
}

// EncodeLargest encodes the largest of faces. It fails with
// ErrNoFaceDetected when faces is empty.
func EncodeLargest(img image.Image, faces []Face) (Encoding, Face, error) {
	face, ok := Largest(faces)
	if !ok {
		return "", Face{}, apperr.ErrNoFaceDetected
	}
	enc, err := Encode(img, face.Box)
	if err != nil {
		return "", Face{}, err
	}
	return enc, face, nil
}
