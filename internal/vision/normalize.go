package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"mime"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/your-org/facewatch/internal/apperr"
	"github.com/your-org/facewatch/internal/observability"
)

// DefaultMinImageSize is the smallest accepted width and height in pixels.
const DefaultMinImageSize = 50

var supportedTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/bmp":  "bmp",
	"image/webp": "webp",
}

// ObjectStore persists raw image bytes under a logical key.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// Image is a decoded submission ready for localization.
type Image struct {
	Original    image.Image
	Gray        *image.Gray // grayscale, histogram-equalized
	Format      string
	ContentType string
	Data        []byte
	// Key is the object-store key the raw bytes were written to, empty if not stored.
	Key string
}

// Preprocessor builds the grayscale, histogram-equalized bitmap handed to
// the localizer.
type Preprocessor func(img image.Image) (*image.Gray, error)

type Normalizer struct {
	store      ObjectStore
	minSize    int
	preprocess Preprocessor
}

// NewNormalizer creates a Normalizer. store may be nil.
func NewNormalizer(store ObjectStore, minSize int) *Normalizer {
	if minSize <= 0 {
		minSize = DefaultMinImageSize
	}
	return &Normalizer{store: store, minSize: minSize}
}

// UsePreprocessor replaces the built-in grayscale conversion and
// equalization, typically with the OpenCV one.
func (n *Normalizer) UsePreprocessor(p Preprocessor) *Normalizer {
	n.preprocess = p
	return n
}

func (n *Normalizer) equalize(img image.Image) *image.Gray {
	if n.preprocess != nil {
		gray, err := n.preprocess(img)
		if err == nil {
			return gray
		}
		slog.Warn("preprocess image, using built-in equalization", "error", err)
	}
	return Equalize(ToGray(img))
}

// Normalize decodes and validates data, then builds the equalized grayscale
// variant used for detection. When key is non-empty and a store is configured
// the raw bytes are persisted under key; a storage failure is logged and the
// returned Image carries an empty Key.
func (n *Normalizer) Normalize(ctx context.Context, data []byte, contentType, key string) (*Image, error) {
	start := time.Now()
	defer func() {
		observability.StageDuration.WithLabelValues("normalize").Observe(time.Since(start).Seconds())
	}()

	if len(data) == 0 {
		return nil, apperr.ErrInvalidImage.WithMessage("image is empty")
	}

	declared, err := checkContentType(contentType)
	if err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.ErrInvalidImage.WithError(fmt.Errorf("decode image: %w", err))
	}
	if declared != "" && declared != format {
		slog.Debug("declared content type differs from decoded format", "declared", contentType, "format", format)
	}

	b := img.Bounds()
	if b.Dx() < n.minSize || b.Dy() < n.minSize {
		return nil, apperr.ErrInvalidImage.WithMessage(
			fmt.Sprintf("image is %dx%d, minimum is %dx%d", b.Dx(), b.Dy(), n.minSize, n.minSize))
	}

	out := &Image{
		Original:    img,
		Gray:        n.equalize(img),
		Format:      format,
		ContentType: "image/" + format,
		Data:        data,
	}

	if key != "" && n.store != nil {
		if err := n.store.PutObject(ctx, key, data, out.ContentType); err != nil {
			slog.Warn("store source image", "key", key, "error", err)
		} else {
			out.Key = key
		}
	}

	return out, nil
}

// checkContentType returns the decoder format name implied by contentType.
// An empty or generic binary type means the format is sniffed from the bytes.
func checkContentType(contentType string) (string, error) {
	if contentType == "" {
		return "", nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", apperr.ErrInvalidImage.WithMessage("malformed content type: " + contentType)
	}
	if mediaType == "application/octet-stream" {
		return "", nil
	}
	format, ok := supportedTypes[strings.ToLower(mediaType)]
	if !ok {
		return "", apperr.ErrInvalidImage.WithMessage("unsupported content type: " + mediaType)
	}
	return format, nil
}

// DecodeImagePayload decodes a base64 image, with or without a
// "data:<type>;base64," prefix. The returned content type is taken from the
// prefix and is empty when there is none.
func DecodeImagePayload(payload string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, "", apperr.ErrInvalidImage.WithMessage("image is empty")
	}

	var contentType string
	if strings.HasPrefix(payload, "data:") {
		header, body, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, "", apperr.ErrInvalidImage.WithMessage("malformed data URI")
		}
		meta := strings.TrimPrefix(header, "data:")
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", apperr.ErrInvalidImage.WithMessage("data URI is not base64 encoded")
		}
		contentType = strings.TrimSuffix(meta, ";base64")
		payload = body
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", apperr.ErrInvalidImage.WithError(fmt.Errorf("decode base64: %w", err))
		}
	}
	return data, contentType, nil
}

// ToGray converts img to an 8-bit grayscale image anchored at the origin.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Equalize returns a histogram-equalized copy of src.
func Equalize(src *image.Gray) *image.Gray {
	b := src.Bounds()
	total := b.Dx() * b.Dy()
	dst := image.NewGray(b)
	if total == 0 {
		return dst
	}

	var hist [256]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := src.Pix[src.PixOffset(b.Min.X, y):src.PixOffset(b.Max.X, y)]
		for _, v := range row {
			hist[v]++
		}
	}

	first := 0
	for hist[first] == 0 {
		first++
	}

	var lut [256]uint8
	if hist[first] == total {
		// single-valued image
		for i := range lut {
			lut[i] = uint8(first)
		}
	} else {
		scale := 255.0 / float64(total-hist[first])
		sum := 0
		for i := first + 1; i < 256; i++ {
			sum += hist[i]
			v := int(float64(sum)*scale + 0.5)
			if v > 255 {
				v = 255
			}
			lut[i] = uint8(v)
		}
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		srcRow := src.Pix[src.PixOffset(b.Min.X, y):src.PixOffset(b.Max.X, y)]
		dstRow := dst.Pix[dst.PixOffset(b.Min.X, y):dst.PixOffset(b.Max.X, y)]
		for i, v := range srcRow {
			dstRow[i] = lut[v]
		}
	}
	return dst
}
