// Package haar is an OpenCV Haar-cascade localizer backend.
package haar

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/your-org/facewatch/internal/vision"
)

// Cascade wraps a loaded CascadeClassifier. The classifier is not safe for
// concurrent use, so Detect holds a mutex around it.
type Cascade struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	closed     bool
}

var _ vision.Backend = (*Cascade)(nil)

// Load reads a cascade definition such as haarcascade_frontalface_default.xml.
func Load(path string) (*Cascade, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("load cascade %s", path)
	}
	return &Cascade{classifier: classifier}, nil
}

// Detect runs DetectMultiScale on img. Cascades do not score their hits, so
// every face carries confidence 1.
func (c *Cascade) Detect(img *image.Gray, p vision.PassParams) ([]vision.Face, error) {
	mat, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	minSize := image.Pt(p.MinSize, p.MinSize)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("cascade closed")
	}
	rects := c.classifier.DetectMultiScaleWithParams(mat, p.ScaleFactor, p.MinNeighbors, 0, minSize, image.Point{})
	c.mu.Unlock()

	origin := img.Bounds().Min
	faces := make([]vision.Face, 0, len(rects))
	for _, r := range rects {
		faces = append(faces, vision.Face{Box: r.Add(origin), Confidence: 1})
	}
	return faces, nil
}

func (c *Cascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.classifier.Close()
}
