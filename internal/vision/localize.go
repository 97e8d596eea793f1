package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/facewatch/internal/apperr"
	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/observability"
)

// PassParams are the detector parameters for a single localizer pass.
// MinSize is in pixels and derived from the pass ratio and the image size.
type PassParams struct {
	ScaleFactor   float64
	MinNeighbors  int
	MinSize       int
	MinConfidence float32
}

// Face is one candidate region reported by a backend.
type Face struct {
	Box        image.Rectangle
	Confidence float32
}

// Backend finds face regions in an equalized grayscale image.
// Implementations must be safe for concurrent use.
type Backend interface {
	Detect(img *image.Gray, p PassParams) ([]Face, error)
	Close() error
}

const (
	PassPrimary    = "primary"
	PassAggressive = "aggressive"
)

// Location is the localizer output for one image.
type Location struct {
	Faces []Face
	// Pass names the pass that produced Faces; empty when nothing was found.
	Pass string
}

// Localizer runs the two-pass face search over a shared Backend.
type Localizer struct {
	primary    config.PassConfig
	aggressive config.PassConfig

	mu      sync.RWMutex
	backend Backend
	status  string
}

func NewLocalizer(cfg config.VisionConfig) *Localizer {
	return &Localizer{
		primary:    cfg.Primary,
		aggressive: cfg.Aggressive,
		status:     "Face detector not initialized",
	}
}

// Initialize loads the backend once. Subsequent calls are no-ops while a
// backend is installed.
func (l *Localizer) Initialize(load func() (Backend, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.backend != nil {
		return nil
	}

	b, err := load()
	if err != nil {
		l.status = "Face detector failed to initialize: " + err.Error()
		return fmt.Errorf("load detector backend: %w", err)
	}
	l.backend = b
	l.status = "Face detector is ready"
	return nil
}

func (l *Localizer) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.backend != nil
}

// Status is a human-readable description of the detector state.
func (l *Localizer) Status() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Locate runs the primary pass and, only when it finds nothing, the
// aggressive pass. Backend failures are logged and count as no candidates.
func (l *Localizer) Locate(ctx context.Context, img *image.Gray) (Location, error) {
	l.mu.RLock()
	backend := l.backend
	l.mu.RUnlock()
	if backend == nil {
		return Location{}, apperr.ErrDetectorUninitialized
	}

	start := time.Now()
	defer func() {
		observability.StageDuration.WithLabelValues("localize").Observe(time.Since(start).Seconds())
	}()

	faces := l.run(backend, img, PassPrimary, l.primary)
	if len(faces) > 0 {
		return Location{Faces: faces, Pass: PassPrimary}, nil
	}

	if err := ctx.Err(); err != nil {
		return Location{}, err
	}

	faces = l.run(backend, img, PassAggressive, l.aggressive)
	if len(faces) > 0 {
		return Location{Faces: faces, Pass: PassAggressive}, nil
	}
	return Location{}, nil
}

func (l *Localizer) run(backend Backend, img *image.Gray, pass string, cfg config.PassConfig) []Face {
	p := paramsFor(cfg, img.Bounds())
	faces, err := backend.Detect(img, p)
	if err != nil {
		slog.Warn("face detection pass failed", "pass", pass, "error", err)
		return nil
	}
	observability.FacesLocated.WithLabelValues(pass).Add(float64(len(faces)))
	return faces
}

func paramsFor(cfg config.PassConfig, bounds image.Rectangle) PassParams {
	side := bounds.Dx()
	if bounds.Dy() < side {
		side = bounds.Dy()
	}
	return PassParams{
		ScaleFactor:   cfg.ScaleFactor,
		MinNeighbors:  cfg.MinNeighbors,
		MinSize:       int(float64(side) * cfg.MinSizeRatio),
		MinConfidence: float32(cfg.MinConfidence),
	}
}

// Close releases the backend.
func (l *Localizer) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.backend == nil {
		return nil
	}
	err := l.backend.Close()
	l.backend = nil
	l.status = "Face detector closed"
	return err
}

// Largest returns the face with the greatest box area. On equal areas the
// earliest face wins.
func Largest(faces []Face) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}
	best := faces[0]
	bestArea := area(best.Box)
	for _, f := range faces[1:] {
		if a := area(f.Box); a > bestArea {
			best, bestArea = f, a
		}
	}
	return best, true
}

func area(r image.Rectangle) int {
	r = r.Canon()
	return r.Dx() * r.Dy()
}
