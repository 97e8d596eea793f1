package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facewatch/pkg/dto"
)

// Pinger is a dependency checked by the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a context-free check such as the NATS connection status.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// DetectorStatus reports the state of the face detector.
type DetectorStatus interface {
	Ready() bool
	Status() string
}

type SystemHandler struct {
	checks   map[string]Pinger
	detector DetectorStatus
}

// NewSystemHandler builds the health endpoints. Nil checks are skipped.
func NewSystemHandler(checks map[string]Pinger, detector DetectorStatus) *SystemHandler {
	live := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			live[name] = p
		}
	}
	return &SystemHandler{checks: live, detector: detector}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	if h.detector != nil {
		if h.detector.Ready() {
			checks["detector"] = "ok"
		} else {
			checks["detector"] = h.detector.Status()
			healthy = false
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}

// Detector reports whether the face detector is initialized. Responds 503
// until it is.
func (h *SystemHandler) Detector(c *gin.Context) {
	if h.detector == nil || !h.detector.Ready() {
		msg := "Face detector not initialized"
		if h.detector != nil && h.detector.Status() != "" {
			msg = h.detector.Status()
		}
		c.JSON(http.StatusServiceUnavailable, dto.DetectorHealthResponse{
			Initialized: false,
			Status:      "unhealthy",
			Message:     msg,
		})
		return
	}
	c.JSON(http.StatusOK, dto.DetectorHealthResponse{
		Initialized: true,
		Status:      "healthy",
		Message:     h.detector.Status(),
	})
}
