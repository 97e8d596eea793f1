package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facewatch/internal/api/handlers"
	"github.com/your-org/facewatch/internal/api/ws"
	"github.com/your-org/facewatch/internal/auth"
)

type RouterConfig struct {
	APIKey         string
	MaxUploadBytes int64

	Detector   handlers.Detector
	Enroller   handlers.Enroller
	Profiles   handlers.ProfileStore
	Detections handlers.DetectionReader
	// Images and Queue may be nil; asynchronous detection then answers 503.
	Images handlers.ImageStore
	Queue  handlers.TaskQueue

	DetectorStatus handlers.DetectorStatus
	Checks         map[string]handlers.Pinger
	Hub            *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())
	r.Use(BodyLimitMiddleware(cfg.MaxUploadBytes))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks, cfg.DetectorStatus)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/health/detector", systemH.Detector)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket, one topic per camera
	v1.GET("/ws/detections/:cameraId", cfg.Hub.HandleDetections)
	v1.GET("/ws/errors/:cameraId", cfg.Hub.HandleErrors)

	// Detections
	detH := handlers.NewDetectionHandler(cfg.Detector, cfg.Queue, cfg.Images, cfg.Detections)
	v1.POST("/detections", detH.Detect)
	v1.POST("/detections/async", detH.DetectAsync)
	v1.GET("/detections/recent", detH.Recent)
	v1.GET("/detections/camera/:cameraId", detH.ByCamera)
	v1.GET("/detections/profile/:id", detH.ByProfile)
	v1.GET("/detections/:id", detH.Get)
	v1.GET("/detections/:id/image", detH.Image)

	// Profiles & faces
	profH := handlers.NewProfileHandler(cfg.Enroller, cfg.Profiles)
	v1.POST("/profiles", profH.Enroll)
	v1.GET("/profiles", profH.List)
	v1.GET("/profiles/:id", profH.Get)
	v1.POST("/profiles/:id/faces", profH.AddFace)
	v1.DELETE("/profiles/:id", profH.Deactivate)

	return r
}
