package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/apperr"
	"github.com/your-org/facewatch/internal/detection"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/pkg/dto"
)

// Detector runs the synchronous detection pipeline.
type Detector interface {
	Detect(ctx context.Context, sub detection.Submission) (*detection.Result, error)
}

// TaskQueue hands submissions to the worker processes.
type TaskQueue interface {
	PublishTask(ctx context.Context, task models.DetectionTask) error
}

type ImageStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
}

type DetectionReader interface {
	GetDetection(ctx context.Context, id uuid.UUID) (*models.DetectionEvent, error)
	RecentDetections(ctx context.Context, limit int) ([]models.DetectionEvent, error)
	DetectionsByCamera(ctx context.Context, cameraID string, limit int) ([]models.DetectionEvent, error)
	DetectionsByProfile(ctx context.Context, profileID uuid.UUID, limit int) ([]models.DetectionEvent, error)
}

type DetectionHandler struct {
	detector Detector
	queue    TaskQueue
	images   ImageStore
	events   DetectionReader
}

func NewDetectionHandler(detector Detector, queue TaskQueue, images ImageStore, events DetectionReader) *DetectionHandler {
	return &DetectionHandler{detector: detector, queue: queue, images: images, events: events}
}

// Detect runs the pipeline and returns the recorded outcome.
func (h *DetectionHandler) Detect(c *gin.Context) {
	img, meta, err := readDetectRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.detector.Detect(c.Request.Context(), detection.Submission{
		Data:        img.Data,
		ContentType: img.ContentType,
		Meta:        meta,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detection.ToResult(res))
}

// DetectAsync stores the image and queues it for a worker. The outcome is
// delivered on the camera's WebSocket topics.
func (h *DetectionHandler) DetectAsync(c *gin.Context) {
	if h.queue == nil || h.images == nil {
		respondError(c, apperr.ErrQueueUnavailable.WithMessage("asynchronous detection is not configured"))
		return
	}

	img, meta, err := readDetectRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(img.Data) == 0 {
		respondError(c, apperr.ErrInvalidImage.WithMessage("image is empty"))
		return
	}

	ctx := c.Request.Context()
	task := models.DetectionTask{
		TaskID:      uuid.New(),
		ContentType: img.ContentType,
		Meta:        meta,
		SubmittedAt: time.Now().UTC(),
	}
	task.ImageRef = fmt.Sprintf("uploads/%s/%s", detection.ObjectToken(meta.CameraID), task.TaskID)

	if err := h.images.PutObject(ctx, task.ImageRef, img.Data, img.ContentType); err != nil {
		respondError(c, apperr.ErrPersistence.WithError(err))
		return
	}
	if err := h.queue.PublishTask(ctx, task); err != nil {
		respondError(c, apperr.ErrQueueUnavailable.WithError(err))
		return
	}

	c.JSON(http.StatusAccepted, dto.AsyncDetectResponse{
		TaskID:   task.TaskID,
		CameraID: meta.CameraID,
		Status:   "queued",
	})
}

func (h *DetectionHandler) Recent(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}
	events, err := h.events.RecentDetections(c.Request.Context(), limit)
	if err != nil {
		respondError(c, apperr.ErrPersistence.WithError(err))
		return
	}
	c.JSON(http.StatusOK, toDetectionList(events))
}

func (h *DetectionHandler) ByCamera(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}
	events, err := h.events.DetectionsByCamera(c.Request.Context(), c.Param("cameraId"), limit)
	if err != nil {
		respondError(c, apperr.ErrPersistence.WithError(err))
		return
	}
	c.JSON(http.StatusOK, toDetectionList(events))
}

func (h *DetectionHandler) ByProfile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.ErrBadRequest.WithMessage("invalid profile id"))
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}
	events, err := h.events.DetectionsByProfile(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, apperr.ErrPersistence.WithError(err))
		return
	}
	c.JSON(http.StatusOK, toDetectionList(events))
}

func (h *DetectionHandler) Get(c *gin.Context) {
	ev, ok := h.loadEvent(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toDetectionResponse(*ev))
}

// Image returns the stored source image of a detection.
func (h *DetectionHandler) Image(c *gin.Context) {
	ev, ok := h.loadEvent(c)
	if !ok {
		return
	}
	if ev.ImageKey == "" || h.images == nil {
		respondError(c, apperr.ErrNotFound.WithMessage("image not stored for this detection"))
		return
	}

	data, err := h.images.GetObject(c.Request.Context(), ev.ImageKey)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			respondError(c, err)
			return
		}
		respondError(c, apperr.ErrPersistence.WithError(err))
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

func (h *DetectionHandler) loadEvent(c *gin.Context) (*models.DetectionEvent, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.ErrBadRequest.WithMessage("invalid detection id"))
		return nil, false
	}
	ev, err := h.events.GetDetection(c.Request.Context(), id)
	if err != nil {
		respondError(c, apperr.ErrPersistence.WithError(err))
		return nil, false
	}
	if ev == nil {
		respondError(c, apperr.ErrNotFound.WithMessage("detection not found"))
		return nil, false
	}
	return ev, true
}

func toDetectionResponse(ev models.DetectionEvent) dto.DetectionEventResponse {
	return dto.DetectionEventResponse{
		ID:               ev.ID,
		ImageKey:         ev.ImageKey,
		Latitude:         ev.Latitude,
		Longitude:        ev.Longitude,
		Location:         ev.Location,
		LocationAddress:  ev.LocationAddress,
		CameraID:         ev.CameraID,
		CameraType:       ev.CameraType,
		ProfileID:        ev.ProfileID,
		ProfileName:      ev.ProfileName,
		Confidence:       ev.Score,
		DetectionTime:    ev.DetectionTime.UTC().Format(timeLayout),
		NotificationSent: ev.NotificationSent,
		EmailSent:        ev.EmailSent,
		SMSSent:          ev.SMSSent,
	}
}

func toDetectionList(events []models.DetectionEvent) dto.DetectionListResponse {
	resp := make([]dto.DetectionEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, toDetectionResponse(ev))
	}
	return dto.DetectionListResponse{Detections: resp, Total: len(resp)}
}
