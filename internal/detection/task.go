package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/your-org/facewatch/internal/apperr"
	"github.com/your-org/facewatch/internal/models"
)

// ImageFetcher loads uploaded images referenced by queued tasks.
type ImageFetcher interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// Processor is the asynchronous entry point of the pipeline.
type Processor interface {
	Process(ctx context.Context, sub Submission) (*Result, error)
}

// TaskRunner executes queued detection tasks on a worker.
type TaskRunner struct {
	images    ImageFetcher
	processor Processor
}

func NewTaskRunner(images ImageFetcher, processor Processor) *TaskRunner {
	return &TaskRunner{images: images, processor: processor}
}

// Handle runs one task message. A returned error asks the queue to redeliver,
// which only happens for failures that may succeed on a later attempt.
func (r *TaskRunner) Handle(ctx context.Context, data []byte) error {
	var task models.DetectionTask
	if err := json.Unmarshal(data, &task); err != nil {
		slog.Error("drop malformed detection task", "error", err)
		return nil
	}

	log := slog.With("task_id", task.TaskID, "camera_id", task.Meta.CameraID)

	img, err := r.images.GetObject(ctx, task.ImageRef)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Error("drop detection task, image is gone", "image_ref", task.ImageRef)
			return nil
		}
		log.Warn("fetch task image", "image_ref", task.ImageRef, "error", err)
		return fmt.Errorf("fetch image %s: %w", task.ImageRef, err)
	}

	taskID := task.TaskID
	res, err := r.processor.Process(ctx, Submission{
		Data:        img,
		ContentType: task.ContentType,
		Meta:        task.Meta,
		ImageKey:    task.ImageRef,
		TaskID:      &taskID,
	})
	if err != nil {
		if retryable(err) {
			log.Warn("detection task failed, will retry", "error", err)
			return err
		}
		log.Info("detection task rejected", "code", apperr.Code(err), "error", err)
		return nil
	}

	log.Debug("detection task done", "detection_id", res.Event.ID, "matched", res.Event.Matched())
	return nil
}

func retryable(err error) bool {
	return apperr.StatusCode(err) >= http.StatusInternalServerError
}
