package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/your-org/facewatch/internal/apperr"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/notify"
	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/tasks"
	"github.com/your-org/facewatch/internal/vision"
	"github.com/your-org/facewatch/pkg/dto"
)

const publishTimeout = 5 * time.Second

// Repository is the storage the pipeline reads encodings from and records
// events into.
type Repository interface {
	ActiveEncodings(ctx context.Context) ([]models.FaceEncoding, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	CreateDetection(ctx context.Context, ev *models.DetectionEvent) error
}

// Publisher delivers realtime events scoped by camera id.
type Publisher interface {
	PublishResult(ctx context.Context, cameraID string, r dto.DetectionResult) error
	PublishError(ctx context.Context, cameraID string, e dto.DetectionError) error
}

// Notifier fans out notifications for a recorded, matched event.
type Notifier interface {
	Dispatch(ctx context.Context, ev models.DetectionEvent, p models.Profile) Outcome
}

// Submitter runs fire-and-forget work. *tasks.Pool satisfies it.
type Submitter interface {
	Submit(name string, fn tasks.Func) error
}

// Submission is one image plus its camera context.
type Submission struct {
	Data        []byte
	ContentType string
	Meta        models.SubmissionMeta
	// ImageKey is set when the raw bytes are already in the object store.
	ImageKey string
	TaskID   *uuid.UUID
}

// Result is the recorded outcome of a submission.
type Result struct {
	Event     models.DetectionEvent
	Profile   *models.Profile
	Match     vision.Match
	FaceCount int
}

type Options struct {
	Normalizer    *vision.Normalizer
	Localizer     *vision.Localizer
	Matcher       *vision.Matcher
	Store         Repository
	Notifier      Notifier
	Publisher     Publisher
	Background    Submitter
	// Objects removes source images written for submissions that fail
	// before they are recorded. Optional.
	Objects       ObjectRemover
	MaxConcurrent int64
	DetectTimeout time.Duration
}

// Pipeline takes a submission from raw bytes to a recorded detection event
// and hands matched events to the notifier and the publisher.
type Pipeline struct {
	normalizer    *vision.Normalizer
	localizer     *vision.Localizer
	matcher       *vision.Matcher
	store         Repository
	notifier      Notifier
	publisher     Publisher
	background    Submitter
	objects       ObjectRemover
	sem           *semaphore.Weighted
	detectTimeout time.Duration
}

func NewPipeline(opts Options) *Pipeline {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 6
	}
	if opts.DetectTimeout <= 0 {
		opts.DetectTimeout = 10 * time.Second
	}
	return &Pipeline{
		normalizer:    opts.Normalizer,
		localizer:     opts.Localizer,
		matcher:       opts.Matcher,
		store:         opts.Store,
		notifier:      opts.Notifier,
		publisher:     opts.Publisher,
		background:    opts.Background,
		objects:       opts.Objects,
		sem:           semaphore.NewWeighted(opts.MaxConcurrent),
		detectTimeout: opts.DetectTimeout,
	}
}

// Ready reports whether the face detector has been initialized.
func (p *Pipeline) Ready() bool {
	return p.localizer.Ready()
}

// Detect runs a submission synchronously. Errors before the event is
// recorded are returned to the caller and nothing is stored.
func (p *Pipeline) Detect(ctx context.Context, sub Submission) (*Result, error) {
	res, err := p.detect(ctx, sub)
	observability.DetectionsTotal.WithLabelValues(outcome(res, err)).Inc()
	return res, err
}

// Process runs a queued submission. A failure is also published on the
// camera's error topic.
func (p *Pipeline) Process(ctx context.Context, sub Submission) (*Result, error) {
	res, err := p.Detect(ctx, sub)
	if err != nil {
		p.publishError(sub, err)
	}
	return res, err
}

func (p *Pipeline) detect(ctx context.Context, sub Submission) (*Result, error) {
	if !p.localizer.Ready() {
		return nil, apperr.ErrDetectorUninitialized.WithMessage(p.localizer.Status())
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for detection slot: %w", err)
	}
	defer p.sem.Release(1)

	eventID := uuid.New()
	stageCtx, cancel := context.WithTimeout(ctx, p.detectTimeout)
	defer cancel()

	storeKey := ""
	if sub.ImageKey == "" {
		storeKey = fmt.Sprintf("detections/%s/%s", ObjectToken(sub.Meta.CameraID), eventID)
	}

	img, err := p.normalizer.Normalize(stageCtx, sub.Data, sub.ContentType, storeKey)
	if err != nil {
		return nil, err
	}
	if sub.ImageKey != "" {
		img.Key = sub.ImageKey
	}

	recorded := false
	if storeKey != "" && img.Key == storeKey {
		// the image was written for this submission only
		defer func() {
			if !recorded {
				p.discardImage(ctx, storeKey)
			}
		}()
	}

	if err := stageCtx.Err(); err != nil {
		return nil, stageError(err)
	}

	loc, err := p.localizer.Locate(stageCtx, img.Gray)
	if err != nil {
		return nil, stageError(err)
	}
	// backends cannot be interrupted mid-pass
	if err := stageCtx.Err(); err != nil {
		return nil, stageError(err)
	}

	encStart := time.Now()
	query, _, err := vision.EncodeLargest(img.Original, loc.Faces)
	observability.StageDuration.WithLabelValues("encode").Observe(time.Since(encStart).Seconds())
	if err != nil {
		return nil, err
	}
	if err := stageCtx.Err(); err != nil {
		return nil, stageError(err)
	}

	match, profile, err := p.match(stageCtx, query)
	if err != nil {
		return nil, stageError(err)
	}

	ev := models.DetectionEvent{
		ID:              eventID,
		ImageKey:        img.Key,
		Latitude:        sub.Meta.Latitude,
		Longitude:       sub.Meta.Longitude,
		Location:        sub.Meta.Location,
		LocationAddress: notify.LocationAddress(sub.Meta.Latitude, sub.Meta.Longitude),
		CameraID:        sub.Meta.CameraID,
		CameraType:      sub.Meta.CameraType,
		Score:           match.Score,
	}
	if profile != nil {
		ev.ProfileID = &profile.ID
		ev.ProfileName = profile.FullName()
	}

	recStart := time.Now()
	err = p.store.CreateDetection(ctx, &ev)
	observability.StageDuration.WithLabelValues("record").Observe(time.Since(recStart).Seconds())
	if err != nil {
		return nil, apperr.ErrPersistence.WithError(err)
	}
	recorded = true

	res := &Result{Event: ev, Profile: profile, Match: match, FaceCount: len(loc.Faces)}
	slog.Info("detection recorded",
		"detection_id", ev.ID,
		"camera_id", ev.CameraID,
		"matched", ev.Matched(),
		"score", ev.Score,
		"faces", res.FaceCount,
		"pass", loc.Pass,
	)

	p.afterRecord(res, sub.TaskID)
	return res, nil
}

// match scores query against a snapshot of the active encodings and loads
// the matched profile.
func (p *Pipeline) match(ctx context.Context, query vision.Encoding) (vision.Match, *models.Profile, error) {
	start := time.Now()
	defer func() {
		observability.StageDuration.WithLabelValues("match").Observe(time.Since(start).Seconds())
	}()

	encs, err := p.store.ActiveEncodings(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return vision.Match{}, nil, err
		}
		return vision.Match{}, nil, apperr.ErrPersistence.WithError(err)
	}

	candidates := make([]vision.Candidate, 0, len(encs))
	for _, e := range encs {
		candidates = append(candidates, vision.Candidate{
			EncodingID: e.ID,
			ProfileID:  e.ProfileID,
			Encoding:   vision.Encoding(e.Encoding),
		})
	}

	m, err := p.matcher.Best(query, candidates)
	if err != nil {
		return vision.Match{}, nil, err
	}
	observability.MatchScore.Observe(m.Score)
	if !m.Matched {
		return m, nil, nil
	}

	profile, err := p.store.GetProfile(ctx, m.ProfileID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return vision.Match{}, nil, err
		}
		return vision.Match{}, nil, apperr.ErrPersistence.WithError(err)
	}
	if profile == nil || !profile.Active {
		// deactivated after the snapshot was taken
		return vision.Match{Score: m.Score}, nil, nil
	}
	return m, profile, nil
}

func (p *Pipeline) afterRecord(res *Result, taskID *uuid.UUID) {
	if p.background == nil {
		return
	}

	if res.Profile != nil && p.notifier != nil {
		ev, profile := res.Event, *res.Profile
		if err := p.background.Submit("notify", func(ctx context.Context) {
			p.notifier.Dispatch(ctx, ev, profile)
		}); err != nil {
			slog.Warn("notification not scheduled, left for redelivery", "detection_id", ev.ID, "error", err)
		}
	}

	if p.publisher != nil {
		payload := ToResult(res)
		payload.TaskID = taskID
		cameraID := res.Event.CameraID
		if err := p.background.Submit("publish_result", func(ctx context.Context) {
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			defer cancel()
			if err := p.publisher.PublishResult(pctx, cameraID, payload); err != nil {
				slog.Warn("publish detection result", "detection_id", payload.DetectionID, "error", err)
			}
		}); err != nil {
			slog.Warn("detection result not published", "detection_id", payload.DetectionID, "error", err)
		}
	}
}

func (p *Pipeline) publishError(sub Submission, err error) {
	if p.publisher == nil || p.background == nil {
		return
	}
	payload := dto.DetectionError{
		CameraID:  sub.Meta.CameraID,
		TaskID:    sub.TaskID,
		Code:      apperr.Code(err),
		Message:   errorMessage(err),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if subErr := p.background.Submit("publish_error", func(ctx context.Context) {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := p.publisher.PublishError(pctx, payload.CameraID, payload); err != nil {
			slog.Warn("publish detection error", "camera_id", payload.CameraID, "error", err)
		}
	}); subErr != nil {
		slog.Warn("detection error not published", "camera_id", payload.CameraID, "error", subErr)
	}
}

// stageError maps an expired detection budget to ErrDetectionTimeout and
// passes other errors through.
func stageError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperr.ErrDetectionTimeout) {
		return apperr.ErrDetectionTimeout.WithError(err)
	}
	return err
}

// discardImage removes a source image whose submission was not recorded.
func (p *Pipeline) discardImage(ctx context.Context, key string) {
	if p.objects == nil {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.objects.DeleteObject(dctx, key); err != nil {
		slog.Warn("remove source image of failed detection", "key", key, "error", err)
	}
}

func errorMessage(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Error processing image: " + err.Error()
}

func outcome(res *Result, err error) string {
	switch {
	case err == nil && res != nil && res.Event.Matched():
		return "matched"
	case err == nil:
		return "unmatched"
	case errors.Is(err, apperr.ErrInvalidImage):
		return "invalid_image"
	case errors.Is(err, apperr.ErrNoFaceDetected):
		return "no_face"
	case errors.Is(err, apperr.ErrDetectorUninitialized):
		return "uninitialized"
	case errors.Is(err, apperr.ErrPersistence):
		return "persistence_error"
	case errors.Is(err, apperr.ErrDetectionTimeout):
		return "timeout"
	default:
		return "error"
	}
}

// ObjectToken keeps camera ids safe for use in object keys.
func ObjectToken(s string) string {
	if s == "" {
		return "unknown"
	}
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}
