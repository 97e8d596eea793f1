package detection

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facewatch/internal/apperr"
	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/notify"
	"github.com/your-org/facewatch/internal/tasks"
	"github.com/your-org/facewatch/internal/vision"
	"github.com/your-org/facewatch/pkg/dto"
)

func facePNG(t *testing.T, seed int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 120; x++ {
			v := uint8((x*7 + y*3 + seed*40) % 256)
			if (x/15+y/15+seed)%2 == 0 {
				v = 255 - v
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var faceBox = image.Rect(20, 20, 100, 100)

type stubBackend struct {
	faces []vision.Face
}

func (b *stubBackend) Detect(*image.Gray, vision.PassParams) ([]vision.Face, error) {
	return b.faces, nil
}

func (b *stubBackend) Close() error { return nil }

func visionConfig() config.VisionConfig {
	return config.VisionConfig{
		Primary:    config.PassConfig{ScaleFactor: 1.1, MinNeighbors: 5, MinSizeRatio: 0.1, MinConfidence: 0.5},
		Aggressive: config.PassConfig{ScaleFactor: 1.05, MinNeighbors: 3, MinSizeRatio: 0.05, MinConfidence: 0.3},
	}
}

func readyLocalizer(t *testing.T, faces ...vision.Face) *vision.Localizer {
	t.Helper()
	l := vision.NewLocalizer(visionConfig())
	require.NoError(t, l.Initialize(func() (vision.Backend, error) {
		return &stubBackend{faces: faces}, nil
	}))
	return l
}

// memStore is an in-memory stand-in for the Postgres store.
type memStore struct {
	mu        sync.Mutex
	profiles  map[uuid.UUID]*models.Profile
	encodings []models.FaceEncoding
	events    []models.DetectionEvent
	statuses  []statusUpdate

	createDetectionErr error
	createProfileErr   error
}

type statusUpdate struct {
	id        uuid.UUID
	emailSent bool
	smsSent   bool
}

func newMemStore() *memStore {
	return &memStore{profiles: map[uuid.UUID]*models.Profile{}}
}

func (s *memStore) ActiveEncodings(context.Context) ([]models.FaceEncoding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FaceEncoding
	for _, e := range s.encodings {
		if p := s.profiles[e.ProfileID]; e.Active && p != nil && p.Active {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) GetProfile(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) CreateDetection(_ context.Context, ev *models.DetectionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createDetectionErr != nil {
		return s.createDetectionErr
	}
	ev.DetectionTime = time.Now()
	s.events = append(s.events, *ev)
	return nil
}

func (s *memStore) CreateProfileWithEncoding(_ context.Context, p *models.Profile, fe *models.FaceEncoding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createProfileErr != nil {
		return s.createProfileErr
	}
	p.Active = true
	fe.ProfileID = p.ID
	fe.Active = true
	cp := *p
	s.profiles[p.ID] = &cp
	s.encodings = append(s.encodings, *fe)
	return nil
}

func (s *memStore) AddEncoding(_ context.Context, fe *models.FaceEncoding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.profiles[fe.ProfileID]; p == nil || !p.Active {
		return errNotFound
	}
	fe.Active = true
	s.encodings = append(s.encodings, *fe)
	return nil
}

func (s *memStore) UpdateNotificationStatus(_ context.Context, id uuid.UUID, emailSent, smsSent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, statusUpdate{id: id, emailSent: emailSent, smsSent: smsSent})
	return nil
}

func (s *memStore) ClaimUndelivered(context.Context, time.Time, time.Time, int, int) ([]models.DetectionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DetectionEvent
	for _, ev := range s.events {
		if ev.ProfileID != nil && !ev.NotificationSent {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

var errNotFound = apperr.ErrNotFound.WithMessage("profile not found or inactive")

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (o *memObjects) PutObject(_ context.Context, key string, data []byte, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = data
	return nil
}

func (o *memObjects) DeleteObject(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	o.deleted = append(o.deleted, key)
	return nil
}

// inlineRunner runs background work immediately so tests can assert on it.
type inlineRunner struct {
	names []string
}

func (r *inlineRunner) Submit(name string, fn tasks.Func) error {
	r.names = append(r.names, name)
	fn(context.Background())
	return nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	results map[string][]dto.DetectionResult
	errs    map[string][]dto.DetectionError
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{
		results: map[string][]dto.DetectionResult{},
		errs:    map[string][]dto.DetectionError{},
	}
}

func (p *recordingPublisher) PublishResult(_ context.Context, cameraID string, r dto.DetectionResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[cameraID] = append(p.results[cameraID], r)
	return nil
}

func (p *recordingPublisher) PublishError(_ context.Context, cameraID string, e dto.DetectionError) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[cameraID] = append(p.errs[cameraID], e)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []models.DetectionEvent
}

func (n *recordingNotifier) Dispatch(_ context.Context, ev models.DetectionEvent, _ models.Profile) Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, ev)
	return Outcome{EmailAttempted: true, EmailSent: true}
}

type fakeChannel struct {
	name  string
	err   error
	panic any

	mu    sync.Mutex
	sends []notify.Notice
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Send(_ context.Context, n notify.Notice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, n)
	if c.panic != nil {
		panic(c.panic)
	}
	return c.err
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}
