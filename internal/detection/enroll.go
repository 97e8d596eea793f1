package detection

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/apperr"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/vision"
)

// EnrollStore persists profiles and their encodings.
type EnrollStore interface {
	CreateProfileWithEncoding(ctx context.Context, p *models.Profile, fe *models.FaceEncoding) error
	AddEncoding(ctx context.Context, fe *models.FaceEncoding) error
}

// ObjectRemover deletes stored source images that ended up unreferenced.
type ObjectRemover interface {
	DeleteObject(ctx context.Context, key string) error
}

type EnrollRequest struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Data        []byte
	ContentType string
}

// Enroller registers new faces. The encoding is computed before anything is
// written so a bad image never leaves a profile behind.
type Enroller struct {
	normalizer *vision.Normalizer
	localizer  *vision.Localizer
	store      EnrollStore
	objects    ObjectRemover
}

func NewEnroller(normalizer *vision.Normalizer, localizer *vision.Localizer, store EnrollStore, objects ObjectRemover) *Enroller {
	return &Enroller{normalizer: normalizer, localizer: localizer, store: store, objects: objects}
}

func (e *Enroller) Enroll(ctx context.Context, req EnrollRequest) (*models.Profile, *models.FaceEncoding, error) {
	p := &models.Profile{
		ID:        uuid.New(),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
	}
	if p.FirstName == "" {
		return nil, nil, apperr.ErrBadRequest.WithMessage("first_name is required")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return nil, nil, apperr.ErrBadRequest.WithMessage("a valid email is required")
	}

	fe, err := e.encode(ctx, p.ID, req.Data, req.ContentType)
	if err != nil {
		return nil, nil, err
	}

	if err := e.store.CreateProfileWithEncoding(ctx, p, fe); err != nil {
		e.cleanup(ctx, fe.SourceKey)
		return nil, nil, apperr.ErrPersistence.WithError(err)
	}

	slog.Info("profile enrolled", "profile_id", p.ID, "encoding_id", fe.ID)
	return p, fe, nil
}

// AddFace stores another encoding for an existing active profile.
func (e *Enroller) AddFace(ctx context.Context, profileID uuid.UUID, data []byte, contentType string) (*models.FaceEncoding, error) {
	fe, err := e.encode(ctx, profileID, data, contentType)
	if err != nil {
		return nil, err
	}

	if err := e.store.AddEncoding(ctx, fe); err != nil {
		e.cleanup(ctx, fe.SourceKey)
		if apperr.Code(err) == apperr.ErrNotFound.Code {
			return nil, err
		}
		return nil, apperr.ErrPersistence.WithError(err)
	}

	slog.Info("face added", "profile_id", profileID, "encoding_id", fe.ID)
	return fe, nil
}

func (e *Enroller) encode(ctx context.Context, profileID uuid.UUID, data []byte, contentType string) (*models.FaceEncoding, error) {
	fe := &models.FaceEncoding{ID: uuid.New(), ProfileID: profileID}
	key := fmt.Sprintf("profiles/%s/%s", profileID, fe.ID)

	img, err := e.normalizer.Normalize(ctx, data, contentType, key)
	if err != nil {
		return nil, err
	}

	loc, err := e.localizer.Locate(ctx, img.Gray)
	if err != nil {
		e.cleanup(ctx, img.Key)
		return nil, err
	}

	enc, face, err := vision.EncodeLargest(img.Original, loc.Faces)
	if err != nil {
		e.cleanup(ctx, img.Key)
		return nil, err
	}

	fe.Encoding = string(enc)
	fe.SourceKey = img.Key
	fe.Confidence = face.Confidence
	return fe, nil
}

func (e *Enroller) cleanup(ctx context.Context, key string) {
	if key == "" || e.objects == nil {
		return
	}
	if err := e.objects.DeleteObject(context.WithoutCancel(ctx), key); err != nil {
		slog.Warn("remove unreferenced enrollment image", "key", key, "error", err)
	}
}
