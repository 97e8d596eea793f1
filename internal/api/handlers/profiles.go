package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/apperr"
	"github.com/your-org/facewatch/internal/detection"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/pkg/dto"
)

type Enroller interface {
	Enroll(ctx context.Context, req detection.EnrollRequest) (*models.Profile, *models.FaceEncoding, error)
	AddFace(ctx context.Context, profileID uuid.UUID, data []byte, contentType string) (*models.FaceEncoding, error)
}

type ProfileStore interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	ListProfiles(ctx context.Context, activeOnly bool) ([]models.Profile, error)
	CountEncodings(ctx context.Context, profileID uuid.UUID) (int, error)
	DeactivateProfile(ctx context.Context, id uuid.UUID) error
}

type ProfileHandler struct {
	enroller Enroller
	store    ProfileStore
}

func NewProfileHandler(enroller Enroller, store ProfileStore) *ProfileHandler {
	return &ProfileHandler{enroller: enroller, store: store}
}

// Enroll creates a profile from one face image. Accepts a JSON body with a
// base64 image or a multipart form with an "image" file.
func (h *ProfileHandler) Enroll(c *gin.Context) {
	var req detection.EnrollRequest
	if isMultipart(c) {
		img, err := readFormImage(c, "image")
		if err != nil {
			respondError(c, err)
			return
		}
		req = detection.EnrollRequest{
			FirstName:   c.PostForm("first_name"),
			LastName:    c.PostForm("last_name"),
			Email:       c.PostForm("email"),
			Phone:       c.PostForm("phone"),
			Data:        img.Data,
			ContentType: img.ContentType,
		}
	} else {
		var body dto.EnrollRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, apperr.ErrBadRequest.WithMessage(err.Error()))
			return
		}
		img, err := decodeBase64Image(body.Image)
		if err != nil {
			respondError(c, err)
			return
		}
		req = detection.EnrollRequest{
			FirstName:   body.FirstName,
			LastName:    body.LastName,
			Email:       body.Email,
			Phone:       body.Phone,
			Data:        img.Data,
			ContentType: img.ContentType,
		}
	}

	p, fe, err := h.enroller.Enroll(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.EnrollResponse{
		Profile:  toProfileResponse(*p, 1),
		Encoding: toEncodingResponse(*fe),
	})
}

func (h *ProfileHandler) List(c *gin.Context) {
	activeOnly := true
	if raw := c.Query("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, apperr.ErrBadRequest.WithMessage("invalid active flag"))
			return
		}
		activeOnly = v
	}

	ctx := c.Request.Context()
	profiles, err := h.store.ListProfiles(ctx, activeOnly)
	if err != nil {
		respondError(c, apperr.ErrPersistence.WithError(err))
		return
	}

	resp := make([]dto.ProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		count, err := h.store.CountEncodings(ctx, p.ID)
		if err != nil {
			respondError(c, apperr.ErrPersistence.WithError(err))
			return
		}
		resp = append(resp, toProfileResponse(p, count))
	}
	c.JSON(http.StatusOK, dto.ProfileListResponse{Profiles: resp, Total: len(resp)})
}

func (h *ProfileHandler) Get(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	p, err := h.store.GetProfile(ctx, id)
	if err != nil {
		respondError(c, apperr.ErrPersistence.WithError(err))
		return
	}
	if p == nil {
		respondError(c, apperr.ErrNotFound.WithMessage("profile not found"))
		return
	}
	count, err := h.store.CountEncodings(ctx, id)
	if err != nil {
		respondError(c, apperr.ErrPersistence.WithError(err))
		return
	}
	c.JSON(http.StatusOK, toProfileResponse(*p, count))
}

// AddFace attaches another encoding to an active profile.
func (h *ProfileHandler) AddFace(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}

	var img imageUpload
	var err error
	if isMultipart(c) {
		img, err = readFormImage(c, "image")
	} else {
		var body dto.AddFaceRequest
		if err = c.ShouldBindJSON(&body); err != nil {
			err = apperr.ErrBadRequest.WithMessage(err.Error())
		} else {
			img, err = decodeBase64Image(body.Image)
		}
	}
	if err != nil {
		respondError(c, err)
		return
	}

	fe, err := h.enroller.AddFace(c.Request.Context(), id, img.Data, img.ContentType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toEncodingResponse(*fe))
}

// Deactivate removes the profile from matching. History is kept.
func (h *ProfileHandler) Deactivate(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	if err := h.store.DeactivateProfile(c.Request.Context(), id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			respondError(c, err)
			return
		}
		respondError(c, apperr.ErrPersistence.WithError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func profileID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.ErrBadRequest.WithMessage("invalid profile id"))
		return uuid.Nil, false
	}
	return id, true
}

func toProfileResponse(p models.Profile, faceCount int) dto.ProfileResponse {
	return dto.ProfileResponse{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Phone:     p.Phone,
		Active:    p.Active,
		FaceCount: faceCount,
		CreatedAt: p.CreatedAt.UTC().Format(timeLayout),
	}
}

func toEncodingResponse(fe models.FaceEncoding) dto.FaceEncodingResponse {
	return dto.FaceEncodingResponse{
		ID:         fe.ID,
		ProfileID:  fe.ProfileID,
		Confidence: fe.Confidence,
		SourceKey:  fe.SourceKey,
		CreatedAt:  fe.CreatedAt.UTC().Format(timeLayout),
	}
}
