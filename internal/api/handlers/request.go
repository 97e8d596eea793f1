package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facewatch/internal/apperr"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/vision"
	"github.com/your-org/facewatch/pkg/dto"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// respondError writes err as JSON with the status carried by its type.
func respondError(c *gin.Context, err error) {
	status := apperr.StatusCode(err)
	var appErr *apperr.Error
	msg := "internal error"
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "code", apperr.Code(err), "error", err)
	}
	c.JSON(status, dto.ErrorResponse{Error: msg, Code: apperr.Code(err)})
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// imageUpload is a raw image taken from a multipart file or a base64 field.
type imageUpload struct {
	Data        []byte
	ContentType string
}

func readFormImage(c *gin.Context, field string) (imageUpload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return imageUpload{}, apperr.ErrBadRequest.WithMessage("multipart field '" + field + "' is required")
	}
	f, err := fh.Open()
	if err != nil {
		return imageUpload{}, apperr.ErrInvalidImage.WithError(err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return imageUpload{}, apperr.ErrInvalidImage.WithError(err)
	}
	return imageUpload{Data: data, ContentType: fh.Header.Get("Content-Type")}, nil
}

func decodeBase64Image(payload string) (imageUpload, error) {
	data, contentType, err := vision.DecodeImagePayload(payload)
	if err != nil {
		return imageUpload{}, err
	}
	return imageUpload{Data: data, ContentType: contentType}, nil
}

// readDetectRequest accepts either a multipart form with an "image" file or
// a JSON body with a base64 image.
func readDetectRequest(c *gin.Context) (imageUpload, models.SubmissionMeta, error) {
	var (
		img  imageUpload
		meta models.SubmissionMeta
		err  error
	)

	if isMultipart(c) {
		img, err = readFormImage(c, "image")
		if err != nil {
			return img, meta, err
		}
		meta.CameraID = c.PostForm("camera_id")
		meta.CameraType = c.PostForm("camera_type")
		meta.Location = c.PostForm("location")
		if meta.Latitude, err = parseCoordinate(c.PostForm("latitude"), "latitude"); err != nil {
			return img, meta, err
		}
		if meta.Longitude, err = parseCoordinate(c.PostForm("longitude"), "longitude"); err != nil {
			return img, meta, err
		}
	} else {
		var req dto.DetectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return img, meta, apperr.ErrBadRequest.WithMessage(err.Error())
		}
		if img, err = decodeBase64Image(req.Image); err != nil {
			return img, meta, err
		}
		meta = models.SubmissionMeta{
			Latitude:   req.Latitude,
			Longitude:  req.Longitude,
			CameraID:   req.CameraID,
			CameraType: req.CameraType,
			Location:   req.Location,
		}
	}

	meta.CameraID = strings.TrimSpace(meta.CameraID)
	if meta.CameraID == "" {
		return img, meta, apperr.ErrBadRequest.WithMessage("camera_id is required")
	}
	if err := validateCoordinates(meta.Latitude, meta.Longitude); err != nil {
		return img, meta, err
	}
	return img, meta, nil
}

func parseCoordinate(raw, name string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperr.ErrBadRequest.WithMessage("invalid " + name)
	}
	return &v, nil
}

func validateCoordinates(lat, lng *float64) error {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return apperr.ErrBadRequest.WithMessage("latitude must be between -90 and 90")
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		return apperr.ErrBadRequest.WithMessage("longitude must be between -180 and 180")
	}
	return nil
}

func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.ErrBadRequest.WithMessage("invalid limit")
	}
	return n, nil
}
