package detection

import (
	"time"

	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/pkg/dto"
)

// ToResult builds the API and realtime payload for a recorded detection.
func ToResult(res *Result) dto.DetectionResult {
	ev := res.Event
	out := dto.DetectionResult{
		DetectionID:      ev.ID,
		Matched:          ev.Matched(),
		Confidence:       ev.Score,
		FacesDetected:    res.FaceCount,
		CameraID:         ev.CameraID,
		CameraType:       ev.CameraType,
		Latitude:         ev.Latitude,
		Longitude:        ev.Longitude,
		Location:         ev.Location,
		LocationAddress:  ev.LocationAddress,
		ImageKey:         ev.ImageKey,
		DetectionTime:    ev.DetectionTime.UTC().Format(time.RFC3339),
		NotificationSent: ev.NotificationSent,
	}
	if res.Profile != nil {
		out.Profile = ProfileSummary(*res.Profile)
	}
	return out
}

func ProfileSummary(p models.Profile) *dto.ProfileSummary {
	return &dto.ProfileSummary{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Phone:     p.Phone,
	}
}
