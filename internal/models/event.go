package models

import (
	"time"

	"github.com/google/uuid"
)

// DetectionEvent is the durable record of one detection submission.
// Only the notification fields change after insert.
type DetectionEvent struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	ImageKey         string     `json:"image_key" db:"image_key"`
	Latitude         *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude        *float64   `json:"longitude,omitempty" db:"longitude"`
	Location         string     `json:"location,omitempty" db:"location"`
	LocationAddress  string     `json:"location_address" db:"location_address"`
	CameraID         string     `json:"camera_id" db:"camera_id"`
	CameraType       string     `json:"camera_type" db:"camera_type"`
	ProfileID        *uuid.UUID `json:"profile_id,omitempty" db:"profile_id"`
	ProfileName      string     `json:"profile_name,omitempty" db:"-"`
	Score            float64    `json:"score" db:"score"`
	DetectionTime    time.Time  `json:"detection_time" db:"detection_time"`
	NotificationSent bool       `json:"notification_sent" db:"notification_sent"`
	EmailSent        bool       `json:"email_sent" db:"email_sent"`
	SMSSent          bool       `json:"sms_sent" db:"sms_sent"`
	NotifyAttempts   int        `json:"notify_attempts" db:"notify_attempts"`
}

func (e DetectionEvent) Matched() bool {
	return e.ProfileID != nil
}

// SubmissionMeta is the camera and location context sent with an image.
type SubmissionMeta struct {
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	CameraID   string   `json:"camera_id"`
	CameraType string   `json:"camera_type"`
	Location   string   `json:"location,omitempty"`
}

// DetectionTask is the message published to NATS for asynchronous processing.
type DetectionTask struct {
	TaskID      uuid.UUID      `json:"task_id"`
	ImageRef    string         `json:"image_ref"` // MinIO object key
	ContentType string         `json:"content_type"`
	Meta        SubmissionMeta `json:"meta"`
	SubmittedAt time.Time      `json:"submitted_at"`
}
