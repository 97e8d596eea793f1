package dto

import "github.com/google/uuid"

// DetectRequest is the JSON form of a detection submission. Image is base64,
// optionally with a data URI prefix.
type DetectRequest struct {
	Image      string   `json:"image" binding:"required"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	CameraID   string   `json:"camera_id" binding:"required"`
	CameraType string   `json:"camera_type"`
	Location   string   `json:"location,omitempty"`
}

// DetectionResult is returned by the synchronous endpoint and published on
// the camera's results topic.
type DetectionResult struct {
	DetectionID      uuid.UUID       `json:"detection_id"`
	Matched          bool            `json:"matched"`
	Profile          *ProfileSummary `json:"profile,omitempty"`
	Confidence       float64         `json:"confidence"`
	FacesDetected    int             `json:"faces_detected"`
	CameraID         string          `json:"camera_id"`
	CameraType       string          `json:"camera_type"`
	Latitude         *float64        `json:"latitude,omitempty"`
	Longitude        *float64        `json:"longitude,omitempty"`
	Location         string          `json:"location,omitempty"`
	LocationAddress  string          `json:"location_address"`
	ImageKey         string          `json:"image_key,omitempty"`
	DetectionTime    string          `json:"detection_time"`
	NotificationSent bool            `json:"notification_sent"`
	TaskID           *uuid.UUID      `json:"task_id,omitempty"`
}

// DetectionError is published on the camera's error topic when a
// submission fails before it is recorded.
type DetectionError struct {
	CameraID  string     `json:"camera_id"`
	TaskID    *uuid.UUID `json:"task_id,omitempty"`
	Code      string     `json:"code"`
	Message   string     `json:"message"`
	Timestamp string     `json:"timestamp"`
}

type AsyncDetectResponse struct {
	TaskID   uuid.UUID `json:"task_id"`
	CameraID string    `json:"camera_id"`
	Status   string    `json:"status"`
}

type DetectionEventResponse struct {
	ID               uuid.UUID  `json:"id"`
	ImageKey         string     `json:"image_key,omitempty"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	Location         string     `json:"location,omitempty"`
	LocationAddress  string     `json:"location_address"`
	CameraID         string     `json:"camera_id"`
	CameraType       string     `json:"camera_type"`
	ProfileID        *uuid.UUID `json:"profile_id,omitempty"`
	ProfileName      string     `json:"profile_name,omitempty"`
	Confidence       float64    `json:"confidence"`
	DetectionTime    string     `json:"detection_time"`
	NotificationSent bool       `json:"notification_sent"`
	EmailSent        bool       `json:"email_sent"`
	SMSSent          bool       `json:"sms_sent"`
}

type DetectionListResponse struct {
	Detections []DetectionEventResponse `json:"detections"`
	Total      int                      `json:"total"`
}

// WSMessage wraps payloads sent to WebSocket subscribers.
type WSMessage struct {
	Type string `json:"type"` // detection_result, detection_error
	Data any    `json:"data"`
}
