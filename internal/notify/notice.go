package notify

import (
	"context"
	"fmt"
	"time"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Channel delivers a notice over one medium.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notice) error
}

// Notice carries everything a channel needs to describe a matched detection.
type Notice struct {
	DetectionID     string
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	DetectionTime   time.Time
	CameraID        string
	CameraType      string
	Score           float64
	Latitude        *float64
	Longitude       *float64
	LocationAddress string
}

func (n Notice) FullName() string {
	if n.LastName == "" {
		return n.FirstName
	}
	return n.FirstName + " " + n.LastName
}

func (n Notice) HasCoordinates() bool {
	return n.Latitude != nil && n.Longitude != nil
}

// MapsURL returns a maps link for the coordinates, or "" when unknown.
func (n Notice) MapsURL() string {
	if !n.HasCoordinates() {
		return ""
	}
	return fmt.Sprintf("https://maps.google.com/?q=%v,%v", *n.Latitude, *n.Longitude)
}

// LocationAddress renders coordinates as a display address.
func LocationAddress(lat, lng *float64) string {
	if lat == nil || lng == nil {
		return "Unknown Location"
	}
	return fmt.Sprintf("Lat: %.4f, Lng: %.4f", *lat, *lng)
}
