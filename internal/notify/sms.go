package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/your-org/facewatch/internal/config"
)

// MessageCreator is the part of the Twilio REST API used here.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type SMSChannel struct {
	api  MessageCreator
	from string
}

func NewSMSChannel(cfg config.TwilioConfig) *SMSChannel {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return NewSMSChannelWithAPI(client.Api, cfg.From)
}

func NewSMSChannelWithAPI(api MessageCreator, from string) *SMSChannel {
	return &SMSChannel{api: api, from: from}
}

func (c *SMSChannel) Name() string { return ChannelSMS }

// Send creates the message. The Twilio client has no context support, so the
// call runs in its own goroutine and Send returns when ctx is done.
func (c *SMSChannel) Send(ctx context.Context, n Notice) error {
	if strings.TrimSpace(n.Phone) == "" {
		return fmt.Errorf("no phone number for %s", n.FullName())
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(n.Phone)
	params.SetFrom(c.from)
	params.SetBody(smsBody(n))

	type result struct {
		msg *twilioApi.ApiV2010Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("twilio client panicked: %v", r)}
			}
		}()
		msg, err := c.api.CreateMessage(params)
		done <- result{msg, err}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("send sms to %s: %w", n.Phone, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("send sms to %s: %w", n.Phone, r.err)
		}
		sid := ""
		if r.msg != nil && r.msg.Sid != nil {
			sid = *r.msg.Sid
		}
		slog.Info("sms notification sent", "detection_id", n.DetectionID, "to", n.Phone, "sid", sid)
		return nil
	}
}

func smsBody(n Notice) string {
	var sb strings.Builder
	sb.WriteString("FACE RECOGNITION ALERT\n\n")
	fmt.Fprintf(&sb, "Person: %s\n", n.FullName())
	fmt.Fprintf(&sb, "Time: %s\n", n.DetectionTime.Format("2006-01-02 15:04"))
	if n.CameraID != "" {
		fmt.Fprintf(&sb, "Camera: %s\n", n.CameraID)
	}
	if n.HasCoordinates() {
		fmt.Fprintf(&sb, "Location: %v, %v\n", *n.Latitude, *n.Longitude)
		fmt.Fprintf(&sb, "Map: %s\n", n.MapsURL())
	}
	fmt.Fprintf(&sb, "\nConfidence: %.1f%%", n.Score*100)
	return sb.String()
}
