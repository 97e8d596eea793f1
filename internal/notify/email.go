package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/resend/resend-go/v2"

	"github.com/your-org/facewatch/internal/config"
)

const emailSubject = "Face Recognition Alert - Match Found"

//go:embed templates/*.html
var templateFS embed.FS

var detectionTemplate = template.Must(template.ParseFS(templateFS, "templates/detection.html"))

// EmailSender is the part of the Resend client used here.
type EmailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type EmailChannel struct {
	sender EmailSender
	from   string
}

func NewEmailChannel(cfg config.ResendConfig) *EmailChannel {
	client := resend.NewClient(cfg.APIKey)
	return NewEmailChannelWithSender(client.Emails, cfg.From)
}

func NewEmailChannelWithSender(sender EmailSender, from string) *EmailChannel {
	return &EmailChannel{sender: sender, from: from}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Send(ctx context.Context, n Notice) error {
	if n.Email == "" {
		return fmt.Errorf("no email address for %s", n.FullName())
	}

	html, err := renderEmail(n)
	if err != nil {
		return err
	}

	resp, err := c.sender.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{n.Email},
		Subject: emailSubject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("send email to %s: %w", n.Email, err)
	}

	var messageID string
	if resp != nil {
		messageID = resp.Id
	}
	slog.Info("email notification sent", "detection_id", n.DetectionID, "to", n.Email, "message_id", messageID)
	return nil
}

type emailView struct {
	Name          string
	Email         string
	Phone         string
	DetectionTime string
	CameraID      string
	CameraType    string
	Confidence    string
	Latitude      string
	Longitude     string
	Address       string
	MapsURL       string
}

func renderEmail(n Notice) (string, error) {
	v := emailView{
		Name:          n.FullName(),
		Email:         n.Email,
		Phone:         orDefault(n.Phone, "N/A"),
		DetectionTime: n.DetectionTime.Format("2006-01-02 15:04:05"),
		CameraID:      orDefault(n.CameraID, "Unknown"),
		CameraType:    orDefault(n.CameraType, "Unknown"),
		Confidence:    fmt.Sprintf("%.2f%%", n.Score*100),
		Latitude:      "N/A",
		Longitude:     "N/A",
		Address:       orDefault(n.LocationAddress, "Address not available"),
		MapsURL:       n.MapsURL(),
	}
	if n.Latitude != nil {
		v.Latitude = fmt.Sprintf("%v", *n.Latitude)
	}
	if n.Longitude != nil {
		v.Longitude = fmt.Sprintf("%v", *n.Longitude)
	}

	var buf bytes.Buffer
	if err := detectionTemplate.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
