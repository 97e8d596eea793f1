package detection

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/facewatch/internal/apperr"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/notify"
	"github.com/your-org/facewatch/internal/observability"
)

const statusUpdateTimeout = 5 * time.Second

// StatusStore records per-channel delivery results.
type StatusStore interface {
	UpdateNotificationStatus(ctx context.Context, id uuid.UUID, emailSent, smsSent bool) error
}

// Outcome is what one delivery round achieved.
type Outcome struct {
	EmailAttempted bool
	EmailSent      bool
	SMSAttempted   bool
	SMSSent        bool
}

// Dispatcher sends the email and SMS for a matched event. The two channels
// are independent: a failure of one never blocks or undoes the other.
type Dispatcher struct {
	email   notify.Channel
	sms     notify.Channel
	store   StatusStore
	timeout time.Duration
}

// NewDispatcher creates a Dispatcher. Either channel may be nil when it is
// not configured.
func NewDispatcher(email, sms notify.Channel, store StatusStore, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{email: email, sms: sms, store: store, timeout: timeout}
}

// Dispatch delivers over every channel that has not succeeded yet and then
// records the result in one status update.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.DetectionEvent, p models.Profile) Outcome {
	n := notify.Notice{
		DetectionID:     ev.ID.String(),
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		Email:           p.Email,
		Phone:           p.Phone,
		DetectionTime:   ev.DetectionTime,
		CameraID:        ev.CameraID,
		CameraType:      ev.CameraType,
		Score:           ev.Score,
		Latitude:        ev.Latitude,
		Longitude:       ev.Longitude,
		LocationAddress: ev.LocationAddress,
	}

	var out Outcome
	var g errgroup.Group

	if d.email != nil && !ev.EmailSent {
		out.EmailAttempted = true
		g.Go(func() error {
			out.EmailSent = d.send(ctx, d.email, n)
			return nil
		})
	}
	if d.sms != nil && !ev.SMSSent && strings.TrimSpace(p.Phone) != "" {
		out.SMSAttempted = true
		g.Go(func() error {
			out.SMSSent = d.send(ctx, d.sms, n)
			return nil
		})
	}
	_ = g.Wait()

	// status is written even when ctx is already cancelled
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusUpdateTimeout)
	defer cancel()
	if err := d.store.UpdateNotificationStatus(sctx, ev.ID, out.EmailSent, out.SMSSent); err != nil {
		slog.Error("update notification status", "detection_id", ev.ID, "error", err)
	}

	return out
}

// send delivers n over one channel. A panicking channel counts as a failed
// delivery.
func (d *Dispatcher) send(ctx context.Context, ch notify.Channel, n notify.Notice) (sent bool) {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			observability.NotificationsTotal.WithLabelValues(ch.Name(), "failed").Inc()
			slog.Error("notification channel panicked",
				"channel", ch.Name(),
				"detection_id", n.DetectionID,
				"error", apperr.ErrDelivery.WithError(fmt.Errorf("panic: %v", r)),
				"stack", string(debug.Stack()),
			)
			sent = false
		}
	}()

	if err := ch.Send(cctx, n); err != nil {
		observability.NotificationsTotal.WithLabelValues(ch.Name(), "failed").Inc()
		slog.Warn("notification delivery failed",
			"channel", ch.Name(),
			"detection_id", n.DetectionID,
			"error", apperr.ErrDelivery.WithError(err),
		)
		return false
	}
	observability.NotificationsTotal.WithLabelValues(ch.Name(), "sent").Inc()
	return true
}
