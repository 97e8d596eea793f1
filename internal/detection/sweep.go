package detection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/observability"
)

// SweepStore finds matched events whose notifications never went out.
type SweepStore interface {
	ClaimUndelivered(ctx context.Context, olderThan, retryBefore time.Time, maxAttempts, limit int) ([]models.DetectionEvent, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	UpdateNotificationStatus(ctx context.Context, id uuid.UUID, emailSent, smsSent bool) error
}

// Sweeper periodically re-dispatches undelivered notifications.
type Sweeper struct {
	store    SweepStore
	notifier Notifier
	cfg      config.NotifyConfig
	now      func() time.Time
}

func NewSweeper(store SweepStore, notifier Notifier, cfg config.NotifyConfig) *Sweeper {
	return &Sweeper{store: store, notifier: notifier, cfg: cfg, now: time.Now}
}

// Run sweeps every SweepInterval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	slog.Info("notification sweep started", "interval", s.cfg.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				slog.Error("notification sweep", "error", err)
			}
		}
	}
}

// SweepOnce claims one batch and dispatches it. It returns the number of
// events claimed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	events, err := s.store.ClaimUndelivered(ctx,
		now.Add(-s.cfg.SweepGrace),
		now.Add(-s.cfg.SweepBackoff),
		s.cfg.MaxAttempts,
		s.cfg.SweepBatch,
	)
	if err != nil {
		return 0, fmt.Errorf("claim undelivered: %w", err)
	}
	observability.RedeliveryClaimed.Add(float64(len(events)))

	for _, ev := range events {
		if ctx.Err() != nil {
			return len(events), ctx.Err()
		}
		if ev.ProfileID == nil {
			continue
		}

		profile, err := s.store.GetProfile(ctx, *ev.ProfileID)
		if err != nil {
			slog.Warn("load profile for redelivery", "detection_id", ev.ID, "error", err)
			continue
		}
		if profile == nil || !profile.Active {
			// count the attempt so the event ages out at the cap
			if err := s.store.UpdateNotificationStatus(ctx, ev.ID, false, false); err != nil {
				slog.Warn("record skipped redelivery", "detection_id", ev.ID, "error", err)
			}
			continue
		}

		out := s.notifier.Dispatch(ctx, ev, *profile)
		slog.Info("notification redelivered",
			"detection_id", ev.ID,
			"attempt", ev.NotifyAttempts+1,
			"email_sent", out.EmailSent,
			"sms_sent", out.SMSSent,
		)
	}
	return len(events), nil
}
