package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/your-org/facewatch/internal/models"
)

// DefaultRecentLimit is used when a listing is requested without a limit.
const DefaultRecentLimit = 10

const maxListLimit = 500

const detectionColumns = `d.id, d.image_key, d.latitude, d.longitude, d.location, d.location_address,
	d.camera_id, d.camera_type, d.profile_id, COALESCE(TRIM(p.first_name || ' ' || p.last_name), ''),
	d.score, d.detection_time, d.notification_sent, d.email_sent, d.sms_sent, d.notify_attempts`

const detectionFrom = ` FROM detection_events d LEFT JOIN profiles p ON p.id = d.profile_id`

func scanDetection(row pgx.Row) (models.DetectionEvent, error) {
	var ev models.DetectionEvent
	err := row.Scan(&ev.ID, &ev.ImageKey, &ev.Latitude, &ev.Longitude, &ev.Location, &ev.LocationAddress,
		&ev.CameraID, &ev.CameraType, &ev.ProfileID, &ev.ProfileName,
		&ev.Score, &ev.DetectionTime, &ev.NotificationSent, &ev.EmailSent, &ev.SMSSent, &ev.NotifyAttempts)
	return ev, err
}

// CreateDetection records one detection event in its own transaction and
// fills in the assigned id and detection time.
func (s *PostgresStore) CreateDetection(ctx context.Context, ev *models.DetectionEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO detection_events (id, image_key, latitude, longitude, location, location_address,
			   camera_id, camera_type, profile_id, score)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING detection_time`,
			ev.ID, ev.ImageKey, ev.Latitude, ev.Longitude, ev.Location, ev.LocationAddress,
			ev.CameraID, ev.CameraType, ev.ProfileID, ev.Score,
		).Scan(&ev.DetectionTime)
		if err != nil {
			return fmt.Errorf("create detection: %w", err)
		}
		return nil
	})
}

// UpdateNotificationStatus records the outcome of one delivery round.
// Channel flags only move from false to true; notification_sent is derived
// from them.
func (s *PostgresStore) UpdateNotificationStatus(ctx context.Context, id uuid.UUID, emailSent, smsSent bool) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE detection_events
			 SET email_sent = email_sent OR $2,
			     sms_sent = sms_sent OR $3,
			     notification_sent = (email_sent OR $2 OR sms_sent OR $3),
			     notify_attempts = notify_attempts + 1,
			     last_notify_attempt_at = now()
			 WHERE id = $1`,
			id, emailSent, smsSent)
		if err != nil {
			return fmt.Errorf("update notification status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("update notification status: detection %s not found", id)
		}
		return nil
	})
}

// GetDetection returns nil, nil when the event does not exist.
func (s *PostgresStore) GetDetection(ctx context.Context, id uuid.UUID) (*models.DetectionEvent, error) {
	ev, err := scanDetection(s.db.QueryRow(ctx, `SELECT `+detectionColumns+detectionFrom+` WHERE d.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get detection: %w", err)
	}
	return &ev, nil
}

// RecentDetections returns the newest events first.
func (s *PostgresStore) RecentDetections(ctx context.Context, limit int) ([]models.DetectionEvent, error) {
	return s.listDetections(ctx, "recent detections",
		`SELECT `+detectionColumns+detectionFrom+` ORDER BY d.detection_time DESC LIMIT $1`,
		clampLimit(limit))
}

func (s *PostgresStore) DetectionsByCamera(ctx context.Context, cameraID string, limit int) ([]models.DetectionEvent, error) {
	return s.listDetections(ctx, "detections by camera",
		`SELECT `+detectionColumns+detectionFrom+` WHERE d.camera_id = $1 ORDER BY d.detection_time DESC LIMIT $2`,
		cameraID, clampLimit(limit))
}

func (s *PostgresStore) DetectionsByProfile(ctx context.Context, profileID uuid.UUID, limit int) ([]models.DetectionEvent, error) {
	return s.listDetections(ctx, "detections by profile",
		`SELECT `+detectionColumns+detectionFrom+` WHERE d.profile_id = $1 ORDER BY d.detection_time DESC LIMIT $2`,
		profileID, clampLimit(limit))
}

// ClaimUndelivered leases matched events whose notifications are still
// pending. An event is eligible when it is older than olderThan, has fewer
// than maxAttempts delivery rounds and was not attempted after retryBefore.
// Claimed rows get last_notify_attempt_at = now() so concurrent sweeps skip them.
func (s *PostgresStore) ClaimUndelivered(ctx context.Context, olderThan, retryBefore time.Time, maxAttempts, limit int) ([]models.DetectionEvent, error) {
	return s.listDetections(ctx, "claim undelivered",
		`WITH claimed AS (
		   UPDATE detection_events SET last_notify_attempt_at = now()
		   WHERE id IN (
		     SELECT id FROM detection_events
		     WHERE profile_id IS NOT NULL
		       AND NOT notification_sent
		       AND notify_attempts < $3
		       AND detection_time < $1
		       AND (last_notify_attempt_at IS NULL OR last_notify_attempt_at < $2)
		     ORDER BY detection_time
		     LIMIT $4
		     FOR UPDATE SKIP LOCKED)
		   RETURNING *)
		 SELECT `+detectionColumns+` FROM claimed d LEFT JOIN profiles p ON p.id = d.profile_id
		 ORDER BY d.detection_time`,
		olderThan, retryBefore, maxAttempts, clampLimit(limit))
}

func (s *PostgresStore) listDetections(ctx context.Context, op, query string, args ...any) ([]models.DetectionEvent, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	events := []models.DetectionEvent{}
	for rows.Next() {
		ev, err := scanDetection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
