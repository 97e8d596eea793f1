package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facewatch/internal/apperr"
	"github.com/your-org/facewatch/internal/models"
)

const profileColumns = `id, first_name, last_name, email, phone, active, created_at`

// CreateProfileWithEncoding inserts a profile and its first encoding in one
// transaction. Neither row exists if either insert fails.
func (s *PostgresStore) CreateProfileWithEncoding(ctx context.Context, p *models.Profile, fe *models.FaceEncoding) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if fe.ID == uuid.Nil {
		fe.ID = uuid.New()
	}
	p.Active = true
	fe.ProfileID = p.ID
	fe.Active = true

	return s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO profiles (id, first_name, last_name, email, phone, active)
			 VALUES ($1, $2, $3, $4, $5, true) RETURNING created_at`,
			p.ID, p.FirstName, p.LastName, p.Email, p.Phone,
		).Scan(&p.CreatedAt)
		if err != nil {
			return fmt.Errorf("create profile: %w", err)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO face_encodings (id, profile_id, encoding, source_key, confidence, active)
			 VALUES ($1, $2, $3, $4, $5, true) RETURNING created_at`,
			fe.ID, fe.ProfileID, encodingToVector(fe.Encoding), fe.SourceKey, fe.Confidence,
		).Scan(&fe.CreatedAt)
		if err != nil {
			return fmt.Errorf("create face encoding: %w", err)
		}
		return nil
	})
}

// AddEncoding stores another encoding for an active profile.
func (s *PostgresStore) AddEncoding(ctx context.Context, fe *models.FaceEncoding) error {
	if fe.ID == uuid.Nil {
		fe.ID = uuid.New()
	}
	fe.Active = true

	err := s.db.QueryRow(ctx,
		`INSERT INTO face_encodings (id, profile_id, encoding, source_key, confidence, active)
		 SELECT $1, $2, $3, $4, $5, true
		 WHERE EXISTS (SELECT 1 FROM profiles WHERE id = $2 AND active)
		 RETURNING created_at`,
		fe.ID, fe.ProfileID, encodingToVector(fe.Encoding), fe.SourceKey, fe.Confidence,
	).Scan(&fe.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.ErrNotFound.WithMessage("profile not found or inactive")
		}
		return fmt.Errorf("add face encoding: %w", err)
	}
	return nil
}

// GetProfile returns nil, nil when the profile does not exist.
func (s *PostgresStore) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	p := &models.Profile{}
	err := s.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id,
	).Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context, activeOnly bool) ([]models.Profile, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE active OR NOT $1 ORDER BY created_at DESC`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *PostgresStore) CountEncodings(ctx context.Context, profileID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM face_encodings WHERE profile_id = $1 AND active`, profileID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count face encodings: %w", err)
	}
	return count, nil
}

// DeactivateProfile marks a profile and all its encodings inactive.
func (s *PostgresStore) DeactivateProfile(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE profiles SET active = false WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("deactivate profile: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrNotFound.WithMessage("profile not found")
		}
		if _, err := tx.Exec(ctx, `UPDATE face_encodings SET active = false WHERE profile_id = $1`, id); err != nil {
			return fmt.Errorf("deactivate face encodings: %w", err)
		}
		return nil
	})
}

// ActiveEncodings returns every active encoding of an active profile in a
// stable order: oldest first, id as tie-breaker.
func (s *PostgresStore) ActiveEncodings(ctx context.Context) ([]models.FaceEncoding, error) {
	rows, err := s.db.Query(ctx,
		`SELECT fe.id, fe.profile_id, fe.encoding, fe.source_key, fe.confidence, fe.created_at
		 FROM face_encodings fe
		 JOIN profiles p ON p.id = fe.profile_id
		 WHERE fe.active AND p.active
		 ORDER BY fe.created_at, fe.id`)
	if err != nil {
		return nil, fmt.Errorf("list active encodings: %w", err)
	}
	defer rows.Close()

	var encodings []models.FaceEncoding
	for rows.Next() {
		var (
			fe  models.FaceEncoding
			vec pgvector.Vector
		)
		if err := rows.Scan(&fe.ID, &fe.ProfileID, &vec, &fe.SourceKey, &fe.Confidence, &fe.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face encoding: %w", err)
		}
		fe.Encoding = vectorToEncoding(vec)
		fe.Active = true
		encodings = append(encodings, fe)
	}
	return encodings, rows.Err()
}
