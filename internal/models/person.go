package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile is an enrolled identity eligible to be matched.
// Profiles are deactivated, never deleted.
type Profile struct {
	ID        uuid.UUID `json:"id" db:"id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// FaceEncoding is the stored feature representation of one enrollment image.
type FaceEncoding struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ProfileID  uuid.UUID `json:"profile_id" db:"profile_id"`
	Encoding   string    `json:"-" db:"encoding"`
	SourceKey  string    `json:"source_key" db:"source_key"`
	Confidence float32   `json:"confidence" db:"confidence"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
