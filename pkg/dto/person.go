package dto

import "github.com/google/uuid"

// EnrollRequest is the JSON form of an enrollment. Image is base64,
// optionally with a data URI prefix.
type EnrollRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name"`
	Email     string `json:"email" binding:"required,email"`
	Phone     string `json:"phone"`
	Image     string `json:"image" binding:"required"`
}

type AddFaceRequest struct {
	Image string `json:"image" binding:"required"`
}

type ProfileSummary struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
}

type ProfileResponse struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Active    bool      `json:"active"`
	FaceCount int       `json:"face_count"`
	CreatedAt string    `json:"created_at"`
}

type ProfileListResponse struct {
	Profiles []ProfileResponse `json:"profiles"`
	Total    int               `json:"total"`
}

type FaceEncodingResponse struct {
	ID         uuid.UUID `json:"id"`
	ProfileID  uuid.UUID `json:"profile_id"`
	Confidence float32   `json:"confidence"`
	SourceKey  string    `json:"source_key,omitempty"`
	CreatedAt  string    `json:"created_at"`
}

type EnrollResponse struct {
	Profile  ProfileResponse      `json:"profile"`
	Encoding FaceEncodingResponse `json:"encoding"`
}

// DetectorHealthResponse reports whether the face detector can serve requests.
type DetectorHealthResponse struct {
	Initialized bool   `json:"initialized"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
