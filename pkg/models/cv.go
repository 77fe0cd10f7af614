package models

import (
	"time"

	"github.com/google/uuid"
)

// CV is a stored, previously uploaded resume. ParsedData is nil until the
// (out of band) parsing pipeline has run; the worker treats an unparsed CV
// as a permanent item error.
type CV struct {
	ID         uuid.UUID  `db:"id"          json:"id"`
	UserID     uuid.UUID  `db:"user_id"     json:"user_id"`
	ParsedData *ParsedCV  `db:"parsed_data" json:"parsed_data,omitempty"`
	CreatedAt  time.Time  `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"  json:"updated_at"`
}

// ParsedCV is the structured content extracted from an uploaded resume.
type ParsedCV struct {
	FullName   string   `json:"full_name"`
	Email      string   `json:"email,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	Experience []string `json:"experience,omitempty"`
	Education  []string `json:"education,omitempty"`
}

// CustomizedCV is a ParsedCV rewritten by the AI customizer for one
// specific job posting.
type CustomizedCV struct {
	ParsedCV
	Highlights []string `json:"highlights,omitempty"`
}
