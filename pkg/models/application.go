package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Application statuses. Rows are written once, on a terminal outcome.
const (
	ApplicationStatusSubmitted = "submitted"
	ApplicationStatusFailed    = "failed"
)

// Application is the durable record of a completed-or-attempted submission.
// The worker inserts exactly one row per terminal queue item outcome, never
// on a transient retry. The submission limiter counts these rows.
type Application struct {
	ID            uuid.UUID       `db:"id"              json:"id"`
	UserID        uuid.UUID       `db:"user_id"         json:"user_id"`
	JobExternalID string          `db:"job_external_id" json:"job_external_id"`
	Status        string          `db:"status"          json:"status"`
	SubmittedAt   *time.Time      `db:"submitted_at"    json:"submitted_at,omitempty"`
	CoverLetter   string          `db:"cover_letter"    json:"cover_letter,omitempty"`
	ResponseData  json.RawMessage `db:"response_data"   json:"response_data,omitempty"`
	ErrorMessage  *string         `db:"error_message"   json:"error_message,omitempty"`
	ResumeID      *string         `db:"resume_id"       json:"resume_id,omitempty"`
	NegotiationID *string         `db:"negotiation_id"  json:"negotiation_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at"      json:"created_at"`
}
