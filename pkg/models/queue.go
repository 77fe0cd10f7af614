package models

import (
	"time"

	"github.com/google/uuid"
)

// Queue item statuses. pending and rate_limited items become claimable once
// next_run_at passes; submitted, failed and cancelled are terminal.
const (
	QueueStatusPending     = "pending"
	QueueStatusProcessing  = "processing"
	QueueStatusSubmitted   = "submitted"
	QueueStatusFailed      = "failed"
	QueueStatusCancelled   = "cancelled"
	QueueStatusRateLimited = "rate_limited"
)

// JobPayload is the snapshot of the job posting captured at enqueue time.
// Later mutations (or deletion) of the job row never affect in-flight work.
type JobPayload struct {
	Title         string `json:"title"`
	Company       string `json:"company"`
	Description   string `json:"description"`
	URL           string `json:"url,omitempty"`
	SearchContext string `json:"search_context,omitempty"`
}

// QueueItem is one unit of pending application-submission work. Items are
// created by the enqueue API and mutated only by the worker after that.
type QueueItem struct {
	ID            uuid.UUID  `db:"id"              json:"id"`
	WorkflowID    uuid.UUID  `db:"workflow_id"     json:"workflow_id"`
	UserID        uuid.UUID  `db:"user_id"         json:"user_id"`
	CVID          uuid.UUID  `db:"cv_id"           json:"cv_id"`
	JobID         *uuid.UUID `db:"job_id"          json:"job_id,omitempty"`
	JobExternalID string     `db:"job_external_id" json:"job_external_id"`
	Status        string     `db:"status"          json:"status"`
	Payload       JobPayload `db:"payload"         json:"payload"`
	Attempts      int        `db:"attempts"        json:"attempts"`
	NextRunAt     time.Time  `db:"next_run_at"     json:"next_run_at"`
	Priority      int        `db:"priority"        json:"priority"`
	LastError     *string    `db:"last_error"      json:"last_error,omitempty"`
	CreatedAt     time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"      json:"updated_at"`
}

// Terminal reports whether the item can never change status again.
// A failed item is terminal only once the worker has exhausted its attempts,
// which is the only way an item ever gets the failed status.
func (q *QueueItem) Terminal() bool {
	switch q.Status {
	case QueueStatusSubmitted, QueueStatusFailed, QueueStatusCancelled:
		return true
	}
	return false
}

// Workflow statuses.
const (
	WorkflowStatusActive    = "active"
	WorkflowStatusCancelled = "cancelled"
)

// Workflow groups the queue items enqueued together by one API call.
// Cancellation operates on a whole workflow.
type Workflow struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	UserID    uuid.UUID `db:"user_id"    json:"user_id"`
	Status    string    `db:"status"     json:"status"`
	Queued    int       `db:"queued"     json:"queued"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
