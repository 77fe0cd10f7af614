package store

import (
	"context"
	"errors"
	"time"

	"github.com/applyflow/applyflow/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
// It is the only resource shared between worker processes; cross-process
// coordination happens exclusively through ClaimBatch.
type Store interface {
	Ping(ctx context.Context) error

	// Workflows and enqueueing.
	CreateWorkflow(ctx context.Context, wf *models.Workflow, items []*models.QueueItem) error
	GetWorkflow(ctx context.Context, id uuid.UUID) (*models.Workflow, error)
	// CancelWorkflow marks the workflow cancelled and bulk-cancels its
	// pending and rate_limited items. Items already processing finish their
	// current attempt; ClaimBatch never picks them up again afterwards.
	CancelWorkflow(ctx context.Context, id uuid.UUID) (int64, error)
	ListQueueItemsByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.QueueItem, error)

	// Queue claiming and worker-side transitions.
	ClaimBatch(ctx context.Context, limit int) ([]*models.QueueItem, error)
	GetQueueItem(ctx context.Context, id uuid.UUID) (*models.QueueItem, error)
	RemoveFromQueue(ctx context.Context, id uuid.UUID) error
	MarkSubmitted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	RescheduleRetry(ctx context.Context, id uuid.UUID, nextRunAt time.Time, reason string) error
	RescheduleRateLimited(ctx context.Context, id uuid.UUID, nextRunAt time.Time) error

	// Janitor operations.
	ReapStaleClaims(ctx context.Context, cutoff time.Time) (int64, error)
	SweepCancelledWorkflows(ctx context.Context) (int64, error)

	// Applications (append-only) and limiter counts.
	CreateApplication(ctx context.Context, app *models.Application) error
	CountApplicationsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)

	// CV store collaborator.
	GetCV(ctx context.Context, userID, cvID uuid.UUID) (*models.CV, error)

	// API keys.
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
}
