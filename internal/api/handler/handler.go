// Package handler contains the HTTP handlers for the enqueue, status and
// cancellation API. Handlers only create and read queue state; every
// mutation after enqueue belongs to the worker.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/applyflow/applyflow/internal/api/response"
	"github.com/applyflow/applyflow/pkg/models"
)

// Store is the persistence surface the HTTP handlers use.
type Store interface {
	Ping(ctx context.Context) error
	CreateWorkflow(ctx context.Context, wf *models.Workflow, items []*models.QueueItem) error
	GetWorkflow(ctx context.Context, id uuid.UUID) (*models.Workflow, error)
	CancelWorkflow(ctx context.Context, id uuid.UUID) (int64, error)
	ListQueueItemsByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.QueueItem, error)
	GetQueueItem(ctx context.Context, id uuid.UUID) (*models.QueueItem, error)
	RemoveFromQueue(ctx context.Context, id uuid.UUID) error
	GetCV(ctx context.Context, userID, cvID uuid.UUID) (*models.CV, error)
}

// urlUUID parses the named chi URL parameter as a UUID. On failure it
// writes a 400 response and returns false.
func urlUUID(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, code, "Invalid "+name+" format", nil)
		return uuid.Nil, false
	}
	return id, true
}
