package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/applyflow/applyflow/internal/api/response"
	"github.com/applyflow/applyflow/internal/cache"
	"github.com/applyflow/applyflow/internal/store"
	"github.com/applyflow/applyflow/pkg/models"
)

type itemView struct {
	ID            string     `json:"id"`
	JobExternalID string     `json:"job_external_id"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
}

// NewGetWorkflowHandler returns an http.HandlerFunc for
// GET /api/v1/workflows/{workflowID}.
func NewGetWorkflowHandler(s Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workflowID, ok := urlUUID(w, r, "workflowID", "INVALID_WORKFLOW_ID")
		if !ok {
			return
		}

		wf, err := s.GetWorkflow(r.Context(), workflowID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "WORKFLOW_NOT_FOUND", "Workflow not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load workflow", nil)
			return
		}

		items, err := s.ListQueueItemsByWorkflow(r.Context(), workflowID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load queue items", nil)
			return
		}

		counts := make(map[string]int)
		views := make([]itemView, 0, len(items))
		for _, item := range items {
			counts[item.Status]++
			v := itemView{
				ID:            item.ID.String(),
				JobExternalID: item.JobExternalID,
				Status:        item.Status,
				Attempts:      item.Attempts,
				LastError:     item.LastError,
			}
			if !item.Terminal() {
				next := item.NextRunAt
				v.NextRunAt = &next
			}
			views = append(views, v)
		}

		response.JSON(w, map[string]any{
			"workflow_id": wf.ID.String(),
			"status":      wf.Status,
			"queued":      wf.Queued,
			"counts":      counts,
			"items":       views,
			"created_at":  wf.CreatedAt,
		})
	}
}

// NewCancelWorkflowHandler returns an http.HandlerFunc for
// DELETE /api/v1/workflows/{workflowID}. Pending and rate-limited items are
// cancelled immediately; items mid-attempt finish and are never re-claimed.
func NewCancelWorkflowHandler(s Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workflowID, ok := urlUUID(w, r, "workflowID", "INVALID_WORKFLOW_ID")
		if !ok {
			return
		}

		cancelled, err := s.CancelWorkflow(r.Context(), workflowID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "WORKFLOW_NOT_FOUND", "Workflow not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to cancel workflow", nil)
			return
		}

		response.JSON(w, map[string]any{
			"workflow_id":     workflowID.String(),
			"status":          models.WorkflowStatusCancelled,
			"cancelled_items": cancelled,
		})
	}
}

// NewGetItemHandler returns an http.HandlerFunc for
// GET /api/v1/queue/{itemID}. The worker mirrors item statuses into the
// cache; a cache hit answers status polls without touching the database.
func NewGetItemHandler(s Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, ok := urlUUID(w, r, "itemID", "INVALID_ITEM_ID")
		if !ok {
			return
		}

		if status, found, err := c.GetItemStatus(r.Context(), itemID); err == nil && found {
			response.JSON(w, map[string]any{
				"item_id": itemID.String(),
				"status":  status,
			})
			return
		}

		item, err := s.GetQueueItem(r.Context(), itemID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "ITEM_NOT_FOUND", "Queue item not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load queue item", nil)
			return
		}

		v := itemView{
			ID:            item.ID.String(),
			JobExternalID: item.JobExternalID,
			Status:        item.Status,
			Attempts:      item.Attempts,
			LastError:     item.LastError,
		}
		if !item.Terminal() {
			next := item.NextRunAt
			v.NextRunAt = &next
		}
		response.JSON(w, map[string]any{
			"item_id":         v.ID,
			"workflow_id":     item.WorkflowID.String(),
			"job_external_id": v.JobExternalID,
			"status":          v.Status,
			"attempts":        v.Attempts,
			"next_run_at":     v.NextRunAt,
			"last_error":      v.LastError,
		})
	}
}

// NewDeleteItemHandler returns an http.HandlerFunc for
// DELETE /api/v1/queue/{itemID}. Only unclaimed items can be removed;
// anything already claimed or finished stays for the audit trail.
func NewDeleteItemHandler(s Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, ok := urlUUID(w, r, "itemID", "INVALID_ITEM_ID")
		if !ok {
			return
		}

		if err := s.RemoveFromQueue(r.Context(), itemID); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to remove item", nil)
				return
			}
			// Distinguish a missing item from one that is no longer removable.
			if _, getErr := s.GetQueueItem(r.Context(), itemID); getErr == nil {
				response.Error(w, http.StatusConflict, "ITEM_NOT_REMOVABLE",
					"Item is already being processed or finished", nil)
				return
			}
			response.Error(w, http.StatusNotFound, "ITEM_NOT_FOUND", "Queue item not found", nil)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
