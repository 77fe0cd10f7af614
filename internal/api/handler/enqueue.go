package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/applyflow/applyflow/internal/api/response"
	"github.com/applyflow/applyflow/internal/store"
	"github.com/applyflow/applyflow/pkg/models"
)

// maxJobsPerWorkflow caps one enqueue call. Larger batches should be split
// by the caller; the worker claims in batches of 20 anyway.
const maxJobsPerWorkflow = 50

type enqueueJob struct {
	JobID         string `json:"job_id,omitempty"`
	JobExternalID string `json:"job_external_id"`
	Title         string `json:"title"`
	Company       string `json:"company"`
	Description   string `json:"description"`
	URL           string `json:"url,omitempty"`
	SearchContext string `json:"search_context,omitempty"`
	Priority      int    `json:"priority,omitempty"`
}

type enqueueRequest struct {
	UserID string       `json:"user_id"`
	CVID   string       `json:"cv_id"`
	Jobs   []enqueueJob `json:"jobs"`
}

// NewEnqueueHandler returns an http.HandlerFunc for POST /api/v1/applications.
// It snapshots each job posting into the item payload, so later changes to
// the job data never affect queued work.
func NewEnqueueHandler(s Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "user_id must be a valid UUID", nil)
			return
		}
		cvID, err := uuid.Parse(req.CVID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "cv_id must be a valid UUID", nil)
			return
		}

		if len(req.Jobs) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobs is required", nil)
			return
		}
		if len(req.Jobs) > maxJobsPerWorkflow {
			response.Error(w, http.StatusBadRequest, "TOO_MANY_JOBS",
				"A workflow may contain at most 50 jobs", nil)
			return
		}
		for i, job := range req.Jobs {
			if job.JobExternalID == "" {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"job_external_id is required for every job", map[string]int{"index": i})
				return
			}
		}

		// Reject up front when the CV cannot be processed; a missing CV
		// would otherwise fail every item at claim time.
		if _, err := s.GetCV(r.Context(), userID, cvID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "CV_NOT_FOUND", "CV not found for this user", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to look up CV", nil)
			return
		}

		now := time.Now().UTC()
		wf := &models.Workflow{
			ID:        uuid.New(),
			UserID:    userID,
			Status:    models.WorkflowStatusActive,
			Queued:    len(req.Jobs),
			CreatedAt: now,
			UpdatedAt: now,
		}

		items := make([]*models.QueueItem, 0, len(req.Jobs))
		for _, job := range req.Jobs {
			item := &models.QueueItem{
				ID:            uuid.New(),
				WorkflowID:    wf.ID,
				UserID:        userID,
				CVID:          cvID,
				JobExternalID: job.JobExternalID,
				Status:        models.QueueStatusPending,
				Payload: models.JobPayload{
					Title:         job.Title,
					Company:       job.Company,
					Description:   job.Description,
					URL:           job.URL,
					SearchContext: job.SearchContext,
				},
				NextRunAt: now,
				Priority:  job.Priority,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if job.JobID != "" {
				if jobID, err := uuid.Parse(job.JobID); err == nil {
					item.JobID = &jobID
				}
			}
			items = append(items, item)
		}

		if err := s.CreateWorkflow(r.Context(), wf, items); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to enqueue workflow", nil)
			return
		}

		response.Created(w, map[string]any{
			"workflow_id": wf.ID.String(),
			"queued":      wf.Queued,
		})
	}
}
