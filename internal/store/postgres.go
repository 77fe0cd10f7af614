package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/applyflow/applyflow/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const queueItemColumns = `id, workflow_id, user_id, cv_id, job_id, job_external_id,
	status, payload, attempts, next_run_at, priority, last_error, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Workflows ---

// CreateWorkflow inserts the workflow and all its queue items in one
// transaction so a half-enqueued batch never becomes visible.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *models.Workflow, items []*models.QueueItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO workflows (id, user_id, status, queued, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		wf.ID, wf.UserID, wf.Status, wf.Queued, wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create workflow: %w", err)
	}

	for _, item := range items {
		_, err = tx.Exec(ctx,
			`INSERT INTO queue_items (`+queueItemColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			item.ID, item.WorkflowID, item.UserID, item.CVID, item.JobID, item.JobExternalID,
			item.Status, item.Payload, item.Attempts, item.NextRunAt, item.Priority,
			item.LastError, item.CreatedAt, item.UpdatedAt)
		if err != nil {
			return fmt.Errorf("create queue item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit enqueue tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	var w models.Workflow
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, status, queued, created_at, updated_at FROM workflows WHERE id = $1`, id,
	).Scan(&w.ID, &w.UserID, &w.Status, &w.Queued, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return &w, nil
}

func (s *PostgresStore) CancelWorkflow(ctx context.Context, id uuid.UUID) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE workflows SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, models.WorkflowStatusCancelled)
	if err != nil {
		return 0, fmt.Errorf("cancel workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotFound
	}

	// Items already processing are left alone; they finish their current
	// attempt and are skipped by every later claim.
	itemTag, err := tx.Exec(ctx,
		`UPDATE queue_items SET status = $2, updated_at = NOW()
		 WHERE workflow_id = $1 AND status IN ($3, $4)`,
		id, models.QueueStatusCancelled, models.QueueStatusPending, models.QueueStatusRateLimited)
	if err != nil {
		return 0, fmt.Errorf("cancel queue items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit cancel tx: %w", err)
	}
	return itemTag.RowsAffected(), nil
}

func (s *PostgresStore) ListQueueItemsByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.QueueItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+queueItemColumns+` FROM queue_items
		 WHERE workflow_id = $1 ORDER BY created_at ASC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()
	return scanQueueItems(rows)
}

// --- Queue claiming ---

// ClaimBatch atomically selects and marks claimable items as processing.
// FOR UPDATE SKIP LOCKED guarantees two concurrent claimers never receive
// the same row. Items of cancelled workflows are excluded here, not only at
// cancel time, so a backoff-rescheduled item of a cancelled workflow is
// never picked up again.
func (s *PostgresStore) ClaimBatch(ctx context.Context, limit int) ([]*models.QueueItem, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE queue_items SET status = $1, updated_at = NOW()
		 WHERE id IN (
		     SELECT q.id FROM queue_items q
		     JOIN workflows w ON w.id = q.workflow_id
		     WHERE q.status IN ($2, $3)
		       AND q.next_run_at <= NOW()
		       AND w.status <> $4
		     ORDER BY q.priority DESC, q.next_run_at ASC
		     LIMIT $5
		     FOR UPDATE OF q SKIP LOCKED
		 )
		 RETURNING `+queueItemColumns,
		models.QueueStatusProcessing,
		models.QueueStatusPending, models.QueueStatusRateLimited,
		models.WorkflowStatusCancelled,
		limit)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	items, err := scanQueueItems(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING does not preserve the subquery's ordering.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].NextRunAt.Before(items[j].NextRunAt)
	})
	return items, nil
}

func (s *PostgresStore) GetQueueItem(ctx context.Context, id uuid.UUID) (*models.QueueItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+queueItemColumns+` FROM queue_items WHERE id = $1`, id)
	item, err := scanQueueItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

// RemoveFromQueue deletes a not-yet-claimed item outright. Claimed or
// terminal items are left untouched.
func (s *PostgresStore) RemoveFromQueue(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM queue_items WHERE id = $1 AND status IN ($2, $3)`,
		id, models.QueueStatusPending, models.QueueStatusRateLimited)
	if err != nil {
		return fmt.Errorf("remove from queue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Worker-side transitions ---
//
// All of these guard on status = processing: only the claiming worker may
// move an item out of processing, and a terminal item can never be mutated.

func (s *PostgresStore) MarkSubmitted(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_items SET status = $2, last_error = NULL, updated_at = NOW()
		 WHERE id = $1 AND status = $3`,
		id, models.QueueStatusSubmitted, models.QueueStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_items
		 SET status = $2, attempts = attempts + 1, last_error = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, models.QueueStatusFailed, reason, models.QueueStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RescheduleRetry records a failed attempt and puts the item back into the
// claimable pool after its backoff delay.
func (s *PostgresStore) RescheduleRetry(ctx context.Context, id uuid.UUID, nextRunAt time.Time, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_items
		 SET status = $2, attempts = attempts + 1, next_run_at = $3, last_error = $4, updated_at = NOW()
		 WHERE id = $1 AND status = $5`,
		id, models.QueueStatusPending, nextRunAt, reason, models.QueueStatusProcessing)
	if err != nil {
		return fmt.Errorf("reschedule retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RescheduleRateLimited parks the item until the cooldown passes. The
// attempts counter is deliberately untouched: rate limiting is expected and
// must not consume the retry budget.
func (s *PostgresStore) RescheduleRateLimited(ctx context.Context, id uuid.UUID, nextRunAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_items
		 SET status = $2, next_run_at = $3, last_error = 'rate_limited', updated_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, models.QueueStatusRateLimited, nextRunAt, models.QueueStatusProcessing)
	if err != nil {
		return fmt.Errorf("reschedule rate limited: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Janitor ---

// ReapStaleClaims returns items stuck in processing (worker crashed
// mid-attempt) to the claimable pool.
func (s *PostgresStore) ReapStaleClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_items
		 SET status = $1, next_run_at = NOW(), last_error = 'claim expired', updated_at = NOW()
		 WHERE status = $2 AND updated_at < $3`,
		models.QueueStatusPending, models.QueueStatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reap stale claims: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SweepCancelledWorkflows marks leftover claimable items of cancelled
// workflows as cancelled. ClaimBatch already skips them; this keeps the
// queue table honest for status queries.
func (s *PostgresStore) SweepCancelledWorkflows(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_items SET status = $1, updated_at = NOW()
		 WHERE status IN ($2, $3)
		   AND workflow_id IN (SELECT id FROM workflows WHERE status = $4)`,
		models.QueueStatusCancelled,
		models.QueueStatusPending, models.QueueStatusRateLimited,
		models.WorkflowStatusCancelled)
	if err != nil {
		return 0, fmt.Errorf("sweep cancelled workflows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Applications ---

func (s *PostgresStore) CreateApplication(ctx context.Context, app *models.Application) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO applications (id, user_id, job_external_id, status, submitted_at,
		     cover_letter, response_data, error_message, resume_id, negotiation_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		app.ID, app.UserID, app.JobExternalID, app.Status, app.SubmittedAt,
		app.CoverLetter, app.ResponseData, app.ErrorMessage, app.ResumeID,
		app.NegotiationID, app.CreatedAt)
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountApplicationsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM applications WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count applications: %w", err)
	}
	return count, nil
}

// --- CVs ---

func (s *PostgresStore) GetCV(ctx context.Context, userID, cvID uuid.UUID) (*models.CV, error) {
	var cv models.CV
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, parsed_data, created_at, updated_at
		 FROM cvs WHERE id = $1 AND user_id = $2`, cvID, userID,
	).Scan(&cv.ID, &cv.UserID, &cv.ParsedData, &cv.CreatedAt, &cv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cv: %w", err)
	}
	return &cv, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

// --- helpers ---

func scanQueueItem(row pgx.Row) (*models.QueueItem, error) {
	var item models.QueueItem
	err := row.Scan(&item.ID, &item.WorkflowID, &item.UserID, &item.CVID, &item.JobID,
		&item.JobExternalID, &item.Status, &item.Payload, &item.Attempts,
		&item.NextRunAt, &item.Priority, &item.LastError, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func scanQueueItems(rows pgx.Rows) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
