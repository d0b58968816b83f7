package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sh1v-ansh/cs426-final/internal/models"
)

// RequestRepository persists queued requests before they enter the broker.
// The table is the recovery source for jobs lost between push and ack.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create persists a new queued request.
func (r *RequestRepository) Create(ctx context.Context, req *models.QueuedRequest) error {
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now().UTC()
	}
	const query = `INSERT INTO queued_requests (correlation_id, student_id, course_id, operation, enqueued_at)
        VALUES (:correlation_id, :student_id, :course_id, :operation, :enqueued_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create queued request: %w", err)
	}
	return nil
}

// Find returns a queued request by correlation id.
func (r *RequestRepository) Find(ctx context.Context, correlationID string) (*models.QueuedRequest, error) {
	const query = `SELECT correlation_id, student_id, course_id, operation, enqueued_at
        FROM queued_requests WHERE correlation_id = $1`
	var req models.QueuedRequest
	if err := r.db.GetContext(ctx, &req, query, correlationID); err != nil {
		return nil, err
	}
	return &req, nil
}

// Delete acknowledges a processed request.
func (r *RequestRepository) Delete(ctx context.Context, correlationID string) error {
	const query = `DELETE FROM queued_requests WHERE correlation_id = $1`
	if _, err := r.db.ExecContext(ctx, query, correlationID); err != nil {
		return fmt.Errorf("delete queued request: %w", err)
	}
	return nil
}

// ListStale returns requests enqueued before the cutoff, oldest first. The
// recovery sweep re-enqueues them in case the broker copy was lost.
func (r *RequestRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]models.QueuedRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT correlation_id, student_id, course_id, operation, enqueued_at
        FROM queued_requests WHERE enqueued_at < $1 ORDER BY enqueued_at LIMIT $2`
	var requests []models.QueuedRequest
	if err := r.db.SelectContext(ctx, &requests, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list stale requests: %w", err)
	}
	return requests, nil
}
