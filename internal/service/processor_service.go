package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sh1v-ansh/cs426-final/internal/models"
	appErrors "github.com/sh1v-ansh/cs426-final/pkg/errors"
	"github.com/sh1v-ansh/cs426-final/pkg/queue"
)

// ProcessorService drains queued enrollment requests through the
// coordinator's synchronous path and settles their terminal status.
type ProcessorService struct {
	coordinator *CoordinatorService
	ledger      seatLedger
	requests    requestStore
	logger      *zap.Logger
	metrics     *MetricsService

	pendingThreshold time.Duration
}

// NewProcessorService constructs ProcessorService.
func NewProcessorService(coordinator *CoordinatorService, ledger seatLedger, requests requestStore, pendingThreshold time.Duration, metrics *MetricsService, logger *zap.Logger) *ProcessorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pendingThreshold <= 0 {
		pendingThreshold = 5 * time.Minute
	}
	return &ProcessorService{
		coordinator:      coordinator,
		ledger:           ledger,
		requests:         requests,
		logger:           logger,
		metrics:          metrics,
		pendingThreshold: pendingThreshold,
	}
}

// HandleJob is the queue handler. Delivery is at least once, so it first
// checks for an existing terminal record and skips straight to acknowledgement
// on redelivery. Transient faults request a retry; everything else settles
// the request one way or another.
func (p *ProcessorService) HandleJob(ctx context.Context, job queue.Job) error {
	var qr models.QueuedRequest
	if err := json.Unmarshal(job.Payload, &qr); err != nil {
		p.logger.Sugar().Errorw("discarding undecodable request", "job_id", job.ID, "error", err)
		return nil
	}

	if record, err := p.ledger.FindByCorrelationID(ctx, qr.CorrelationID); err == nil && record.Status.Terminal() {
		p.ack(ctx, qr.CorrelationID)
		return nil
	} else if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("idempotency check for %s: %v: %w", qr.CorrelationID, err, queue.ErrRetry)
	}

	outcome, err := p.coordinator.Replay(ctx, qr)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrUnavailable) {
			return fmt.Errorf("replay %s: %v: %w", qr.CorrelationID, err, queue.ErrRetry)
		}
		// Non-retryable fault: settle as rejected rather than leaving the
		// request pending forever.
		p.recordFailure(ctx, qr, models.ReasonInternalError, appErrors.FromError(err).Message)
		p.ack(ctx, qr.CorrelationID)
		return nil
	}

	p.logger.Sugar().Infow("queued request settled",
		"correlation_id", qr.CorrelationID, "operation", qr.Operation, "status", outcome.Status, "reason", outcome.Reason)
	p.ack(ctx, qr.CorrelationID)
	return nil
}

// HandleExhausted records a terminal rejection once a job burns through its
// retry budget, then acknowledges it.
func (p *ProcessorService) HandleExhausted(ctx context.Context, job queue.Job) {
	var qr models.QueuedRequest
	if err := json.Unmarshal(job.Payload, &qr); err != nil {
		p.logger.Sugar().Errorw("cannot settle exhausted job", "job_id", job.ID, "error", err)
		return
	}
	p.recordFailure(ctx, qr, models.ReasonRetriesExhausted, fmt.Sprintf("gave up after %d attempts", job.Attempt))
	p.ack(ctx, qr.CorrelationID)
}

// RecoverPending re-enqueues requests that have sat in the durable table
// beyond the pending threshold, covering jobs lost between broker push and
// acknowledgement. Redelivery of a request that did get processed is harmless
// because HandleJob is idempotent per correlation id.
func (p *ProcessorService) RecoverPending(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.pendingThreshold)
	stale, err := p.requests.ListStale(ctx, cutoff, 100)
	if err != nil {
		p.logger.Sugar().Warnw("pending recovery sweep failed", "error", err)
		return
	}
	for i := range stale {
		qr := stale[i]
		if err := p.coordinator.enqueue(ctx, &qr); err != nil {
			p.logger.Sugar().Warnw("failed to re-enqueue stale request",
				"correlation_id", qr.CorrelationID, "error", err)
			continue
		}
		p.logger.Sugar().Infow("re-enqueued stale request", "correlation_id", qr.CorrelationID)
	}
}

// RunRecovery loops the recovery sweep until the context ends.
func (p *ProcessorService) RunRecovery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RecoverPending(ctx)
		}
	}
}

func (p *ProcessorService) recordFailure(ctx context.Context, qr models.QueuedRequest, reason, detail string) {
	record := &models.EnrollmentRecord{
		CorrelationID: qr.CorrelationID,
		StudentID:     qr.StudentID,
		CourseID:      qr.CourseID,
		Reason:        &reason,
		Detail:        &detail,
	}
	if err := p.ledger.RecordRejection(ctx, record); err != nil {
		p.logger.Sugar().Errorw("failed to record terminal failure",
			"correlation_id", qr.CorrelationID, "reason", reason, "error", err)
		return
	}
	if p.metrics != nil {
		p.metrics.ObserveOutcome(string(qr.Operation), string(models.EnrollmentStatusRejected), reason)
	}
}

func (p *ProcessorService) ack(ctx context.Context, correlationID string) {
	if err := p.requests.Delete(ctx, correlationID); err != nil {
		p.logger.Sugar().Warnw("failed to delete queued request", "correlation_id", correlationID, "error", err)
	}
}
