package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sh1v-ansh/cs426-final/internal/models"
	"github.com/sh1v-ansh/cs426-final/internal/repository"
	appErrors "github.com/sh1v-ansh/cs426-final/pkg/errors"
	"github.com/sh1v-ansh/cs426-final/pkg/queue"
)

type courseCatalog interface {
	GetCourse(ctx context.Context, id string) (*models.Course, error)
}

type studentRoster interface {
	GetStudent(ctx context.Context, id string) (*models.Student, error)
}

type seatLedger interface {
	ReserveSeat(ctx context.Context, courseID, studentID, correlationID string, capacity int) (*models.EnrollmentRecord, error)
	ReleaseSeat(ctx context.Context, courseID, studentID, correlationID string) (*models.EnrollmentRecord, error)
	RecordRejection(ctx context.Context, record *models.EnrollmentRecord) error
	FindByCorrelationID(ctx context.Context, correlationID string) (*models.EnrollmentRecord, error)
	FindActive(ctx context.Context, studentID, courseID string) (*models.EnrollmentRecord, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentRecord, int, error)
}

type requestStore interface {
	Create(ctx context.Context, req *models.QueuedRequest) error
	Find(ctx context.Context, correlationID string) (*models.QueuedRequest, error)
	Delete(ctx context.Context, correlationID string) error
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]models.QueuedRequest, error)
}

type jobQueue interface {
	Enqueue(ctx context.Context, job queue.Job) error
}

// RetryPolicy bounds fetch retries against a collaborator.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// SubmitRequest describes an enrollment or drop payload.
type SubmitRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
}

// CoordinatorService orchestrates catalog, roster, validator and seat ledger
// to settle enrollment requests, synchronously or through the queue.
type CoordinatorService struct {
	catalog   courseCatalog
	roster    studentRoster
	ledger    seatLedger
	requests  requestStore
	jobs      jobQueue
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService

	deadline     time.Duration
	catalogRetry RetryPolicy
	rosterRetry  RetryPolicy
}

// CoordinatorConfig bundles tunables for the coordinator.
type CoordinatorConfig struct {
	Deadline     time.Duration
	CatalogRetry RetryPolicy
	RosterRetry  RetryPolicy
}

// NewCoordinatorService constructs CoordinatorService.
func NewCoordinatorService(catalog courseCatalog, roster studentRoster, ledger seatLedger, requests requestStore, jobs jobQueue, cfg CoordinatorConfig, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *CoordinatorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 10 * time.Second
	}
	if cfg.CatalogRetry.Attempts <= 0 {
		cfg.CatalogRetry.Attempts = 3
	}
	if cfg.RosterRetry.Attempts <= 0 {
		cfg.RosterRetry.Attempts = 3
	}
	return &CoordinatorService{
		catalog:      catalog,
		roster:       roster,
		ledger:       ledger,
		requests:     requests,
		jobs:         jobs,
		validator:    validate,
		logger:       logger,
		metrics:      metrics,
		deadline:     cfg.Deadline,
		catalogRetry: cfg.CatalogRetry,
		rosterRetry:  cfg.RosterRetry,
	}
}

// Submit processes one request synchronously under the configured deadline.
// Rejections come back as outcomes, not errors; only unavailability and
// internal faults surface as errors.
func (s *CoordinatorService) Submit(ctx context.Context, req SubmitRequest, op models.Operation) (*models.Outcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	return s.process(ctx, uuid.NewString(), req.StudentID, req.CourseID, op)
}

// Replay drives a queued request through the synchronous path, reusing its
// correlation id so redelivery stays idempotent.
func (s *CoordinatorService) Replay(ctx context.Context, qr models.QueuedRequest) (*models.Outcome, error) {
	return s.process(ctx, qr.CorrelationID, qr.StudentID, qr.CourseID, qr.Operation)
}

// SubmitAsync persists the request, hands it to the queue and returns its
// correlation id immediately. Validation happens when a worker replays it.
func (s *CoordinatorService) SubmitAsync(ctx context.Context, req SubmitRequest, op models.Operation) (*models.Outcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	qr := &models.QueuedRequest{
		CorrelationID: uuid.NewString(),
		StudentID:     req.StudentID,
		CourseID:      req.CourseID,
		Operation:     op,
		EnqueuedAt:    time.Now().UTC(),
	}
	if err := s.requests.Create(ctx, qr); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist queued request")
	}

	// The row above is the durable copy; if the broker push fails the
	// recovery sweep re-enqueues it, so the submission is still accepted.
	if err := s.enqueue(ctx, qr); err != nil {
		s.logger.Sugar().Warnw("broker push failed, leaving request for recovery",
			"correlation_id", qr.CorrelationID, "error", err)
	}

	return &models.Outcome{
		CorrelationID: qr.CorrelationID,
		StudentID:     qr.StudentID,
		CourseID:      qr.CourseID,
		Operation:     op,
		Status:        models.EnrollmentStatusPending,
	}, nil
}

// Status resolves a correlation id to its current state: a terminal ledger
// record, a still-queued request, or nothing.
func (s *CoordinatorService) Status(ctx context.Context, correlationID string) (*models.Outcome, error) {
	record, err := s.ledger.FindByCorrelationID(ctx, correlationID)
	if err == nil {
		return outcomeFromRecord(record), nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment record")
	}

	qr, err := s.requests.Find(ctx, correlationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown correlation id")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load queued request")
	}
	return &models.Outcome{
		CorrelationID: qr.CorrelationID,
		StudentID:     qr.StudentID,
		CourseID:      qr.CourseID,
		Operation:     qr.Operation,
		Status:        models.EnrollmentStatusPending,
	}, nil
}

// List returns enrollment records with pagination metadata.
func (s *CoordinatorService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentRecord, *models.Pagination, error) {
	records, total, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollment records")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return records, pagination, nil
}

func (s *CoordinatorService) process(ctx context.Context, correlationID, studentID, courseID string, op models.Operation) (*models.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	course, student, err := s.fetchSnapshots(ctx, courseID, studentID)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNotFound) {
			return s.reject(ctx, correlationID, studentID, courseID, op, models.Decision{
				Reason: models.ReasonNotFound,
				Detail: appErrors.FromError(err).Message,
			}), nil
		}
		if appErrors.Is(err, appErrors.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "collaborators unavailable")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch snapshots")
	}

	activeEnrollment := false
	if op == models.OperationDrop {
		if _, err := s.ledger.FindActive(ctx, studentID, courseID); err == nil {
			activeEnrollment = true
		} else if err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active enrollment")
		}
	}

	decision := Validate(course, student, op, activeEnrollment)
	if !decision.Accepted {
		return s.reject(ctx, correlationID, studentID, courseID, op, decision), nil
	}

	var record *models.EnrollmentRecord
	switch op {
	case models.OperationEnroll:
		record, err = s.ledger.ReserveSeat(ctx, courseID, studentID, correlationID, course.Capacity)
	case models.OperationDrop:
		record, err = s.ledger.ReleaseSeat(ctx, courseID, studentID, correlationID)
	}
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCapacityRace):
			// Another request won the last seat between our snapshot and the
			// ledger's re-check. An ordinary rejection, not a fault.
			if s.metrics != nil {
				s.metrics.ObserveCapacityRace()
			}
			return s.reject(ctx, correlationID, studentID, courseID, op, models.Decision{
				Reason: models.ReasonCapacityExceeded,
				Detail: "seat claimed by a concurrent request",
			}), nil
		case errors.Is(err, repository.ErrAlreadyEnrolled):
			return s.reject(ctx, correlationID, studentID, courseID, op, models.Decision{
				Reason: models.ReasonAlreadyEnrolled,
				Detail: "student already holds a seat in this course",
			}), nil
		case errors.Is(err, repository.ErrNotEnrolled):
			return s.reject(ctx, correlationID, studentID, courseID, op, models.Decision{
				Reason: models.ReasonNotEnrolled,
				Detail: "no active enrollment to drop",
			}), nil
		case errors.Is(err, context.DeadlineExceeded):
			// The mutation may or may not have committed; the error carries the
			// correlation id so the caller can poll it rather than assume failure.
			return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "ledger deadline exceeded, poll status for outcome").WithCorrelation(correlationID)
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "seat ledger failure")
		}
	}

	outcome := outcomeFromRecord(record)
	outcome.Operation = op
	if s.metrics != nil {
		s.metrics.ObserveOutcome(string(op), string(outcome.Status), outcome.Reason)
	}
	s.logger.Sugar().Infow("request settled",
		"correlation_id", correlationID, "student_id", studentID, "course_id", courseID,
		"operation", op, "status", outcome.Status)
	return outcome, nil
}

// fetchSnapshots loads the course and student concurrently, retrying each
// side independently on transient faults.
func (s *CoordinatorService) fetchSnapshots(ctx context.Context, courseID, studentID string) (*models.Course, *models.Student, error) {
	type courseResult struct {
		course *models.Course
		err    error
	}
	type studentResult struct {
		student *models.Student
		err     error
	}

	courseCh := make(chan courseResult, 1)
	studentCh := make(chan studentResult, 1)

	go func() {
		var course *models.Course
		err := withRetry(ctx, s.catalogRetry, func(ctx context.Context) error {
			var ferr error
			course, ferr = s.catalog.GetCourse(ctx, courseID)
			return ferr
		})
		courseCh <- courseResult{course: course, err: err}
	}()

	go func() {
		var student *models.Student
		err := withRetry(ctx, s.rosterRetry, func(ctx context.Context) error {
			var ferr error
			student, ferr = s.roster.GetStudent(ctx, studentID)
			return ferr
		})
		studentCh <- studentResult{student: student, err: err}
	}()

	cr := <-courseCh
	sr := <-studentCh

	// Not-found beats unavailable: a definite miss on one side should not be
	// masked by a transient fault on the other.
	for _, err := range []error{cr.err, sr.err} {
		if err != nil && appErrors.Is(err, appErrors.ErrNotFound) {
			return nil, nil, err
		}
	}
	if cr.err != nil {
		return nil, nil, cr.err
	}
	if sr.err != nil {
		return nil, nil, sr.err
	}
	return cr.course, sr.student, nil
}

// reject records and returns a terminal rejection outcome. Persistence is
// best effort for the synchronous path; the response itself carries the
// decision either way.
func (s *CoordinatorService) reject(ctx context.Context, correlationID, studentID, courseID string, op models.Operation, decision models.Decision) *models.Outcome {
	record := &models.EnrollmentRecord{
		CorrelationID: correlationID,
		StudentID:     studentID,
		CourseID:      courseID,
		Status:        models.EnrollmentStatusRejected,
		Reason:        &decision.Reason,
		Detail:        &decision.Detail,
	}
	if err := s.ledger.RecordRejection(ctx, record); err != nil {
		s.logger.Sugar().Warnw("failed to persist rejection",
			"correlation_id", correlationID, "reason", decision.Reason, "error", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveOutcome(string(op), string(models.EnrollmentStatusRejected), decision.Reason)
	}
	return &models.Outcome{
		CorrelationID:        correlationID,
		StudentID:            studentID,
		CourseID:             courseID,
		Operation:            op,
		Status:               models.EnrollmentStatusRejected,
		Reason:               decision.Reason,
		Detail:               decision.Detail,
		MissingPrerequisites: decision.MissingPrerequisites,
	}
}

func (s *CoordinatorService) enqueue(ctx context.Context, qr *models.QueuedRequest) error {
	payload, err := json.Marshal(qr)
	if err != nil {
		return err
	}
	return s.jobs.Enqueue(ctx, queue.Job{
		ID:      qr.CorrelationID,
		Type:    "enrollment_request",
		Payload: payload,
	})
}

// withRetry runs fn up to policy.Attempts times, doubling the backoff after
// each transient failure. Only unavailability is retried; a not-found or
// internal fault returns immediately.
func withRetry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := policy.Backoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return appErrors.Wrap(ctx.Err(), appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "deadline expired while retrying")
			case <-timer.C:
			}
			backoff *= 2
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !appErrors.Is(err, appErrors.ErrUnavailable) {
			return err
		}
	}
	return err
}

func outcomeFromRecord(record *models.EnrollmentRecord) *models.Outcome {
	outcome := &models.Outcome{
		CorrelationID: record.CorrelationID,
		StudentID:     record.StudentID,
		CourseID:      record.CourseID,
		Status:        record.Status,
	}
	if record.Reason != nil {
		outcome.Reason = *record.Reason
	}
	if record.Detail != nil {
		outcome.Detail = *record.Detail
	}
	return outcome
}
