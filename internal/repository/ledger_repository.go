package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sh1v-ansh/cs426-final/internal/models"
)

// Sentinel outcomes for ledger preconditions. Services translate these into
// rejection reasons; they are expected results under contention, not faults.
var (
	ErrCapacityRace    = errors.New("capacity precondition failed")
	ErrNotEnrolled     = errors.New("no active enrollment for pair")
	ErrAlreadyEnrolled = errors.New("active enrollment already exists")
)

// LedgerRepository is the seat ledger: the durable source of truth for seat
// counts and enrollment decisions. Capacity mutations for one course are
// serialized by the database through single conditional UPDATEs, so multiple
// coordinator processes need no shared lock.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// ReserveSeat atomically claims one seat and records the enrollment. The
// enrolled count is re-checked against capacity inside the transaction, so a
// validator pass that raced another request surfaces as ErrCapacityRace.
// A second active enrollment for the same pair surfaces as ErrAlreadyEnrolled
// via the partial unique index on (student_id, course_id) WHERE ENROLLED.
func (r *LedgerRepository) ReserveSeat(ctx context.Context, courseID, studentID, correlationID string, capacity int) (*models.EnrollmentRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const seed = `INSERT INTO course_seats (course_id, capacity, enrolled)
        VALUES ($1, $2, 0)
        ON CONFLICT (course_id) DO UPDATE SET capacity = EXCLUDED.capacity`
	if _, err := tx.ExecContext(ctx, seed, courseID, capacity); err != nil {
		return nil, fmt.Errorf("seed seat counter: %w", err)
	}

	const claim = `UPDATE course_seats SET enrolled = enrolled + 1
        WHERE course_id = $1 AND enrolled < capacity`
	res, err := tx.ExecContext(ctx, claim, courseID)
	if err != nil {
		return nil, fmt.Errorf("claim seat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim seat result: %w", err)
	}
	if affected == 0 {
		return nil, ErrCapacityRace
	}

	now := time.Now().UTC()
	record := &models.EnrollmentRecord{
		ID:            uuid.NewString(),
		CorrelationID: correlationID,
		StudentID:     studentID,
		CourseID:      courseID,
		Status:        models.EnrollmentStatusEnrolled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	const insert = `INSERT INTO enrollment_records (id, correlation_id, student_id, course_id, status, reason, detail, created_at, updated_at)
        VALUES (:id, :correlation_id, :student_id, :course_id, :status, :reason, :detail, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, record); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrAlreadyEnrolled
		}
		return nil, fmt.Errorf("insert enrollment record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reserve tx: %w", err)
	}
	return record, nil
}

// ReleaseSeat drops the active enrollment for the pair and returns one seat
// to the course, flooring the count at zero. The drop decision is recorded as
// its own row so the request's correlation id stays pollable.
func (r *LedgerRepository) ReleaseSeat(ctx context.Context, courseID, studentID, correlationID string) (*models.EnrollmentRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin release tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const drop = `UPDATE enrollment_records SET status = $3, updated_at = $4
        WHERE student_id = $1 AND course_id = $2 AND status = $5`
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, drop, studentID, courseID, models.EnrollmentStatusDropped, now, models.EnrollmentStatusEnrolled)
	if err != nil {
		return nil, fmt.Errorf("drop enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("drop enrollment result: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotEnrolled
	}

	const release = `UPDATE course_seats SET enrolled = GREATEST(enrolled - 1, 0) WHERE course_id = $1`
	if _, err := tx.ExecContext(ctx, release, courseID); err != nil {
		return nil, fmt.Errorf("release seat: %w", err)
	}

	record := &models.EnrollmentRecord{
		ID:            uuid.NewString(),
		CorrelationID: correlationID,
		StudentID:     studentID,
		CourseID:      courseID,
		Status:        models.EnrollmentStatusDropped,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	const insert = `INSERT INTO enrollment_records (id, correlation_id, student_id, course_id, status, reason, detail, created_at, updated_at)
        VALUES (:id, :correlation_id, :student_id, :course_id, :status, :reason, :detail, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, record); err != nil {
		return nil, fmt.Errorf("insert drop record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit release tx: %w", err)
	}
	return record, nil
}

// RecordRejection persists a terminal rejected decision for a correlation id.
func (r *LedgerRepository) RecordRejection(ctx context.Context, record *models.EnrollmentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.UpdatedAt = time.Now().UTC()
	record.Status = models.EnrollmentStatusRejected
	const insert = `INSERT INTO enrollment_records (id, correlation_id, student_id, course_id, status, reason, detail, created_at, updated_at)
        VALUES (:id, :correlation_id, :student_id, :course_id, :status, :reason, :detail, :created_at, :updated_at)
        ON CONFLICT (correlation_id) DO UPDATE SET status = EXCLUDED.status, reason = EXCLUDED.reason, detail = EXCLUDED.detail, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, insert, record); err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	return nil
}

// FindByCorrelationID returns the decision recorded for a correlation id.
func (r *LedgerRepository) FindByCorrelationID(ctx context.Context, correlationID string) (*models.EnrollmentRecord, error) {
	const query = `SELECT id, correlation_id, student_id, course_id, status, reason, detail, created_at, updated_at
        FROM enrollment_records WHERE correlation_id = $1`
	var record models.EnrollmentRecord
	if err := r.db.GetContext(ctx, &record, query, correlationID); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindActive returns the enrolled record for a (student, course) pair.
func (r *LedgerRepository) FindActive(ctx context.Context, studentID, courseID string) (*models.EnrollmentRecord, error) {
	const query = `SELECT id, correlation_id, student_id, course_id, status, reason, detail, created_at, updated_at
        FROM enrollment_records WHERE student_id = $1 AND course_id = $2 AND status = $3`
	var record models.EnrollmentRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, courseID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListActiveByCourse returns every enrolled record for a course.
func (r *LedgerRepository) ListActiveByCourse(ctx context.Context, courseID string) ([]models.EnrollmentRecord, error) {
	const query = `SELECT id, correlation_id, student_id, course_id, status, reason, detail, created_at, updated_at
        FROM enrollment_records WHERE course_id = $1 AND status = $2 ORDER BY created_at`
	var records []models.EnrollmentRecord
	if err := r.db.SelectContext(ctx, &records, query, courseID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list course roster: %w", err)
	}
	return records, nil
}

// List returns enrollment records filtered by the provided criteria.
func (r *LedgerRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentRecord, int, error) {
	base := "FROM enrollment_records"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	clause := ""
	for i, cond := range conditions {
		if i == 0 {
			clause = " WHERE " + cond
			continue
		}
		clause += " AND " + cond
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, correlation_id, student_id, course_id, status, reason, detail, created_at, updated_at
        %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var records []models.EnrollmentRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollment records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollment records: %w", err)
	}
	return records, total, nil
}

// SeatCount returns the ledger's view of a course's seat usage.
func (r *LedgerRepository) SeatCount(ctx context.Context, courseID string) (enrolled, capacity int, err error) {
	const query = `SELECT enrolled, capacity FROM course_seats WHERE course_id = $1`
	row := r.db.QueryRowxContext(ctx, query, courseID)
	if err := row.Scan(&enrolled, &capacity); err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("seat count: %w", err)
	}
	return enrolled, capacity, nil
}
