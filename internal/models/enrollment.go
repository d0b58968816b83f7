package models

import "time"

// Operation distinguishes the two enrollment mutations.
type Operation string

// Supported operations.
const (
	OperationEnroll Operation = "ENROLL"
	OperationDrop   Operation = "DROP"
)

// EnrollmentStatus represents the lifecycle of an enrollment record.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending  EnrollmentStatus = "PENDING"
	EnrollmentStatusEnrolled EnrollmentStatus = "ENROLLED"
	EnrollmentStatusRejected EnrollmentStatus = "REJECTED"
	EnrollmentStatusDropped  EnrollmentStatus = "DROPPED"
)

// Terminal reports whether the status can no longer change for its
// correlation id. Dropped records are terminal for the request that
// produced them even though the pair may re-enroll later.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentStatusEnrolled || s == EnrollmentStatusRejected || s == EnrollmentStatusDropped
}

// EnrollmentRecord is the durable outcome of one enrollment or drop request.
// At most one record per (student, course) pair holds status ENROLLED at any
// time; the ledger enforces this inside the reservation transaction.
type EnrollmentRecord struct {
	ID            string           `db:"id" json:"id"`
	CorrelationID string           `db:"correlation_id" json:"correlation_id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	CourseID      string           `db:"course_id" json:"course_id"`
	Status        EnrollmentStatus `db:"status" json:"status"`
	Reason        *string          `db:"reason" json:"reason,omitempty"`
	Detail        *string          `db:"detail" json:"detail,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentFilter provides filters for listing enrollment records.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
}

// QueuedRequest is an asynchronous submission awaiting processing. It is
// persisted before the broker push so a crashed worker can be recovered.
type QueuedRequest struct {
	CorrelationID string    `db:"correlation_id" json:"correlation_id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	CourseID      string    `db:"course_id" json:"course_id"`
	Operation     Operation `db:"operation" json:"operation"`
	EnqueuedAt    time.Time `db:"enqueued_at" json:"enqueued_at"`
}

// Pagination carries list metadata in API responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
