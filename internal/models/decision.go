package models

// Machine-readable rejection reasons carried on decisions and records.
const (
	ReasonMissingPrerequisites = "missing_prerequisites"
	ReasonCapacityExceeded     = "capacity_exceeded"
	ReasonNotEnrolled          = "not_enrolled"
	ReasonAlreadyEnrolled      = "already_enrolled"
	ReasonNotFound             = "not_found"
	ReasonInternalError        = "internal_error"
	ReasonRetriesExhausted     = "retries_exhausted"
)

// Decision is the validator's verdict on a single enrollment or drop request.
// Rejections carry both the machine-readable reason code and a human detail
// string; prerequisite rejections additionally list every missing course code.
type Decision struct {
	Accepted             bool     `json:"accepted"`
	Reason               string   `json:"reason,omitempty"`
	Detail               string   `json:"detail,omitempty"`
	MissingPrerequisites []string `json:"missing_prerequisites,omitempty"`
}

// Outcome is the coordinator's public result for a submission.
type Outcome struct {
	CorrelationID        string           `json:"correlation_id"`
	StudentID            string           `json:"student_id"`
	CourseID             string           `json:"course_id"`
	Operation            Operation        `json:"operation"`
	Status               EnrollmentStatus `json:"status"`
	Reason               string           `json:"reason,omitempty"`
	Detail               string           `json:"detail,omitempty"`
	MissingPrerequisites []string         `json:"missing_prerequisites,omitempty"`
}
