package models

import "github.com/lib/pq"

// Course is a read-only snapshot served by the course catalog collaborator.
// Capacity and the enrolled count are only authoritative at fetch time; the
// seat ledger re-checks capacity before committing a reservation.
type Course struct {
	ID            string         `db:"id" json:"id"`
	Code          string         `db:"code" json:"code"`
	Name          string         `db:"name" json:"name"`
	Capacity      int            `db:"capacity" json:"capacity"`
	Enrolled      int            `db:"enrolled" json:"enrolled"`
	Prerequisites pq.StringArray `db:"prerequisites" json:"prerequisites"`
}

// Student is a read-only snapshot served by the student roster collaborator.
type Student struct {
	ID               string         `db:"id" json:"id"`
	Name             string         `db:"name" json:"name"`
	CompletedCourses pq.StringArray `db:"completed_courses" json:"completed_courses"`
}

// HasCompleted reports whether the student finished the given course code.
func (s *Student) HasCompleted(code string) bool {
	for _, completed := range s.CompletedCourses {
		if completed == code {
			return true
		}
	}
	return false
}
