package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sh1v-ansh/cs426-final/internal/models"
)

// Validate decides whether a single enrollment or drop request may proceed,
// given snapshots of the course and student and whether the pair currently
// holds an active enrollment. It is deterministic and performs no I/O.
//
// Prerequisite rejections report the exact missing set rather than a bare
// boolean so callers can tell a student precisely what is absent.
func Validate(course *models.Course, student *models.Student, op models.Operation, activeEnrollment bool) models.Decision {
	switch op {
	case models.OperationDrop:
		if !activeEnrollment {
			return models.Decision{
				Reason: models.ReasonNotEnrolled,
				Detail: fmt.Sprintf("student %s has no active enrollment in course %s", student.ID, course.ID),
			}
		}
		return models.Decision{Accepted: true}

	case models.OperationEnroll:
		missing := missingPrerequisites(course, student)
		if len(missing) > 0 {
			return models.Decision{
				Reason:               models.ReasonMissingPrerequisites,
				Detail:               "missing prerequisites: " + strings.Join(missing, ", "),
				MissingPrerequisites: missing,
			}
		}
		if course.Enrolled >= course.Capacity {
			return models.Decision{
				Reason: models.ReasonCapacityExceeded,
				Detail: fmt.Sprintf("course %s is full (%d/%d seats)", course.ID, course.Enrolled, course.Capacity),
			}
		}
		return models.Decision{Accepted: true}

	default:
		return models.Decision{
			Reason: models.ReasonInternalError,
			Detail: fmt.Sprintf("unknown operation %q", op),
		}
	}
}

// missingPrerequisites computes the sorted set difference
// prerequisites(course) − completed(student).
func missingPrerequisites(course *models.Course, student *models.Student) []string {
	completed := make(map[string]struct{}, len(student.CompletedCourses))
	for _, code := range student.CompletedCourses {
		completed[code] = struct{}{}
	}

	var missing []string
	seen := make(map[string]struct{}, len(course.Prerequisites))
	for _, required := range course.Prerequisites {
		if _, ok := completed[required]; ok {
			continue
		}
		if _, dup := seen[required]; dup {
			continue
		}
		seen[required] = struct{}{}
		missing = append(missing, required)
	}
	sort.Strings(missing)
	return missing
}
