package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sh1v-ansh/cs426-final/internal/models"
)

func TestValidateEnrollMissingPrerequisites(t *testing.T) {
	course := &models.Course{ID: "c1", Capacity: 30, Enrolled: 0, Prerequisites: []string{"CS220", "CS230", "CS375"}}
	student := &models.Student{ID: "s1", CompletedCourses: []string{"CS187"}}

	decision := Validate(course, student, models.OperationEnroll, false)

	require.False(t, decision.Accepted)
	assert.Equal(t, models.ReasonMissingPrerequisites, decision.Reason)
	assert.Equal(t, []string{"CS220", "CS230", "CS375"}, decision.MissingPrerequisites)
	assert.Contains(t, decision.Detail, "CS220")
}

func TestValidateEnrollPartialPrerequisites(t *testing.T) {
	course := &models.Course{ID: "c1", Capacity: 30, Prerequisites: []string{"CS220", "CS230", "CS375"}}
	student := &models.Student{ID: "s1", CompletedCourses: []string{"CS230", "CS101"}}

	decision := Validate(course, student, models.OperationEnroll, false)

	require.False(t, decision.Accepted)
	assert.Equal(t, []string{"CS220", "CS375"}, decision.MissingPrerequisites)
}

func TestValidateEnrollSatisfiedPrerequisites(t *testing.T) {
	course := &models.Course{ID: "c1", Capacity: 10, Enrolled: 5, Prerequisites: []string{"CS220", "CS230", "CS375"}}
	student := &models.Student{ID: "s1", CompletedCourses: []string{"CS220", "CS230", "CS375"}}

	decision := Validate(course, student, models.OperationEnroll, false)

	assert.True(t, decision.Accepted)
	assert.Empty(t, decision.MissingPrerequisites)
}

func TestValidateEnrollCapacityExceeded(t *testing.T) {
	course := &models.Course{ID: "c1", Capacity: 10, Enrolled: 10}
	student := &models.Student{ID: "s1"}

	decision := Validate(course, student, models.OperationEnroll, false)

	require.False(t, decision.Accepted)
	assert.Equal(t, models.ReasonCapacityExceeded, decision.Reason)
	assert.Contains(t, decision.Detail, "10/10")
}

func TestValidateEnrollZeroCapacity(t *testing.T) {
	course := &models.Course{ID: "c1", Capacity: 0, Enrolled: 0}
	student := &models.Student{ID: "s1", CompletedCourses: []string{"CS101"}}

	decision := Validate(course, student, models.OperationEnroll, false)

	require.False(t, decision.Accepted)
	assert.Equal(t, models.ReasonCapacityExceeded, decision.Reason)
}

// Prerequisites win over capacity: a full course still reports the missing
// list so the student learns the real blocker first.
func TestValidateEnrollPrerequisitesCheckedBeforeCapacity(t *testing.T) {
	course := &models.Course{ID: "c1", Capacity: 1, Enrolled: 1, Prerequisites: []string{"CS220"}}
	student := &models.Student{ID: "s1"}

	decision := Validate(course, student, models.OperationEnroll, false)

	assert.Equal(t, models.ReasonMissingPrerequisites, decision.Reason)
}

func TestValidateEnrollEmptyPrerequisites(t *testing.T) {
	course := &models.Course{ID: "c1", Capacity: 5, Enrolled: 0}
	student := &models.Student{ID: "s1"}

	decision := Validate(course, student, models.OperationEnroll, false)

	assert.True(t, decision.Accepted)
}

func TestValidateMissingListIsSortedAndDeduplicated(t *testing.T) {
	course := &models.Course{ID: "c1", Capacity: 5, Prerequisites: []string{"CS375", "CS220", "CS375", "CS230"}}
	student := &models.Student{ID: "s1"}

	decision := Validate(course, student, models.OperationEnroll, false)

	assert.Equal(t, []string{"CS220", "CS230", "CS375"}, decision.MissingPrerequisites)
}

// The missing list must equal exactly prerequisites − completed for every
// combination, not merely be non-empty.
func TestValidateMissingListIsExactSetDifference(t *testing.T) {
	cases := []struct {
		name      string
		required  []string
		completed []string
		missing   []string
	}{
		{"disjoint", []string{"A", "B"}, []string{"C"}, []string{"A", "B"}},
		{"subset", []string{"A", "B"}, []string{"A", "B", "C"}, nil},
		{"overlap", []string{"A", "B", "C"}, []string{"B"}, []string{"A", "C"}},
		{"empty_completed", []string{"A"}, nil, []string{"A"}},
		{"empty_required", nil, []string{"A"}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			course := &models.Course{ID: "c1", Capacity: 100, Prerequisites: tc.required}
			student := &models.Student{ID: "s1", CompletedCourses: tc.completed}
			decision := Validate(course, student, models.OperationEnroll, false)
			assert.Equal(t, tc.missing, decision.MissingPrerequisites)
			assert.Equal(t, len(tc.missing) == 0, decision.Accepted)
		})
	}
}

func TestValidateDropRequiresActiveEnrollment(t *testing.T) {
	course := &models.Course{ID: "c1", Capacity: 10, Enrolled: 5}
	student := &models.Student{ID: "s1"}

	decision := Validate(course, student, models.OperationDrop, false)
	require.False(t, decision.Accepted)
	assert.Equal(t, models.ReasonNotEnrolled, decision.Reason)

	decision = Validate(course, student, models.OperationDrop, true)
	assert.True(t, decision.Accepted)
}

func TestValidateUnknownOperation(t *testing.T) {
	course := &models.Course{ID: "c1"}
	student := &models.Student{ID: "s1"}

	decision := Validate(course, student, models.Operation("AUDIT"), false)

	require.False(t, decision.Accepted)
	assert.Equal(t, models.ReasonInternalError, decision.Reason)
}
