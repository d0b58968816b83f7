package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sh1v-ansh/cs426-final/internal/models"
	"github.com/sh1v-ansh/cs426-final/internal/service"
	appErrors "github.com/sh1v-ansh/cs426-final/pkg/errors"
)

type stubCoordinator struct {
	outcome *models.Outcome
	err     error
	records []models.EnrollmentRecord
}

func (s *stubCoordinator) Submit(ctx context.Context, req service.SubmitRequest, op models.Operation) (*models.Outcome, error) {
	return s.outcome, s.err
}

func (s *stubCoordinator) SubmitAsync(ctx context.Context, req service.SubmitRequest, op models.Operation) (*models.Outcome, error) {
	return s.outcome, s.err
}

func (s *stubCoordinator) Status(ctx context.Context, correlationID string) (*models.Outcome, error) {
	return s.outcome, s.err
}

func (s *stubCoordinator) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentRecord, *models.Pagination, error) {
	return s.records, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(s.records)}, s.err
}

func newEnrollmentRouter(stub *stubCoordinator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewEnrollmentHandler(stub)
	router.POST("/enroll", h.Enroll)
	router.POST("/enroll/async", h.EnrollAsync)
	router.POST("/drop", h.Drop)
	router.GET("/enrollment-status/:correlationId", h.Status)
	router.GET("/enrollments", h.List)
	return router
}

func performJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestEnrollReturnsOutcome(t *testing.T) {
	stub := &stubCoordinator{outcome: &models.Outcome{
		CorrelationID: "corr-1",
		StudentID:     "s1",
		CourseID:      "c1",
		Operation:     models.OperationEnroll,
		Status:        models.EnrollmentStatusEnrolled,
	}}
	router := newEnrollmentRouter(stub)

	recorder := performJSON(t, router, http.MethodPost, "/enroll", `{"student_id":"s1","course_id":"c1"}`)
	assert.Equal(t, http.StatusOK, recorder.Code)

	var envelope struct {
		Data models.Outcome `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	assert.Equal(t, models.EnrollmentStatusEnrolled, envelope.Data.Status)
	assert.Equal(t, "corr-1", envelope.Data.CorrelationID)
}

func TestEnrollRejectionStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		reason string
		want   int
	}{
		{"missing prerequisites", models.ReasonMissingPrerequisites, http.StatusBadRequest},
		{"capacity exceeded", models.ReasonCapacityExceeded, http.StatusBadRequest},
		{"unknown entity", models.ReasonNotFound, http.StatusNotFound},
		{"duplicate enrollment", models.ReasonAlreadyEnrolled, http.StatusConflict},
		{"not enrolled", models.ReasonNotEnrolled, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubCoordinator{outcome: &models.Outcome{
				CorrelationID: "corr-1",
				Status:        models.EnrollmentStatusRejected,
				Reason:        tc.reason,
			}}
			router := newEnrollmentRouter(stub)
			recorder := performJSON(t, router, http.MethodPost, "/enroll", `{"student_id":"s1","course_id":"c1"}`)
			assert.Equal(t, tc.want, recorder.Code)
		})
	}
}

func TestEnrollMalformedPayload(t *testing.T) {
	router := newEnrollmentRouter(&stubCoordinator{})
	recorder := performJSON(t, router, http.MethodPost, "/enroll", `{not json`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestEnrollUnavailableCoordinator(t *testing.T) {
	stub := &stubCoordinator{err: appErrors.Clone(appErrors.ErrUnavailable, "collaborators unavailable")}
	router := newEnrollmentRouter(stub)
	recorder := performJSON(t, router, http.MethodPost, "/enroll", `{"student_id":"s1","course_id":"c1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestEnrollTimeoutEnvelopeCarriesCorrelationID(t *testing.T) {
	stub := &stubCoordinator{err: appErrors.Clone(appErrors.ErrUnavailable,
		"ledger deadline exceeded, poll status for outcome").WithCorrelation("corr-1")}
	router := newEnrollmentRouter(stub)

	recorder := performJSON(t, router, http.MethodPost, "/enroll", `{"student_id":"s1","course_id":"c1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)

	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "corr-1", envelope.Error.CorrelationID)
}

func TestEnrollAsyncReturnsAccepted(t *testing.T) {
	stub := &stubCoordinator{outcome: &models.Outcome{
		CorrelationID: "corr-1",
		Status:        models.EnrollmentStatusPending,
	}}
	router := newEnrollmentRouter(stub)

	recorder := performJSON(t, router, http.MethodPost, "/enroll/async", `{"student_id":"s1","course_id":"c1"}`)
	assert.Equal(t, http.StatusAccepted, recorder.Code)

	var envelope struct {
		Data models.Outcome `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	assert.Equal(t, models.EnrollmentStatusPending, envelope.Data.Status)
	assert.NotEmpty(t, envelope.Data.CorrelationID)
}

func TestStatusUnknownCorrelationID(t *testing.T) {
	stub := &stubCoordinator{err: appErrors.Clone(appErrors.ErrNotFound, "unknown correlation id")}
	router := newEnrollmentRouter(stub)
	recorder := performJSON(t, router, http.MethodGet, "/enrollment-status/corr-missing", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestListEnrollments(t *testing.T) {
	stub := &stubCoordinator{records: []models.EnrollmentRecord{
		{ID: "rec-1", CorrelationID: "corr-1", StudentID: "s1", CourseID: "c1", Status: models.EnrollmentStatusEnrolled},
	}}
	router := newEnrollmentRouter(stub)

	recorder := performJSON(t, router, http.MethodGet, "/enrollments?studentId=s1&status=enrolled", "")
	assert.Equal(t, http.StatusOK, recorder.Code)

	var envelope struct {
		Data       []models.EnrollmentRecord `json:"data"`
		Pagination *models.Pagination        `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "corr-1", envelope.Data[0].CorrelationID)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 1, envelope.Pagination.TotalCount)
}
