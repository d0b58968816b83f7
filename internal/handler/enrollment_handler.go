package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sh1v-ansh/cs426-final/internal/models"
	"github.com/sh1v-ansh/cs426-final/internal/service"
	appErrors "github.com/sh1v-ansh/cs426-final/pkg/errors"
	"github.com/sh1v-ansh/cs426-final/pkg/response"
)

type enrollmentCoordinator interface {
	Submit(ctx context.Context, req service.SubmitRequest, op models.Operation) (*models.Outcome, error)
	SubmitAsync(ctx context.Context, req service.SubmitRequest, op models.Operation) (*models.Outcome, error)
	Status(ctx context.Context, correlationID string) (*models.Outcome, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentRecord, *models.Pagination, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	coordinator enrollmentCoordinator
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(coordinator enrollmentCoordinator) *EnrollmentHandler {
	return &EnrollmentHandler{coordinator: coordinator}
}

// Enroll godoc
// @Summary Enroll a student synchronously
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.SubmitRequest true "Enrollment payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /enroll [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	h.submit(c, models.OperationEnroll)
}

// Drop godoc
// @Summary Drop a student synchronously
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.SubmitRequest true "Drop payload"
// @Success 200 {object} response.Envelope
// @Router /drop [post]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	h.submit(c, models.OperationDrop)
}

// EnrollAsync godoc
// @Summary Queue an enrollment for asynchronous processing
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.SubmitRequest true "Enrollment payload"
// @Success 202 {object} response.Envelope
// @Router /enroll/async [post]
func (h *EnrollmentHandler) EnrollAsync(c *gin.Context) {
	h.submitAsync(c, models.OperationEnroll)
}

// DropAsync godoc
// @Summary Queue a drop for asynchronous processing
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.SubmitRequest true "Drop payload"
// @Success 202 {object} response.Envelope
// @Router /drop/async [post]
func (h *EnrollmentHandler) DropAsync(c *gin.Context) {
	h.submitAsync(c, models.OperationDrop)
}

// Status godoc
// @Summary Poll the outcome of a submission by correlation id
// @Tags Enrollments
// @Produce json
// @Param correlationId path string true "Correlation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollment-status/{correlationId} [get]
func (h *EnrollmentHandler) Status(c *gin.Context) {
	outcome, err := h.coordinator.Status(c.Request.Context(), c.Param("correlationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// List godoc
// @Summary List enrollment records
// @Tags Enrollments
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param courseId query string false "Filter by course"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.StudentID = c.Query("studentId")
	filter.CourseID = c.Query("courseId")
	filter.Status = models.EnrollmentStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	records, pagination, err := h.coordinator.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

func (h *EnrollmentHandler) submit(c *gin.Context, op models.Operation) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	outcome, err := h.coordinator.Submit(c.Request.Context(), req, op)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, statusFor(outcome), outcome, nil)
}

func (h *EnrollmentHandler) submitAsync(c *gin.Context, op models.Operation) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	outcome, err := h.coordinator.SubmitAsync(c.Request.Context(), req, op)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, outcome)
}

// statusFor maps terminal outcomes onto HTTP codes: settled operations are
// 200, rejections are 400 except unknown entities (404) and duplicate
// enrollments (409).
func statusFor(outcome *models.Outcome) int {
	if outcome.Status != models.EnrollmentStatusRejected {
		return http.StatusOK
	}
	switch outcome.Reason {
	case models.ReasonNotFound:
		return http.StatusNotFound
	case models.ReasonAlreadyEnrolled:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
