package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sh1v-ansh/cs426-final/internal/service"
	"github.com/sh1v-ansh/cs426-final/pkg/response"
)

type rosterExporter interface {
	RenderRoster(ctx context.Context, courseID, format string) (*service.ExportResult, error)
}

// ExportHandler serves course roster downloads.
type ExportHandler struct {
	exports rosterExporter
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports rosterExporter) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Roster godoc
// @Summary Export the enrolled roster for a course
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /courses/{id}/roster/export [get]
func (h *ExportHandler) Roster(c *gin.Context) {
	result, err := h.exports.RenderRoster(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Content)
}
