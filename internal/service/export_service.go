package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sh1v-ansh/cs426-final/internal/models"
	appErrors "github.com/sh1v-ansh/cs426-final/pkg/errors"
	"github.com/sh1v-ansh/cs426-final/pkg/export"
)

type rosterLister interface {
	ListActiveByCourse(ctx context.Context, courseID string) ([]models.EnrollmentRecord, error)
	SeatCount(ctx context.Context, courseID string) (enrolled, capacity int, err error)
}

// ExportService renders a course's enrolled roster as CSV or PDF.
type ExportService struct {
	ledger rosterLister
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// ExportResult bundles the rendered document with transport metadata.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// NewExportService constructs ExportService.
func NewExportService(ledger rosterLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		ledger: ledger,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

// RenderRoster produces the roster document in the requested format.
func (s *ExportService) RenderRoster(ctx context.Context, courseID, format string) (*ExportResult, error) {
	records, err := s.ledger.ListActiveByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course roster")
	}

	table := export.Table{
		Columns: []string{"student_id", "status", "enrolled_at"},
	}
	for _, record := range records {
		table.Rows = append(table.Rows, []string{
			record.StudentID,
			string(record.Status),
			record.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	switch strings.ToLower(format) {
	case "", "csv":
		content, err := s.csv.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv roster")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("roster-%s.csv", courseID),
		}, nil
	case "pdf":
		enrolled, capacity, err := s.ledger.SeatCount(ctx, courseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load seat count")
		}
		title := fmt.Sprintf("Roster %s (%d/%d seats)", courseID, enrolled, capacity)
		content, err := s.pdf.Render(table, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf roster")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("roster-%s.pdf", courseID),
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}
