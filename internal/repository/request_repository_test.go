package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sh1v-ansh/cs426-final/internal/models"
)

func TestRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO queued_requests")).
		WithArgs("corr-1", "student-1", "course-1", "ENROLL", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	req := &models.QueuedRequest{
		CorrelationID: "corr-1",
		StudentID:     "student-1",
		CourseID:      "course-1",
		Operation:     models.OperationEnroll,
	}
	require.NoError(t, repo.Create(context.Background(), req))
	assert.False(t, req.EnqueuedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryFind(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"correlation_id", "student_id", "course_id", "operation", "enqueued_at"}).
		AddRow("corr-1", "student-1", "course-1", "DROP", now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM queued_requests WHERE correlation_id = $1")).
		WithArgs("corr-1").
		WillReturnRows(rows)

	req, err := repo.Find(context.Background(), "corr-1")
	require.NoError(t, err)
	assert.Equal(t, models.OperationDrop, req.Operation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM queued_requests WHERE correlation_id = $1")).
		WithArgs("corr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "corr-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListStale(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	cutoff := time.Now().UTC().Add(-5 * time.Minute)
	rows := sqlmock.NewRows([]string{"correlation_id", "student_id", "course_id", "operation", "enqueued_at"}).
		AddRow("corr-1", "student-1", "course-1", "ENROLL", cutoff.Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("FROM queued_requests WHERE enqueued_at < $1 ORDER BY enqueued_at LIMIT $2")).
		WithArgs(cutoff, 50).
		WillReturnRows(rows)

	stale, err := repo.ListStale(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "corr-1", stale[0].CorrelationID)
	require.NoError(t, mock.ExpectationsWereMet())
}
