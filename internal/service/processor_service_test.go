package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sh1v-ansh/cs426-final/internal/models"
	appErrors "github.com/sh1v-ansh/cs426-final/pkg/errors"
	"github.com/sh1v-ansh/cs426-final/pkg/queue"
)

func queuedJob(t *testing.T, qr models.QueuedRequest) queue.Job {
	t.Helper()
	payload, err := json.Marshal(qr)
	require.NoError(t, err)
	return queue.Job{ID: qr.CorrelationID, Type: "enrollment_request", Payload: payload}
}

func newTestProcessor(catalog *fakeCatalog, roster *fakeRoster, ledger *fakeLedger, requests *fakeRequestStore, jobs *fakeJobQueue) *ProcessorService {
	coordinator := newTestCoordinator(catalog, roster, ledger, requests, jobs)
	return NewProcessorService(coordinator, ledger, requests, time.Minute, nil, zap.NewNop())
}

func TestProcessorSettlesQueuedEnroll(t *testing.T) {
	catalog := &fakeCatalog{course: &models.Course{ID: "c1", Capacity: 10}}
	roster := &fakeRoster{student: &models.Student{}}
	ledger := newFakeLedger()
	requests := newFakeRequestStore()
	processor := newTestProcessor(catalog, roster, ledger, requests, &fakeJobQueue{})

	qr := models.QueuedRequest{CorrelationID: "corr-1", StudentID: "s1", CourseID: "c1", Operation: models.OperationEnroll, EnqueuedAt: time.Now().UTC()}
	require.NoError(t, requests.Create(context.Background(), &qr))

	require.NoError(t, processor.HandleJob(context.Background(), queuedJob(t, qr)))

	record, err := ledger.FindByCorrelationID(context.Background(), "corr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, record.Status)

	// Settled requests are acknowledged out of the durable table.
	_, err = requests.Find(context.Background(), "corr-1")
	assert.Error(t, err)
}

func TestProcessorRedeliveryIsIdempotent(t *testing.T) {
	catalog := &fakeCatalog{course: &models.Course{ID: "c1", Capacity: 10}}
	roster := &fakeRoster{student: &models.Student{}}
	ledger := newFakeLedger()
	requests := newFakeRequestStore()
	processor := newTestProcessor(catalog, roster, ledger, requests, &fakeJobQueue{})

	qr := models.QueuedRequest{CorrelationID: "corr-1", StudentID: "s1", CourseID: "c1", Operation: models.OperationEnroll, EnqueuedAt: time.Now().UTC()}
	job := queuedJob(t, qr)

	require.NoError(t, processor.HandleJob(context.Background(), job))
	require.NoError(t, processor.HandleJob(context.Background(), job))

	// The second delivery short-circuits on the terminal record instead of
	// replaying; the seat is claimed exactly once.
	assert.Equal(t, 1, ledger.enrolledCount("c1"))
}

func TestProcessorTransientFaultRequestsRetry(t *testing.T) {
	catalog := &fakeCatalog{errs: []error{
		appErrors.Clone(appErrors.ErrUnavailable, "down"),
		appErrors.Clone(appErrors.ErrUnavailable, "down"),
		appErrors.Clone(appErrors.ErrUnavailable, "down"),
	}}
	roster := &fakeRoster{student: &models.Student{}}
	requests := newFakeRequestStore()
	processor := newTestProcessor(catalog, roster, newFakeLedger(), requests, &fakeJobQueue{})

	qr := models.QueuedRequest{CorrelationID: "corr-1", StudentID: "s1", CourseID: "c1", Operation: models.OperationEnroll, EnqueuedAt: time.Now().UTC()}
	require.NoError(t, requests.Create(context.Background(), &qr))

	err := processor.HandleJob(context.Background(), queuedJob(t, qr))
	require.Error(t, err)
	assert.True(t, errors.Is(err, queue.ErrRetry))

	// Still pending; nothing acknowledged or settled yet.
	_, err = requests.Find(context.Background(), "corr-1")
	assert.NoError(t, err)
}

func TestProcessorRejectionSettlesAndAcks(t *testing.T) {
	catalog := &fakeCatalog{course: &models.Course{ID: "c1", Capacity: 10, Prerequisites: []string{"CS220"}}}
	roster := &fakeRoster{student: &models.Student{}}
	ledger := newFakeLedger()
	requests := newFakeRequestStore()
	processor := newTestProcessor(catalog, roster, ledger, requests, &fakeJobQueue{})

	qr := models.QueuedRequest{CorrelationID: "corr-1", StudentID: "s1", CourseID: "c1", Operation: models.OperationEnroll, EnqueuedAt: time.Now().UTC()}
	require.NoError(t, requests.Create(context.Background(), &qr))

	require.NoError(t, processor.HandleJob(context.Background(), queuedJob(t, qr)))

	record, err := ledger.FindByCorrelationID(context.Background(), "corr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusRejected, record.Status)
	require.NotNil(t, record.Reason)
	assert.Equal(t, models.ReasonMissingPrerequisites, *record.Reason)

	_, err = requests.Find(context.Background(), "corr-1")
	assert.Error(t, err)
}

func TestProcessorDiscardsUndecodableJob(t *testing.T) {
	processor := newTestProcessor(&fakeCatalog{}, &fakeRoster{}, newFakeLedger(), newFakeRequestStore(), &fakeJobQueue{})

	err := processor.HandleJob(context.Background(), queue.Job{ID: "junk", Payload: []byte("{not json")})
	assert.NoError(t, err)
}

func TestProcessorHandleExhausted(t *testing.T) {
	ledger := newFakeLedger()
	requests := newFakeRequestStore()
	processor := newTestProcessor(&fakeCatalog{}, &fakeRoster{}, ledger, requests, &fakeJobQueue{})

	qr := models.QueuedRequest{CorrelationID: "corr-1", StudentID: "s1", CourseID: "c1", Operation: models.OperationEnroll, EnqueuedAt: time.Now().UTC()}
	require.NoError(t, requests.Create(context.Background(), &qr))

	job := queuedJob(t, qr)
	job.Attempt = 5
	processor.HandleExhausted(context.Background(), job)

	record, err := ledger.FindByCorrelationID(context.Background(), "corr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusRejected, record.Status)
	require.NotNil(t, record.Reason)
	assert.Equal(t, models.ReasonRetriesExhausted, *record.Reason)

	_, err = requests.Find(context.Background(), "corr-1")
	assert.Error(t, err)
}

func TestProcessorRecoverPendingReEnqueuesStale(t *testing.T) {
	requests := newFakeRequestStore()
	jobs := &fakeJobQueue{}
	processor := newTestProcessor(&fakeCatalog{}, &fakeRoster{}, newFakeLedger(), requests, jobs)

	stale := models.QueuedRequest{CorrelationID: "corr-old", StudentID: "s1", CourseID: "c1", Operation: models.OperationEnroll, EnqueuedAt: time.Now().UTC().Add(-time.Hour)}
	fresh := models.QueuedRequest{CorrelationID: "corr-new", StudentID: "s2", CourseID: "c1", Operation: models.OperationEnroll, EnqueuedAt: time.Now().UTC()}
	require.NoError(t, requests.Create(context.Background(), &stale))
	require.NoError(t, requests.Create(context.Background(), &fresh))

	processor.RecoverPending(context.Background())

	require.Equal(t, 1, jobs.count())
	var replay models.QueuedRequest
	require.NoError(t, json.Unmarshal(jobs.jobs[0].Payload, &replay))
	assert.Equal(t, "corr-old", replay.CorrelationID)
}
