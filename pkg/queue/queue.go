package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrRetry marks a job failure as transient. Handlers wrap transient faults
// with it to request redelivery; any other error acknowledges the job.
var ErrRetry = errors.New("retryable job failure")

// Job represents a queued task carried through Redis.
type Job struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempt  int             `json:"attempt"`
	Enqueued time.Time       `json:"enqueued"`
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// Config configures worker pool behaviour.
type Config struct {
	Workers     int
	MaxRetries  int
	RetryDelay  time.Duration
	PollTimeout time.Duration
	Logger      *zap.Logger

	// OnExhausted runs after a job burns through every retry, so callers can
	// record a terminal outcome instead of leaving the request pending.
	OnExhausted func(context.Context, Job)
}

// Queue is a Redis list backed dispatcher. Jobs move from the pending list to
// a per-queue processing list on delivery and are removed only after the
// handler settles them, giving at-least-once delivery across restarts.
type Queue struct {
	name       string
	rdb        *redis.Client
	handler    Handler
	workers    int
	maxRetries int
	retryDelay time.Duration
	pollEvery  time.Duration
	logger     *zap.Logger
	exhausted  func(context.Context, Job)

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// New builds a queue bound to the named Redis list.
func New(name string, rdb *redis.Client, handler Handler, cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		rdb:        rdb,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		pollEvery:  cfg.PollTimeout,
		logger:     cfg.Logger,
		exhausted:  cfg.OnExhausted,
	}
}

func (q *Queue) pendingKey() string    { return fmt.Sprintf("queue:%s", q.name) }
func (q *Queue) processingKey() string { return fmt.Sprintf("queue:%s:processing", q.name) }

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Stop cancels workers and waits for them to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name)
}

// Enqueue pushes a job onto the pending list.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := q.rdb.LPush(ctx, q.pendingKey(), raw).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Depth returns the number of jobs waiting for delivery.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.pendingKey()).Result()
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	log := q.logger.Sugar().With("queue", q.name, "worker", workerID)
	for {
		select {
		case <-q.ctx.Done():
			return
		default:
		}

		raw, err := q.rdb.BRPopLPush(q.ctx, q.pendingKey(), q.processingKey(), q.pollEvery).Result()
		if err != nil {
			if err == redis.Nil || q.ctx.Err() != nil {
				continue
			}
			log.Warnw("queue poll failed", "error", err)
			select {
			case <-q.ctx.Done():
			case <-time.After(q.retryDelay):
			}
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			log.Errorw("discarding malformed job", "error", err)
			q.ack(raw)
			continue
		}

		if err := q.handler(q.ctx, job); err != nil {
			q.settleFailure(job, raw, err, log)
			continue
		}
		q.ack(raw)
	}
}

// ack removes the delivered payload from the processing list.
func (q *Queue) ack(raw string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.rdb.LRem(ctx, q.processingKey(), 1, raw).Err(); err != nil {
		q.logger.Sugar().Errorw("failed to ack job", "queue", q.name, "error", err)
	}
}

func (q *Queue) settleFailure(job Job, raw string, err error, log *zap.SugaredLogger) {
	if !errors.Is(err, ErrRetry) {
		log.Errorw("job failed permanently", "job_id", job.ID, "type", job.Type, "error", err)
		q.ack(raw)
		return
	}

	job.Attempt++
	if job.Attempt > q.maxRetries {
		log.Errorw("job exceeded retries", "job_id", job.ID, "type", job.Type, "error", err)
		if q.exhausted != nil {
			q.exhausted(q.ctx, job)
		}
		q.ack(raw)
		return
	}

	delay := backoffDelay(q.retryDelay, job.Attempt)
	log.Warnw("job failed, retrying", "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "delay", delay, "error", err)
	q.ack(raw)

	go func(j Job) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := q.Enqueue(ctx, j); err != nil {
				q.logger.Sugar().Errorw("failed to requeue job", "queue", q.name, "job_id", j.ID, "error", err)
			}
		}
	}(job)
}

// backoffDelay doubles the base delay per attempt, capped at one minute.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= time.Minute {
			return time.Minute
		}
	}
	return delay
}
