// Package queue implements the stage job queue: one independent
// channel-backed worker pool per pipeline stage, each with its own
// concurrency limit, bounded exponential-backoff retries, per-attempt
// timeout, and a failure callback that reports the attempt count so
// observers can tell "will retry" from "exhausted".
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
	"github.com/mountee32/legalcopilot-sub009/internal/resilience"
)

// Job is one unit of stage work. Identity is (PipelineRunID, Stage);
// handlers must be idempotent under reprocessing.
type Job struct {
	ID         string
	Stage      model.Stage
	Payload    model.StagePayload
	EnqueuedAt time.Time
}

// Handler processes one job. Errors propagate to the queue's retry and
// failure bookkeeping; handlers never manage retries themselves.
type Handler func(ctx context.Context, job Job) error

// FailureFunc is invoked after every failed attempt. attempt counts from
// 1; attempt == maxAttempts means the retry budget is exhausted.
type FailureFunc func(job Job, attempt, maxAttempts int, err error)

// StageConfig tunes one stage's worker pool.
type StageConfig struct {
	// Concurrency is the number of parallel in-flight jobs. AI-bound
	// stages (classify, extract) run tighter than lightweight ones.
	Concurrency int
	// MaxAttempts is the total attempt budget per job.
	MaxAttempts int
	// BaseBackoff is the exponential backoff base between attempts.
	BaseBackoff time.Duration
	// JobTimeout bounds each attempt; a hung attempt counts as failed.
	JobTimeout time.Duration
	// Depth is the queue buffer size.
	Depth int
}

func (c StageConfig) withDefaults() StageConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 2 * time.Minute
	}
	if c.Depth <= 0 {
		c.Depth = 256
	}
	return c
}

type stagePool struct {
	cfg     StageConfig
	jobs    chan Job
	handler Handler
}

// Queue routes stage jobs to per-stage worker pools.
type Queue struct {
	mu        sync.Mutex
	stages    map[model.Stage]*stagePool
	onFailure FailureFunc
	wg        sync.WaitGroup
	started   bool
	stopped   bool
}

// New creates a queue with one pool per known stage. Missing stages get
// default configs. onFailure may be nil.
func New(configs map[model.Stage]StageConfig, onFailure FailureFunc) *Queue {
	q := &Queue{
		stages:    make(map[model.Stage]*stagePool, len(model.Stages)),
		onFailure: onFailure,
	}
	for _, stage := range model.Stages {
		cfg := configs[stage].withDefaults()
		q.stages[stage] = &stagePool{
			cfg:  cfg,
			jobs: make(chan Job, cfg.Depth),
		}
	}
	return q
}

// Register installs the handler for a stage. Must be called before Start.
func (q *Queue) Register(stage model.Stage, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if pool, ok := q.stages[stage]; ok {
		pool.handler = h
	}
}

// Start launches the worker pools. Workers exit when ctx is cancelled or
// Stop closes the queues.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	for stage, pool := range q.stages {
		for i := 0; i < pool.cfg.Concurrency; i++ {
			q.wg.Add(1)
			go q.worker(ctx, stage, pool)
		}
	}
	zap.L().Info("queue: workers started", zap.Int("stages", len(q.stages)))
}

// Stop closes all stage queues and waits for in-flight jobs to drain.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	for _, pool := range q.stages {
		close(pool.jobs)
	}
	q.mu.Unlock()

	q.wg.Wait()
	zap.L().Info("queue: drained")
}

// Enqueue submits a job to the stage's queue and returns its job ID.
// Returns an error for unknown stages or when the queue is full. The
// send stays under the mutex: Stop closes the job channels under the
// same lock, so the stopped check and the send are atomic with respect
// to shutdown.
func (q *Queue) Enqueue(stage model.Stage, payload model.StagePayload) (string, error) {
	job := Job{
		ID:         uuid.New().String(),
		Stage:      stage,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	pool, ok := q.stages[stage]
	if !ok {
		return "", eris.New(fmt.Sprintf("queue: unknown stage %q", stage))
	}
	if q.stopped {
		return "", eris.New("queue: stopped")
	}

	select {
	case pool.jobs <- job:
		return job.ID, nil
	default:
		return "", eris.New(fmt.Sprintf("queue: stage %s full", stage))
	}
}

// Depth returns the number of queued (not yet claimed) jobs for a stage.
func (q *Queue) Depth(stage model.Stage) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if pool, ok := q.stages[stage]; ok {
		return len(pool.jobs)
	}
	return 0
}

func (q *Queue) worker(ctx context.Context, stage model.Stage, pool *stagePool) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-pool.jobs:
			if !ok {
				return
			}
			q.process(ctx, job, pool)
		}
	}
}

func (q *Queue) process(ctx context.Context, job Job, pool *stagePool) {
	log := zap.L().With(
		zap.String("stage", string(job.Stage)),
		zap.String("job_id", job.ID),
		zap.String("run_id", job.Payload.PipelineRunID),
	)

	if pool.handler == nil {
		log.Error("queue: no handler registered")
		if q.onFailure != nil {
			q.onFailure(job, pool.cfg.MaxAttempts, pool.cfg.MaxAttempts,
				eris.New(fmt.Sprintf("queue: no handler for stage %s", job.Stage)))
		}
		return
	}

	backoff := resilience.Policy{
		BaseDelay:  pool.cfg.BaseBackoff,
		Multiplier: 2.0,
		Jitter:     0.25,
	}

	for attempt := 1; attempt <= pool.cfg.MaxAttempts; attempt++ {
		err := q.runAttempt(ctx, job, pool)
		if err == nil {
			log.Debug("queue: job complete", zap.Int("attempt", attempt))
			return
		}

		log.Warn("queue: attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", pool.cfg.MaxAttempts),
			zap.Error(err),
		)
		if q.onFailure != nil {
			q.onFailure(job, attempt, pool.cfg.MaxAttempts, err)
		}

		if attempt == pool.cfg.MaxAttempts || ctx.Err() != nil {
			return
		}

		timer := time.NewTimer(resilience.Backoff(attempt-1, backoff))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runAttempt executes one handler attempt under the stage's timeout,
// converting panics into errors so a bad job cannot kill a worker.
func (q *Queue) runAttempt(ctx context.Context, job Job, pool *stagePool) (err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, pool.cfg.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = eris.New(fmt.Sprintf("queue: handler panic: %v", r))
		}
	}()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- eris.New(fmt.Sprintf("queue: handler panic: %v", r))
			}
		}()
		done <- pool.handler(attemptCtx, job)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		return eris.Wrap(attemptCtx.Err(), fmt.Sprintf("queue: stage %s timed out", job.Stage))
	}
}
