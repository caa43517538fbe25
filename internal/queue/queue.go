// Package queue provides named in-process job queues with per-queue retry,
// backoff, retention, and idempotent job keys.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes one job payload. A nil error completes the job; an error
// triggers a retry until the queue's attempt budget is exhausted.
type Handler func(ctx context.Context, payload []byte) error

// Policy is the retry/backoff/retention policy for one queue.
type Policy struct {
	Attempts        int
	Backoff         time.Duration
	Workers         int
	KeepCompleted   int
	KeepFailed      int
	CompletedMaxAge time.Duration
}

// Job is one unit of work. Jobs are keyed so re-submitting the same logical
// unit (same document, chunk, or report+section) does not run twice while the
// first submission is still in flight.
type Job struct {
	Key        string    `json:"key"`
	Payload    []byte    `json:"-"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Stats is a point-in-time view of a queue.
type Stats struct {
	Name      string `json:"name"`
	Pending   int    `json:"pending"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

// Queue is one named job queue with its own workers and policy.
type Queue struct {
	name        string
	policy      Policy
	handler     Handler
	jobs        chan *Job
	logger      *zap.Logger
	yieldTo     []*Queue
	onExhausted func(job *Job, err error)

	mu        sync.Mutex
	inFlight  map[string]bool
	completed []*Job
	failed    []*Job

	done     chan struct{}
	wg       sync.WaitGroup
	started  bool
	stopOnce sync.Once
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets a logger for job lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithYieldTo lowers this queue's scheduling priority: workers hold off while
// any of the given queues has a backlog, so bulk work is not starved.
func WithYieldTo(others ...*Queue) Option {
	return func(q *Queue) { q.yieldTo = others }
}

// WithOnExhausted registers a callback invoked once a job has used its whole
// attempt budget and still failed. The job is already in the dead set when the
// callback runs.
func WithOnExhausted(fn func(job *Job, err error)) Option {
	return func(q *Queue) { q.onExhausted = fn }
}

// New creates a queue. Start must be called before jobs are processed.
func New(name string, policy Policy, handler Handler, opts ...Option) *Queue {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if policy.Workers <= 0 {
		policy.Workers = 1
	}
	if policy.Backoff <= 0 {
		policy.Backoff = time.Second
	}
	q := &Queue{
		name:     name,
		policy:   policy,
		handler:  handler,
		jobs:     make(chan *Job, 1024),
		inFlight: make(map[string]bool),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Start launches the queue's workers. They run until ctx is cancelled or
// Stop is called.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.policy.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Stop stops accepting work and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.done) })
	q.wg.Wait()
}

// Enqueue submits a job. payload is JSON-marshalled. Returns false when a job
// with the same key is already pending or running (idempotent re-submission).
func (q *Queue) Enqueue(key string, payload interface{}) (bool, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal %s job payload: %w", q.name, err)
	}
	q.mu.Lock()
	if q.inFlight[key] {
		q.mu.Unlock()
		if q.logger != nil {
			q.logger.Debug("duplicate job ignored", zap.String("queue", q.name), zap.String("key", key))
		}
		return false, nil
	}
	q.inFlight[key] = true
	q.mu.Unlock()

	job := &Job{Key: key, Payload: data, EnqueuedAt: time.Now()}
	select {
	case <-q.done:
		q.release(key)
		return false, fmt.Errorf("queue %s is stopped", q.name)
	default:
	}
	select {
	case q.jobs <- job:
		return true, nil
	case <-q.done:
		q.release(key)
		return false, fmt.Errorf("queue %s is stopped", q.name)
	}
}

// Depth returns the number of jobs waiting or running.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

// Stats returns a snapshot of queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Name:      q.name,
		Pending:   len(q.inFlight),
		Completed: len(q.completed),
		Failed:    len(q.failed),
	}
}

// FailedJobs returns the retained dead set for operator inspection.
func (q *Queue) FailedJobs() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, len(q.failed))
	copy(out, q.failed)
	return out
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case job := <-q.jobs:
			q.yield(ctx)
			q.process(ctx, job)
		}
	}
}

// yield delays low-priority work while any higher-priority queue has a
// backlog, up to a bounded wait so this queue cannot stall forever.
func (q *Queue) yield(ctx context.Context) {
	if len(q.yieldTo) == 0 {
		return
	}
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		busy := false
		for _, other := range q.yieldTo {
			if other.Depth() > 0 {
				busy = true
				break
			}
		}
		if !busy {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// process runs a job through the attempt/backoff loop and records the outcome.
func (q *Queue) process(ctx context.Context, job *Job) {
	backoff := q.policy.Backoff
	var lastErr error
	for attempt := 1; attempt <= q.policy.Attempts; attempt++ {
		job.Attempts = attempt
		lastErr = q.handler(ctx, job.Payload)
		if lastErr == nil {
			q.finish(job, nil)
			return
		}
		if q.logger != nil {
			q.logger.Warn("job attempt failed",
				zap.String("queue", q.name),
				zap.String("key", job.Key),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
		}
		if attempt == q.policy.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			q.finish(job, ctx.Err())
			return
		case <-q.done:
			q.finish(job, lastErr)
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	q.finish(job, lastErr)
}

// finish records the job outcome, applies retention, and releases its key.
func (q *Queue) finish(job *Job, err error) {
	job.FinishedAt = time.Now()
	q.mu.Lock()
	if err == nil {
		q.completed = append(q.completed, job)
		q.completed = trimRetention(q.completed, q.policy.KeepCompleted, q.policy.CompletedMaxAge)
	} else {
		job.LastError = err.Error()
		q.failed = append(q.failed, job)
		q.failed = trimRetention(q.failed, q.policy.KeepFailed, 0)
	}
	delete(q.inFlight, job.Key)
	q.mu.Unlock()

	if err != nil && q.onExhausted != nil {
		q.onExhausted(job, err)
	}
}

func (q *Queue) release(key string) {
	q.mu.Lock()
	delete(q.inFlight, key)
	q.mu.Unlock()
}

// trimRetention drops the oldest entries beyond keep, and entries older than
// maxAge when maxAge > 0.
func trimRetention(jobs []*Job, keep int, maxAge time.Duration) []*Job {
	if keep > 0 && len(jobs) > keep {
		jobs = jobs[len(jobs)-keep:]
	}
	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge)
		i := 0
		for i < len(jobs) && jobs[i].FinishedAt.Before(cutoff) {
			i++
		}
		jobs = jobs[i:]
	}
	return jobs
}
