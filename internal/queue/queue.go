package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// ErrJobTimeout is recorded when a handler is still running once the
// per-job ceiling elapses. The handler keeps running in the background;
// whatever it eventually returns is discarded.
var ErrJobTimeout = errors.New("job timeout")

// Handler executes a single job attempt.
type Handler[P, R any] func(ctx context.Context, payload P) (R, error)

// Options tunes a queue. Zero values fall back to the defaults.
type Options struct {
	Concurrency int           // max jobs in flight at once (default 2)
	MaxRetries  int           // execution attempts before permanent failure (default 3)
	Timeout     time.Duration // per-attempt ceiling (default 5m)
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Minute
	}
	return o
}

// Job is a unit of work owned by exactly one queue for its lifetime.
// Result and Error are mutually exclusive and only set in terminal states.
type Job[P, R any] struct {
	ID          string     `json:"id"`
	Payload     P          `json:"-"`
	Status      Status     `json:"status"`
	Result      R          `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Retries     int        `json:"retries"`
}

// EventType identifies a terminal lifecycle event.
type EventType string

const (
	EventComplete EventType = "complete"
	EventFailed   EventType = "failed"
)

// Event carries a snapshot of the job at its terminal transition.
type Event[P, R any] struct {
	Type EventType
	Job  Job[P, R]
}

// Queue executes typed payloads through a single bound handler with
// bounded concurrency, immediate bounded retries and a per-attempt
// timeout. All state is in memory and lost on process restart.
type Queue[P, R any] struct {
	name    string
	handler Handler[P, R]
	opts    Options

	mu        sync.Mutex
	jobs      map[string]*Job[P, R]
	pending   []string // FIFO; retried jobs re-append at the back
	inFlight  int
	listeners []func(Event[P, R])
}

// New creates a queue bound to handler. The handler binding is final.
func New[P, R any](name string, handler Handler[P, R], opts Options) *Queue[P, R] {
	return &Queue[P, R]{
		name:    name,
		handler: handler,
		opts:    opts.withDefaults(),
		jobs:    make(map[string]*Job[P, R]),
	}
}

// Name returns the queue name.
func (q *Queue[P, R]) Name() string { return q.name }

// Enqueue registers a payload for asynchronous processing and returns
// the generated job id immediately. Progress is observable only via
// GetJob/GetStatus or subscribed lifecycle events; handler errors never
// propagate back to the caller.
func (q *Queue[P, R]) Enqueue(payload P) string {
	id := uuid.New().String()
	q.mu.Lock()
	q.jobs[id] = &Job[P, R]{
		ID:        id,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	q.pending = append(q.pending, id)
	q.mu.Unlock()

	q.dispatch()
	return id
}

// GetJob returns a snapshot of the job at call time.
func (q *Queue[P, R]) GetJob(id string) (Job[P, R], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return Job[P, R]{}, false
	}
	return *job, true
}

// GetStatus returns the current status of a job.
func (q *Queue[P, R]) GetStatus(id string) (Status, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return "", false
	}
	return job.Status, true
}

// GetAllJobs returns snapshots of every tracked job. Debugging only.
func (q *Queue[P, R]) GetAllJobs() []Job[P, R] {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := make([]Job[P, R], 0, len(q.jobs))
	for _, job := range q.jobs {
		jobs = append(jobs, *job)
	}
	return jobs
}

// Subscribe registers a listener invoked on every terminal transition.
// Listeners run synchronously on the dispatching goroutine and must not
// block for long.
func (q *Queue[P, R]) Subscribe(fn func(Event[P, R])) {
	q.mu.Lock()
	q.listeners = append(q.listeners, fn)
	q.mu.Unlock()
}

// Cleanup evicts terminal jobs whose completion is older than maxAge
// and returns the number removed. Pending and processing jobs are never
// touched, so it is safe to call concurrently with dispatch.
func (q *Queue[P, R]) Cleanup(maxAge time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	now := time.Now()
	for id, job := range q.jobs {
		terminal := job.Status == StatusComplete || job.Status == StatusFailed
		if terminal && job.CompletedAt != nil && now.Sub(*job.CompletedAt) > maxAge {
			delete(q.jobs, id)
			removed++
		}
	}
	return removed
}

// dispatch starts pending jobs while concurrency slots are free. It is
// driven off enqueue and slot release, not a polling interval.
func (q *Queue[P, R]) dispatch() {
	q.mu.Lock()
	for q.inFlight < q.opts.Concurrency && len(q.pending) > 0 {
		id := q.pending[0]
		q.pending = q.pending[1:]
		job, ok := q.jobs[id]
		if !ok {
			continue
		}
		now := time.Now()
		job.Status = StatusProcessing
		job.StartedAt = &now
		q.inFlight++
		go q.run(id, job.Payload)
	}
	q.mu.Unlock()
}

// run executes one attempt, racing the handler against the timeout.
func (q *Queue[P, R]) run(id string, payload P) {
	ctx, cancel := context.WithTimeout(context.Background(), q.opts.Timeout)
	defer cancel()

	type outcome struct {
		result R
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero R
				done <- outcome{zero, fmt.Errorf("handler panic: %v", r)}
			}
		}()
		result, err := q.handler(ctx, payload)
		done <- outcome{result, err}
	}()

	var result R
	var err error
	select {
	case o := <-done:
		result, err = o.result, o.err
	case <-ctx.Done():
		err = ErrJobTimeout
	}

	q.finish(id, result, err)
}

// finish records the attempt outcome, requeues or finalizes the job,
// releases the slot and immediately dispatches the next pending job.
func (q *Queue[P, R]) finish(id string, result R, err error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.inFlight--
		q.mu.Unlock()
		q.dispatch()
		return
	}

	var event *Event[P, R]
	now := time.Now()
	if err == nil {
		job.Status = StatusComplete
		job.Result = result
		job.CompletedAt = &now
		event = &Event[P, R]{Type: EventComplete, Job: *job}
	} else {
		job.Retries++
		if job.Retries < q.opts.MaxRetries {
			job.Status = StatusPending
			q.pending = append(q.pending, id)
			log.Printf("[queue:%s] job %s attempt %d failed, requeueing: %v", q.name, id, job.Retries, err)
		} else {
			job.Status = StatusFailed
			job.Error = err.Error()
			job.CompletedAt = &now
			event = &Event[P, R]{Type: EventFailed, Job: *job}
			log.Printf("[queue:%s] job %s failed permanently after %d attempts: %v", q.name, id, job.Retries, err)
		}
	}
	q.inFlight--
	listeners := make([]func(Event[P, R]), len(q.listeners))
	copy(listeners, q.listeners)
	q.mu.Unlock()

	if event != nil {
		for _, fn := range listeners {
			fn(*event)
		}
	}
	q.dispatch()
}
