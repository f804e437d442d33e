// Package queue defines the contract for enqueuing and consuming jobs.
//
// Jobs are long-running model operations (create, train, rank, delete). The
// queue is bounded so callers get backpressure instead of unbounded memory.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/noderank/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Job kinds.
const (
	KindCreate = "create"
	KindTrain  = "train"
	KindRank   = "rank"
	KindDelete = "delete"
)

// Job is one unit of work. Run is called once by a worker and its error is
// delivered on Done.
type Job struct {
	ID         string
	Kind       string
	ModelID    string
	EnqueuedAt time.Time
	Run        func(ctx context.Context) error
	Done       chan error
}

// NewJob returns a Job with a buffered result channel.
func NewJob(id, kind, modelID string, run func(ctx context.Context) error) *Job {
	return &Job{
		ID:      id,
		Kind:    kind,
		ModelID: modelID,
		Run:     run,
		Done:    make(chan error, 1),
	}
}

// Finish delivers the result. Only the first call has an effect.
func (j *Job) Finish(err error) {
	select {
	case j.Done <- err:
	default:
	}
}

// Execute runs the job, converting a panic into an error, and delivers the result.
func (j *Job) Execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s (%s) panicked: %v", j.ID, j.Kind, r)
		}
		j.Finish(err)
	}()
	return j.Run(ctx)
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. Returns ErrFull or ErrStopped when it is refused.
	Enqueue(ctx context.Context, j *Job) error

	// Dequeue returns a channel that receives jobs as they become available.
	// The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan *Job

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Cap returns the maximum number of queued jobs.
	Cap() int

	// Close stops accepting jobs and closes the dequeue channel once drained.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan *Job
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan *Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a job to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j *Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrStopped
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	j.EnqueuedAt = time.Now()
	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.jobs))
		return nil
	default:
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel that receives jobs as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan *Job {
	out := make(chan *Job)
	go func() {
		defer close(out)
		for j := range q.jobs {
			select {
			case out <- j:
				metrics.RecordQueueDequeue(float64(time.Since(j.EnqueuedAt).Microseconds()) / 1000)
				metrics.UpdateQueueSize(len(q.jobs))
			case <-ctx.Done():
				j.Finish(ctx.Err())
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	return size
}

// Cap returns the queue capacity.
func (q *InMemoryQueue) Cap() int { return q.capacity }

// Close stops accepting jobs.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
