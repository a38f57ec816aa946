package generators

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"

	"brand-studio/server/internal/interfaces"
	"brand-studio/server/internal/logger"
)

var (
	ErrQueueFull    = errors.New("image queue is full")
	ErrQueueStopped = errors.New("image queue is stopped")
)

// ImageJob is one queued world image generation
type ImageJob struct {
	ID        string
	Generator interfaces.ImageGenerator
	Request   *interfaces.ImageRequest
	// Done receives the outcome on the worker goroutine.
	Done      func(*interfaces.ImageResponse, error)
	CreatedAt time.Time
}

// ImageQueue runs image jobs on a fixed pool of workers shared by all
// workspaces. Each job gets its own timeout, detached from the request that
// queued it.
type ImageQueue struct {
	jobs        chan *ImageJob
	timeout     time.Duration
	maxWorkers  int
	workerCount *atomic.Int32
	pending     *atomic.Int32
	stopped     *atomic.Bool
	stopOnce    sync.Once
	wg          sync.WaitGroup
	log         *logger.Logger
}

// NewImageQueue creates a new image generation queue
func NewImageQueue(maxWorkers, capacity int, timeout time.Duration, log *logger.Logger) *ImageQueue {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if capacity <= 0 {
		capacity = 100
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ImageQueue{
		jobs:        make(chan *ImageJob, capacity),
		timeout:     timeout,
		maxWorkers:  maxWorkers,
		workerCount: atomic.NewInt32(0),
		pending:     atomic.NewInt32(0),
		stopped:     atomic.NewBool(false),
		log:         log,
	}
}

// Start starts the queue workers
func (q *ImageQueue) Start(ctx context.Context) {
	for i := 0; i < q.maxWorkers; i++ {
		q.wg.Add(1)
		q.workerCount.Inc()
		go q.worker(ctx)
	}
}

// Stop stops accepting jobs and waits for the workers to drain the queue.
func (q *ImageQueue) Stop() {
	q.stopOnce.Do(func() {
		q.stopped.Store(true)
		close(q.jobs)
	})
	q.wg.Wait()
}

func (q *ImageQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	defer q.workerCount.Dec()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.run(ctx, job)
		}
	}
}

func (q *ImageQueue) run(ctx context.Context, job *ImageJob) {
	defer q.pending.Dec()

	jobCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := job.Generator.GenerateImage(jobCtx, job.Request)
	if err != nil {
		q.log.Warn("world image failed", "job", job.ID, "error", err, "waited", start.Sub(job.CreatedAt))
	} else {
		q.log.Debug("world image ready", "job", job.ID, "duration", time.Since(start))
	}
	if job.Done != nil {
		job.Done(resp, err)
	}
}

// Enqueue adds a job without blocking
func (q *ImageQueue) Enqueue(job *ImageJob) (err error) {
	if q.stopped.Load() {
		return ErrQueueStopped
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	defer func() {
		// Stop may close the channel between the check above and the send.
		if recover() != nil {
			q.pending.Dec()
			err = ErrQueueStopped
		}
	}()

	q.pending.Inc()
	select {
	case q.jobs <- job:
		return nil
	default:
		q.pending.Dec()
		return ErrQueueFull
	}
}

// Pending returns queued plus running jobs
func (q *ImageQueue) Pending() int {
	return int(q.pending.Load())
}

// GetWorkerCount returns the number of active workers
func (q *ImageQueue) GetWorkerCount() int {
	return int(q.workerCount.Load())
}
