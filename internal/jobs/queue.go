package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/gosubgen/internal/common"
)

var (
	ErrQueueNotStarted = errors.New("queue not started")
	ErrQueueFull       = errors.New("queue is full")
	ErrQueueStopped    = errors.New("queue is shut down")
	// ErrDroppedAtShutdown is passed to Dropper for items no worker picked up.
	ErrDroppedAtShutdown = errors.New("dropped at shutdown before processing")
)

// WorkItem contains a copy of the job data needed for processing and a
// cleanup func that runs exactly once when the item leaves the queue.
type WorkItem struct {
	Job     Job
	Cleanup func() error
}

// Processor defines how to process a WorkItem.
type Processor interface {
	Process(ctx context.Context, item WorkItem) error
}

// Dropper is optionally implemented by a Processor to record items that are
// discarded at shutdown without being processed. Cleanup still runs afterwards.
type Dropper interface {
	Drop(item WorkItem, reason error)
}

// Queue is an in-memory bounded queue for WorkItems with a fixed worker pool.
// Each worker processes one item at a time, so at most `workers` items are
// processed concurrently.
type Queue struct {
	log        *slog.Logger
	ch         chan WorkItem
	workers    int
	wg         sync.WaitGroup
	cancelOnce sync.Once
	cancel     context.CancelFunc
	stop       chan struct{}
	proc       Processor
	started    bool
	stopped    bool
	mu         sync.Mutex
}

// NewQueue creates a new Queue with the given capacity and worker count.
func NewQueue(logger *slog.Logger, capacity int, workers int) *Queue {
	if capacity <= 0 {
		capacity = common.DefaultQueueCapacity
	}
	if workers <= 0 {
		workers = common.DefaultWorkerCount
	}
	return &Queue{
		log:     logger,
		ch:      make(chan WorkItem, capacity),
		workers: workers,
		stop:    make(chan struct{}),
	}
}

// Workers returns the pool size.
func (q *Queue) Workers() int { return q.workers }

// Pending returns the number of items waiting for a worker.
func (q *Queue) Pending() int { return len(q.ch) }

// Start launches worker goroutines that consume WorkItems and process them
// using the provided Processor. Cancelling ctx cancels running items at once;
// Shutdown is the graceful path.
func (q *Queue) Start(ctx context.Context, p Processor) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return errors.New("queue already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.proc = p
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, p, i)
	}
	q.started = true
	return nil
}

func (q *Queue) worker(ctx context.Context, p Processor, idx int) {
	defer q.wg.Done()
	log := q.log.With("worker", idx)
	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopping due to context cancellation")
			return
		case <-q.stop:
			log.Debug("queue stopping, worker exiting")
			return
		case item, ok := <-q.ch:
			if !ok {
				log.Debug("queue closed, worker exiting")
				return
			}
			// select picks randomly among ready cases
			select {
			case <-q.stop:
				q.drop(item)
				return
			default:
			}
			q.run(ctx, log, p, item)
		}
	}
}

// run processes one item. Cleanup is deferred so it fires on success, error
// and panic alike.
func (q *Queue) run(ctx context.Context, log *slog.Logger, p Processor, item WorkItem) {
	jobLog := log.With("job_id", item.Job.ID, "path", item.Job.Path)
	start := time.Now()
	defer func() {
		if item.Cleanup != nil {
			if err := item.Cleanup(); err != nil {
				jobLog.Warn("cleanup failed", "err", err)
			}
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			jobLog.Error("job processing panicked", "panic", fmt.Sprint(rec), "duration", time.Since(start))
		}
	}()

	jobLog.Debug("processing job", "stage", item.Job.Stage)
	if err := p.Process(ctx, item); err != nil {
		jobLog.Error("job processing failed", "err", err, "duration", time.Since(start))
		return
	}
	jobLog.Debug("job processed", "duration", time.Since(start))
}

// drop discards an item that never reached Process.
func (q *Queue) drop(item WorkItem) {
	q.log.Warn("dropping queued job at shutdown", "job_id", item.Job.ID, "path", item.Job.Path)
	if d, ok := q.proc.(Dropper); ok {
		d.Drop(item, ErrDroppedAtShutdown)
	}
	if item.Cleanup != nil {
		if err := item.Cleanup(); err != nil {
			q.log.Warn("cleanup failed", "job_id", item.Job.ID, "err", err)
		}
	}
}

// Enqueue adds a WorkItem to the queue without blocking; a full queue is an error.
func (q *Queue) Enqueue(item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return ErrQueueNotStarted
	}
	if q.stopped {
		return ErrQueueStopped
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting work and lets running items finish for up to
// deadline. Items still running after that have their context cancelled.
// Items that never reached a worker are dropped. A deadline <= 0 waits
// without limit.
func (q *Queue) Shutdown(deadline time.Duration) {
	q.cancelOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		close(q.stop)
		close(q.ch)
		q.mu.Unlock()

		done := make(chan struct{})
		go func() {
			defer close(done)
			q.wg.Wait()
		}()

		if deadline <= 0 {
			<-done
		} else {
			timer := time.NewTimer(deadline)
			defer timer.Stop()
			select {
			case <-done:
			case <-timer.C:
				q.log.Warn("queue shutdown deadline reached; cancelling running jobs")
				if q.cancel != nil {
					q.cancel()
				}
				select {
				case <-done:
				case <-time.After(deadline):
					q.log.Warn("workers did not stop after cancellation")
				}
			}
		}
		if q.cancel != nil {
			q.cancel()
		}

		for item := range q.ch {
			q.drop(item)
		}
	})
}
