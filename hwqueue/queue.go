package hwqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshuapare/suballoc/fence"
	"github.com/joshuapare/suballoc/internal/logger"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("hwqueue: closed")

// Job is one unit of simulated work.
type Job struct {
	Name string

	// Cost is how long the job occupies the queue.
	Cost time.Duration

	// Run, if set, executes on the completion goroutine before the fence is
	// signaled. A non-nil error is recorded on the fence.
	Run func() error
}

type entry struct {
	job Job
	f   *fence.Fence
}

// Queue executes jobs in order on a single completion goroutine.
type Queue struct {
	name string
	tl   *fence.Timeline
	log  *slog.Logger

	mu     sync.RWMutex // guards closed against send on jobs
	closed bool
	jobs   chan entry
	done   chan struct{}

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// New starts a queue that buffers up to depth pending jobs. Submit blocks
// once the buffer is full.
func New(name string, depth int) *Queue {
	if depth < 1 {
		depth = 1
	}
	q := &Queue{
		name: name,
		tl:   fence.NewTimeline(name),
		log:  logger.L.With("queue", name),
		jobs: make(chan entry, depth),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Timeline returns the timeline the queue's fences belong to.
func (q *Queue) Timeline() *fence.Timeline { return q.tl }

// Submit enqueues job and returns its fence. The caller owns one reference
// to the fence and must Release it.
func (q *Queue) Submit(ctx context.Context, job Job) (*fence.Fence, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrClosed
	}

	f := q.tl.Next()
	f.Retain() // queue's reference, dropped after signaling
	q.submitted.Add(1)

	select {
	case q.jobs <- entry{job: job, f: f}:
		return f, nil
	case <-ctx.Done():
		q.submitted.Add(^uint64(0))
		// Nobody else saw f. Signal it so the seqno is not left dangling.
		_ = f.SignalError(ctx.Err())
		f.Release()
		f.Release()
		return nil, fmt.Errorf("hwqueue %s: submit %q: %w", q.name, job.Name, ctx.Err())
	}
}

// Close stops accepting jobs and waits until every submitted job has
// completed and its fence has been signaled.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	<-q.done
	q.log.Debug("hwqueue closed",
		"submitted", q.submitted.Load(), "completed", q.completed.Load(), "failed", q.failed.Load())
	return nil
}

// Pending returns the number of submitted jobs whose fence has not yet
// signaled.
func (q *Queue) Pending() uint64 {
	// completed first: it never passes submitted, so a later submitted read
	// is at least as large.
	c := q.completed.Load()
	s := q.submitted.Load()
	if s < c {
		return 0
	}
	return s - c
}

// Completed returns the number of jobs that have finished.
func (q *Queue) Completed() uint64 { return q.completed.Load() }

func (q *Queue) run() {
	defer close(q.done)

	for e := range q.jobs {
		var err error
		if e.job.Cost > 0 {
			time.Sleep(e.job.Cost)
		}
		if e.job.Run != nil {
			err = e.job.Run()
		}
		if err != nil {
			q.failed.Add(1)
			q.log.Warn("hwqueue job failed", "job", e.job.Name, "fence", e.f.String(), "err", err)
		}

		// Callbacks registered on the fence run here.
		_ = e.f.SignalError(err)
		e.f.Release()
		q.completed.Add(1)
	}
}
