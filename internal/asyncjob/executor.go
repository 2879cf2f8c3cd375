// Package asyncjob provides the bounded, fire-and-forget background
// task executor used for the deferred side of the insert/delete
// protocol: reverse-map updates, counter increments, makeDirs
// fan-out, and reclaim enqueues all run here rather than on the
// caller's goroutine (§4.4, §4.5).
package asyncjob

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pathindex/pathindex/pkg/logging"
	"github.com/pathindex/pathindex/pkg/perrors"
)

// Job is a unit of background work. It receives a context derived from
// the executor's lifetime, not the caller's request context — the
// caller has typically already returned by the time a job runs.
type Job func(ctx context.Context)

// Config controls executor sizing.
type Config struct {
	Workers   int
	QueueSize int
}

// DefaultConfig returns worker/queue sizing appropriate for a
// metadata-only workload.
func DefaultConfig() Config {
	return Config{Workers: 8, QueueSize: 1024}
}

// Stats reports executor throughput, sampled with atomics so callers
// can poll without taking the executor's lock.
type Stats struct {
	Submitted int64
	Completed int64
	Dropped   int64
	Failed    int64
}

// Executor runs submitted Jobs on a fixed pool of goroutines. Submit
// never blocks: a full queue returns a QUEUE_FULL error immediately so
// callers can decide whether to drop the background step or fall back
// to running it inline.
type Executor struct {
	cfg    Config
	logger *logging.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	queue   chan Job
	cancel  context.CancelFunc
	ctx     context.Context
	wg      sync.WaitGroup

	submitted int64
	completed int64
	dropped   int64
	failed    int64
}

// New creates an Executor. Call Start before submitting work.
func New(cfg Config, logger *logging.Logger) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	return &Executor{
		cfg:    cfg,
		logger: logger.WithComponent("asyncjob"),
	}
}

// Start launches the worker pool.
func (e *Executor) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return perrors.New(perrors.CodeInternal, "executor already started").WithComponent("asyncjob")
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.queue = make(chan Job, e.cfg.QueueSize)
	e.started = true

	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return nil
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for job := range e.queue {
		e.run(job)
	}
}

func (e *Executor) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&e.failed, 1)
			e.logger.Error("asyncjob panicked", logging.Fields{"panic": r})
		}
	}()
	job(e.ctx)
	atomic.AddInt64(&e.completed, 1)
}

// Submit enqueues a job. It returns a QUEUE_FULL error if the queue is
// saturated, and a SHUTDOWN_IN_PROGRESS error once Stop has been
// called — callers on the foreground path treat both as "the
// background step did not happen" and proceed (§4.4's async steps are
// not consistency-required to have actually run by the time insert or
// delete returns).
func (e *Executor) Submit(job Job) error {
	// Held for the whole check-then-send so Stop cannot close the queue
	// between the stopped check and the send landing on it.
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started || e.stopped {
		atomic.AddInt64(&e.dropped, 1)
		return perrors.New(perrors.CodeShutdownInProgress, "executor is not accepting work").WithComponent("asyncjob")
	}

	atomic.AddInt64(&e.submitted, 1)
	select {
	case e.queue <- job:
		return nil
	default:
		atomic.AddInt64(&e.dropped, 1)
		return perrors.New(perrors.CodeQueueFull, "asyncjob queue is full").WithComponent("asyncjob")
	}
}

// Stop closes the queue to new submissions, drains pending jobs, and
// waits for all workers to finish. It blocks until drained or the
// given timeout elapses, whichever comes first.
func (e *Executor) Stop(timeout time.Duration) error {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-time.After(timeout):
		e.cancel()
		return perrors.New(perrors.CodeInternal, "executor did not drain before timeout").WithComponent("asyncjob")
	}
}

// Stats returns a point-in-time snapshot of executor counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Submitted: atomic.LoadInt64(&e.submitted),
		Completed: atomic.LoadInt64(&e.completed),
		Dropped:   atomic.LoadInt64(&e.dropped),
		Failed:    atomic.LoadInt64(&e.failed),
	}
}
