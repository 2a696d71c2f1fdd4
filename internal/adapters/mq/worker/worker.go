// Package worker runs queued assessment jobs through the pipeline.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/katarzynaochnikdu/LEM-V1/internal/adapters/mq/queue"
	"github.com/katarzynaochnikdu/LEM-V1/internal/adapters/repository"
	"github.com/katarzynaochnikdu/LEM-V1/internal/domain/pipeline"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Job is what workers read off the queue.
type Job = queue.Job

// Assessor runs one assessment.
type Assessor interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Sink persists finished assessments.
type Sink interface {
	Save(ctx context.Context, r repository.Record) (string, error)
}

// Reporter receives every outcome, successful or not.
type Reporter interface {
	Report(ctx context.Context, o Outcome)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Outcome is the result of processing one Job. Result is nil when the
// assessment could not start.
type Outcome struct {
	Job     Job
	Result  *pipeline.Result
	Err     error
	Latency time.Duration
}

// Worker processes jobs until its queue is drained or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in flight.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	assessor Assessor
	sink     Sink
	reporter Reporter
	name     string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker.
func NewInMemoryWorker(q Queue, assessor Assessor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		assessor: assessor,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.NamedOrNop("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, j Job) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	res, err := w.assessor.Run(ctx, pipeline.Request{
		ParticipantID: j.ParticipantID,
		CaseID:        j.CaseID,
		Competency:    j.Competency,
		ResponseText:  j.Text,
	})
	latency := time.Since(start)
	metrics.RecordWorkerJobLatency(float64(latency.Milliseconds()))

	if err != nil {
		metrics.RecordWorkerJobFailure()
		w.logger.Warn(ctx, "job did not complete",
			logger.String("job_id", j.ID),
			logger.Error(err),
		)
	}

	if res != nil && w.sink != nil {
		rec := repository.NewRecord(res.Assessment, res.State, err)
		if _, serr := w.sink.Save(ctx, rec); serr != nil {
			w.logger.Error(ctx, "saving result failed",
				logger.String("job_id", j.ID),
				logger.Error(serr),
			)
		}
	}

	if w.reporter != nil {
		w.reporter.Report(ctx, Outcome{Job: j, Result: res, Err: err, Latency: latency})
	}
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	active  atomic.Int64
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers sharing opts. A count below
// one defaults to the number of CPUs.
func NewPool(workerCount int, q Queue, assessor Assessor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.NamedOrNop("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append(append([]Option(nil), opts...), WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(q, assessor, wopts...)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		metrics.UpdateWorkerActiveCount(int(p.active.Add(1)))
		go func(w *InMemoryWorker) {
			defer func() { metrics.UpdateWorkerActiveCount(int(p.active.Add(-1))) }()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned, which happens once the
// queue is closed and drained.
func (p *Pool) Wait(ctx context.Context) error {
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Shutdown closes the queue when it can be closed, then stops every worker.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
