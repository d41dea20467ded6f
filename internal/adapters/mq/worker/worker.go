package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opsboard/pulse/internal/adapters/mq/queue"
	"github.com/opsboard/pulse/internal/domain/dedupe"
	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/internal/domain/period"
	"github.com/opsboard/pulse/internal/domain/scoring"
	"github.com/opsboard/pulse/pkg/logger"
	"github.com/opsboard/pulse/pkg/metrics"
)

// Event is what workers read off the queue.
type Event = queue.Event

// Updater stores a recomputed composite score.
type Updater interface {
	Set(ctx context.Context, p period.Key, kind scoring.Kind, subjectID string, score float64) error
	// Remove drops the subject from the board; removing an absent subject succeeds.
	Remove(ctx context.Context, p period.Key, kind scoring.Kind, subjectID string) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, the queue is
	// drained and closed, or Shutdown is called.
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// DedupeKey is the coalescing key for an event: one per subject and period.
func DedupeKey(e Event) string {
	return model.Identity{SubjectKey: e.SubjectID, Period: e.Period}.String()
}

// InMemoryWorker recomputes every configured score kind for each event.
type InMemoryWorker struct {
	queue   Queue
	history scoring.HistorySource
	scorer  scoring.Scorer
	updater Updater
	dedupe  dedupe.Deduper
	kinds   []scoring.Kind
	name    string
	logger  logger.Logger

	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}
}

var _ Worker = (*InMemoryWorker)(nil)

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(q Queue, history scoring.HistorySource, scorer scoring.Scorer, updater Updater, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		history:  history,
		scorer:   scorer,
		updater:  updater,
		kinds:    scoring.Kinds(),
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logger.OrGet(w.logger, "worker").Named(w.name)
	return w
}

// Run implements Worker.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := w.processEvent(ctx, e); err != nil {
				w.logger.Error(ctx, "error processing event", logger.String("event_id", e.EventID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the loop after the current event.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.shutdown) })
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

func (w *InMemoryWorker) processEvent(ctx context.Context, e Event) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if w.dedupe != nil {
		w.dedupe.Unrecord(ctx, DedupeKey(e))
	}

	rec, found, err := w.history.Record(ctx, e.SubjectID, e.Period)
	if err != nil {
		metrics.RecordWorkerError()
		return fmt.Errorf("load record %s/%s: %w", e.SubjectID, e.Period, err)
	}
	if !found {
		w.logger.Debug(ctx, "no metric record, skipping",
			logger.String("subject_id", e.SubjectID), logger.Stringer("period", e.Period))
		return nil
	}

	var errs []error
	for _, kind := range w.kinds {
		score, err := w.scorer.Score(ctx, scoring.Input{Kind: kind, Record: rec})
		if err != nil {
			metrics.RecordWorkerError()
			errs = append(errs, fmt.Errorf("score %s: %w", kind, err))
			continue
		}
		// A record with no component for this kind is unranked, not a zero.
		if len(score.Breakdown) == 0 {
			if err := w.updater.Remove(ctx, rec.Period, kind, rec.SubjectID); err != nil {
				metrics.RecordWorkerError()
				errs = append(errs, fmt.Errorf("remove %s score: %w", kind, err))
			}
			continue
		}
		if err := w.updater.Set(ctx, rec.Period, kind, rec.SubjectID, score.Total); err != nil {
			metrics.RecordWorkerError()
			errs = append(errs, fmt.Errorf("store %s score: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

// Pool runs several workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
	started atomic.Bool
}

// NewPool creates workerCount workers sharing the same collaborators and options.
func NewPool(workerCount int, q Queue, history scoring.HistorySource, scorer scoring.Scorer, updater Updater, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.OrGet(nil, "worker-pool"),
	}
	for i := range p.workers {
		wopts := append(append([]Option(nil), opts...), WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(q, history, scorer, updater, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start launches every worker. Calls after the first are no-ops.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and lets workers drain it. Workers still busy
// when ctx ends are told to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if !p.started.Load() {
		metrics.UpdateWorkerCount(0)
		return nil
	}
	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			w.stopOnce.Do(func() { close(w.shutdown) })
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
	return nil
}
