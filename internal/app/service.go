// Package service wires the domain packages and adapters into the operations
// exposed by the HTTP API: editing sessions, metric updates, scores, trends
// and leaderboards.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/opsboard/pulse/internal/adapters/mq/queue"
	workerpool "github.com/opsboard/pulse/internal/adapters/mq/worker"
	"github.com/opsboard/pulse/internal/adapters/repository"
	"github.com/opsboard/pulse/internal/domain/autosave"
	"github.com/opsboard/pulse/internal/domain/dedupe"
	"github.com/opsboard/pulse/internal/domain/draft"
	"github.com/opsboard/pulse/internal/domain/scoring"
	"github.com/opsboard/pulse/internal/domain/workflow"
	"github.com/opsboard/pulse/pkg/clock"
	"github.com/opsboard/pulse/pkg/logger"
	"github.com/opsboard/pulse/pkg/metrics"
)

const (
	minReapInterval = time.Second
	flushTimeout    = 5 * time.Second
)

// Service implements the API dependencies.
type Service struct {
	mu sync.RWMutex

	// metricMu serializes read-modify-write cycles on metric records.
	metricMu sync.Mutex

	// Collaborators, replaceable through options.
	draftBackend draft.Persistence
	submissions  workflow.SubmissionStore
	metricStore  scoring.MetricStore
	validator    workflow.Validator

	// Built by Start.
	drafts   *draft.Store
	scorer   *scoring.TableScorer
	board    *repository.Leaderboards
	deduper  dedupe.Deduper
	queue    *eventqueue.InMemoryQueue
	pool     *workerpool.Pool
	notifier workflow.Notifier

	// Configuration
	workerCount int
	queueSize   int
	dedupeSize  int
	debounce    time.Duration
	saveTimeout time.Duration
	idleTTL     time.Duration
	graceDays   int
	clampMin    float64
	clampMax    float64
	weights     map[string]map[string]float64

	// State
	sessions   map[string]*session
	started    bool
	stopCh     chan struct{}
	reaperDone chan struct{}

	clock  clock.Clock
	logger logger.Logger
}

// New constructs a Service with in-memory collaborators and default settings.
func New(opts ...Option) *Service {
	s := &Service{
		draftBackend: repository.NewMemoryDrafts(),
		submissions:  repository.NewMemorySubmissions(),
		metricStore:  repository.NewMemoryMetrics(),
		workerCount:  runtime.NumCPU(),
		queueSize:    10_000,
		dedupeSize:   dedupe.DefaultMaxSize,
		debounce:     autosave.DefaultDebounce,
		saveTimeout:  autosave.DefaultSaveTimeout,
		idleTTL:      30 * time.Minute,
		graceDays:    5,
		clampMin:     0,
		clampMax:     100,
		sessions:     make(map[string]*session),
		clock:        clock.NewReal(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the scoring pipeline and starts the recompute workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger = logger.OrGet(s.logger, "service")
	s.logger.Info(ctx, "starting pulse service...")

	tables, err := scoring.DefaultTables().WithOverrides(s.weights)
	if err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	s.scorer = scoring.NewTableScorer(
		scoring.WithTables(tables),
		scoring.WithAggregator(scoring.NewAggregator(scoring.WithClampRange(s.clampMin, s.clampMax))),
	)

	s.drafts = draft.NewStore(s.draftBackend, draft.WithClock(s.clock), draft.WithLogger(s.logger.Named("draft")))
	s.notifier = workflow.NewLogNotifier(s.logger.Named("notify"))
	s.board = repository.NewLeaderboards()
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.metricStore, s.scorer, s.board,
		workerpool.WithLogger(s.logger.Named("worker")),
		workerpool.WithDeduper(s.deduper),
		workerpool.WithKinds(s.scorer.Kinds()...),
	)
	s.pool.Start(ctx)

	s.stopCh = make(chan struct{})
	s.reaperDone = make(chan struct{})
	go s.reapLoop(s.stopCh, s.reaperDone)

	s.started = true
	s.logger.Info(ctx, "pulse service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("debounce", s.debounce),
		logger.Duration("sessionIdleTTL", s.idleTTL),
	)
	return nil
}

// Stop flushes and closes every session, then drains the recompute queue.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	close(s.stopCh)
	reaperDone := s.reaperDone
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping pulse service...", logger.Int("sessions", len(sessions)))
	<-reaperDone
	for _, sess := range sessions {
		s.closeSession(ctx, sess)
	}
	metrics.UpdateActiveSessions(0)

	err := s.pool.Shutdown(ctx)
	s.logger.Info(ctx, "pulse service stopped")
	if err != nil {
		return fmt.Errorf("stop workers: %w", err)
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"sessions":    len(s.sessions),
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["pendingRecomputes"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}

// Kinds lists the kinds the service computes and ranks.
func (s *Service) Kinds() []scoring.Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.scorer == nil {
		return scoring.Kinds()
	}
	return s.scorer.Kinds()
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

func (s *Service) reapLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if s.idleTTL <= 0 {
		<-stop
		return
	}
	interval := max(s.idleTTL/2, minReapInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.ReapIdle(context.Background())
		}
	}
}
