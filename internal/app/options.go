package service

import (
	"time"

	"github.com/opsboard/pulse/internal/domain/draft"
	"github.com/opsboard/pulse/internal/domain/scoring"
	"github.com/opsboard/pulse/internal/domain/workflow"
	"github.com/opsboard/pulse/pkg/clock"
	"github.com/opsboard/pulse/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source for sessions, timestamps and idle reaping.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithWorkerCount sets the number of recompute workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the recompute queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize caps the number of coalesced recompute keys.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDebounce sets the autosave quiet window of every session.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithSaveTimeout bounds each draft save.
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.saveTimeout = d
		}
	}
}

// WithSessionIdleTTL closes sessions untouched for d. Zero disables reaping.
func WithSessionIdleTTL(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.idleTTL = d
		}
	}
}

// WithLateGraceDays sets the days after month end before a report is late.
func WithLateGraceDays(days int) Option {
	return func(s *Service) {
		if days >= 0 {
			s.graceDays = days
		}
	}
}

// WithClampRange bounds every aggregated component.
func WithClampRange(minValue, maxValue float64) Option {
	return func(s *Service) {
		s.clampMin, s.clampMax = minValue, maxValue
	}
}

// WithWeights overrides weight tables, kind -> component -> weight.
func WithWeights(weights map[string]map[string]float64) Option {
	return func(s *Service) {
		s.weights = weights
	}
}

// WithDraftPersistence replaces the in-memory draft backend.
func WithDraftPersistence(p draft.Persistence) Option {
	return func(s *Service) {
		if p != nil {
			s.draftBackend = p
		}
	}
}

// WithSubmissionStore replaces the in-memory submission store.
func WithSubmissionStore(st workflow.SubmissionStore) Option {
	return func(s *Service) {
		if st != nil {
			s.submissions = st
		}
	}
}

// WithMetricStore replaces the in-memory metric history.
func WithMetricStore(st scoring.MetricStore) Option {
	return func(s *Service) {
		if st != nil {
			s.metricStore = st
		}
	}
}

// WithValidator replaces the monthly form validator used on submit.
func WithValidator(v workflow.Validator) Option {
	return func(s *Service) {
		if v != nil {
			s.validator = v
		}
	}
}
