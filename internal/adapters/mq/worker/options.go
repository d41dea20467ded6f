// Package worker recomputes composite scores for queued metric changes.
package worker

import (
	"github.com/opsboard/pulse/internal/domain/dedupe"
	"github.com/opsboard/pulse/internal/domain/scoring"
	"github.com/opsboard/pulse/pkg/logger"
)

// Option applies a configuration option to an InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithKinds limits which score kinds are recomputed.
func WithKinds(kinds ...scoring.Kind) Option {
	return func(w *InMemoryWorker) {
		if len(kinds) > 0 {
			w.kinds = append([]scoring.Kind(nil), kinds...)
		}
	}
}

// WithDeduper releases coalesced keys once their event is picked up, so a
// later change for the same subject and period is queued again.
func WithDeduper(d dedupe.Deduper) Option {
	return func(w *InMemoryWorker) {
		w.dedupe = d
	}
}
