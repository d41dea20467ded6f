// Package draft stores recoverable snapshots of in-progress form edits,
// one per identity, independently of the final submission.
package draft

import (
	"context"
	"fmt"
	"time"

	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/pkg/clock"
	"github.com/opsboard/pulse/pkg/logger"
)

// Payload is what gets persisted for a draft.
type Payload struct {
	Identity model.Identity `json:"identity"`
	Fields   model.Fields   `json:"fields"`
	SavedAt  time.Time      `json:"saved_at"`
	IsDraft  bool           `json:"is_draft"`
}

// Age reports how long ago the draft was saved.
func (p Payload) Age(now time.Time) time.Duration {
	if p.SavedAt.IsZero() {
		return 0
	}
	return now.Sub(p.SavedAt)
}

// Persistence is the key-value collaborator behind a Store. Implementations
// key records by Identity and must make Upsert idempotent.
type Persistence interface {
	Upsert(ctx context.Context, p Payload) error
	// Fetch returns found=false, not an error, when nothing is stored.
	Fetch(ctx context.Context, id model.Identity) (p Payload, found bool, err error)
	// Delete must succeed when nothing is stored.
	Delete(ctx context.Context, id model.Identity) error
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClock sets the time source used for SavedAt.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Store saves, loads and deletes drafts through a Persistence.
type Store struct {
	backend Persistence
	clock   clock.Clock
	log     logger.Logger
}

// NewStore creates a draft store over backend.
func NewStore(backend Persistence, opts ...Option) *Store {
	s := &Store{backend: backend, clock: clock.NewReal()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrGet(s.log, "draft")
	return s
}

// Save upserts a deep copy of fields as the draft for id. Saving identical
// fields twice leaves one identical record.
func (s *Store) Save(ctx context.Context, id model.Identity, fields model.Fields) (Payload, error) {
	if err := id.Validate(); err != nil {
		return Payload{}, err
	}
	p := Payload{
		Identity: id,
		Fields:   fields.Clone(),
		SavedAt:  s.clock.Now(),
		IsDraft:  true,
	}
	if err := s.backend.Upsert(ctx, p); err != nil {
		s.log.Warn(ctx, "draft upsert failed", logger.String("identity", id.String()), logger.Error(err))
		return Payload{}, fmt.Errorf("%w: save %s: %w", ErrPersistence, id, err)
	}
	s.log.Debug(ctx, "draft saved", logger.String("identity", id.String()), logger.Int("fields", len(p.Fields)))
	return p, nil
}

// LoadPayload returns the stored draft, or ErrNotFound.
func (s *Store) LoadPayload(ctx context.Context, id model.Identity) (Payload, error) {
	if err := id.Validate(); err != nil {
		return Payload{}, err
	}
	p, found, err := s.backend.Fetch(ctx, id)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: load %s: %w", ErrPersistence, id, err)
	}
	if !found {
		return Payload{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p.Fields = p.Fields.Clone()
	return p, nil
}

// Load returns the draft fields, or ErrNotFound.
func (s *Store) Load(ctx context.Context, id model.Identity) (model.Fields, error) {
	p, err := s.LoadPayload(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Fields, nil
}

// Exists reports whether a draft is stored for id.
func (s *Store) Exists(ctx context.Context, id model.Identity) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, err
	}
	_, found, err := s.backend.Fetch(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %w", ErrPersistence, id, err)
	}
	return found, nil
}

// Delete removes the draft for id. Deleting a missing draft succeeds.
func (s *Store) Delete(ctx context.Context, id model.Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrPersistence, id, err)
	}
	return nil
}
