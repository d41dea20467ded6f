// Package autosave turns a stream of form edits into debounced draft saves.
//
// A Scheduler owns one editing session's in-memory fields and its FSM state.
// Edits, timer firings and save completions are serialized by the scheduler's
// mutex; the save itself runs outside the lock, and a single save slot keeps
// at most one save in flight.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/pkg/clock"
	"github.com/opsboard/pulse/pkg/logger"
	"github.com/opsboard/pulse/pkg/metrics"
)

// Default timings.
const (
	DefaultDebounce    = 2 * time.Second
	DefaultSaveTimeout = 10 * time.Second
)

// Status messages shown next to the form.
const (
	IndicatorSaving    = "Saving…"
	IndicatorUnsaved   = "Unsaved changes"
	IndicatorSubmitted = "Submitted"
	savedAtLayout      = "15:04:05"
)

// SaveFunc persists a snapshot of the fields as the draft.
type SaveFunc func(ctx context.Context, fields model.Fields) error

// Result reports the outcome of one save attempt to listeners.
type Result struct {
	At  time.Time
	Err error
}

// Listener observes save outcomes. It is called without the scheduler lock.
type Listener func(ctx context.Context, r Result)

// Status is a point-in-time view of the session for display.
type Status struct {
	Phase       Phase     `json:"phase"`
	Pending     bool      `json:"pending"`
	LastSavedAt time.Time `json:"last_saved_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Unsaved     bool      `json:"unsaved"`
	Indicator   string    `json:"indicator"`
}

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source for the debounce window and save timeout.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithDebounce sets the quiet window.
func WithDebounce(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithSaveTimeout sets how long a save may run before the session falls back to Dirty.
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithInitialFields seeds the session, e.g. from an existing final submission.
func WithInitialFields(f model.Fields) Option {
	return func(s *Scheduler) {
		s.fields = f.Clone()
	}
}

// WithListener registers a save outcome listener.
func WithListener(l Listener) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// Scheduler debounces edits into draft saves for one session.
type Scheduler struct {
	clock     clock.Clock
	window    time.Duration
	timeout   time.Duration
	save      SaveFunc
	listeners []Listener
	log       logger.Logger

	// slot holds a token while a save or commit is in flight.
	slot chan struct{}
	done chan struct{}
	deb  *Debouncer

	mu        sync.Mutex
	fields    model.Fields
	state     State
	rev       uint64 // bumped on every edit
	savedRev  uint64 // rev of the last persisted snapshot
	gen       uint64 // bumped on Reset/Close; stale save results are dropped
	lastSaved time.Time
	lastErr   error
	closed    bool
}

// NewScheduler creates a scheduler in the Clean phase.
func NewScheduler(save SaveFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:   clock.NewReal(),
		window:  DefaultDebounce,
		timeout: DefaultSaveTimeout,
		save:    save,
		fields:  model.Fields{},
		slot:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrGet(s.log, "autosave")
	s.deb = NewDebouncer(s.clock, s.window, func() {
		if err := s.runSave(context.Background(), EventDebounceFired); err != nil && !errors.Is(err, ErrClosed) {
			s.log.Debug(context.Background(), "debounced save failed", logger.Error(err))
		}
	})
	return s
}

// Update sets one field and restarts the debounce window.
func (s *Scheduler) Update(field string, value any) error {
	return s.UpdateMany(model.Fields{field: value})
}

// UpdateMany sets several fields as one edit.
func (s *Scheduler) UpdateMany(changes model.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.apply(changes)
	return nil
}

// Modify derives an edit from the current fields under the session lock, so
// read-modify-write edits never lose a concurrent update. fn receives a copy
// and must not call back into the scheduler.
func (s *Scheduler) Modify(fn func(current model.Fields) (model.Fields, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	changes, err := fn(s.fields.Clone())
	if err != nil {
		return err
	}
	s.apply(changes)
	return nil
}

// apply merges changes as one edit. Must be called with s.mu held.
func (s *Scheduler) apply(changes model.Fields) {
	if len(changes) == 0 {
		return
	}
	for k, v := range changes.Clone() {
		s.fields[k] = v
	}
	s.rev++
	s.transition(EventEdit)
	s.deb.Trigger()
}

// SaveNow saves immediately, superseding any pending window. It waits for an
// in-flight save to finish first; if nothing changed meanwhile, no save is made.
func (s *Scheduler) SaveNow(ctx context.Context) error {
	return s.runSave(ctx, EventForceSave)
}

// Commit runs fn with the latest in-memory fields while holding the save
// slot, so no draft save can interleave. On success the session becomes
// Submitted, or Dirty again if edits arrived while fn ran. On failure the
// state is left as it was.
func (s *Scheduler) Commit(ctx context.Context, fn func(ctx context.Context, fields model.Fields) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.deb.Cancel()
	snapshot := s.fields.Clone()
	rev := s.rev
	s.mu.Unlock()

	err := fn(ctx, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return err
	}
	if err != nil {
		if s.state.Phase == Dirty {
			s.deb.Trigger()
		}
		return err
	}
	s.transition(EventSubmitted)
	s.savedRev = rev
	s.lastErr = nil
	if s.rev != rev {
		s.transition(EventEdit)
		s.deb.Trigger()
	}
	return nil
}

// Replace swaps the in-memory fields for the result of fn while holding the
// save slot, then resets the session to Clean. Used to resume or discard a draft.
func (s *Scheduler) Replace(ctx context.Context, fn func(ctx context.Context) (model.Fields, error)) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.deb.Cancel()
	s.mu.Unlock()

	fields, err := fn(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.fields = fields.Clone()
	s.rev++
	s.savedRev = s.rev
	s.gen++
	s.lastErr = nil
	s.transition(EventReset)
	return nil
}

// Close cancels the pending window. An in-flight save may still finish but
// its result is no longer applied.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.gen++
	s.deb.Cancel()
	close(s.done)
}

// Closed reports whether Close was called.
func (s *Scheduler) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Fields returns a copy of the in-memory fields.
func (s *Scheduler) Fields() model.Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields.Clone()
}

// State returns the current FSM state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the display status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Phase:       s.state.Phase,
		Pending:     s.state.Pending,
		LastSavedAt: s.lastSaved,
		Unsaved:     s.rev != s.savedRev,
		Indicator:   s.indicator(),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Indicator returns the status line for the form.
func (s *Scheduler) Indicator() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indicator()
}

func (s *Scheduler) indicator() string {
	switch {
	case s.state.Phase == Saving:
		return IndicatorSaving
	case s.state.Phase == Submitted:
		return IndicatorSubmitted
	case s.lastErr != nil:
		return "Save failed: " + s.lastErr.Error()
	case s.state.Phase == Dirty:
		return IndicatorUnsaved
	case !s.lastSaved.IsZero():
		return "Saved at " + s.lastSaved.Format(savedAtLayout)
	default:
		return ""
	}
}

// runSave moves Dirty to Saving and persists a snapshot. Callers wait for the
// save slot first, then re-check the phase, so unchanged data is never saved twice.
func (s *Scheduler) runSave(ctx context.Context, reason Event) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	held := true
	defer func() {
		if held {
			s.release()
		}
	}()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	next, err := Apply(s.state, reason)
	if err != nil || next.Phase != Saving {
		s.mu.Unlock()
		return err
	}
	s.deb.Cancel()
	s.state = next
	snapshot := s.fields.Clone()
	rev, gen := s.rev, s.gen
	s.mu.Unlock()

	start := s.clock.Now()
	saveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	result := make(chan error, 1)
	go func() {
		result <- s.save(saveCtx, snapshot)
	}()

	expired := make(chan struct{})
	timer := s.clock.AfterFunc(s.timeout, func() { close(expired) })

	select {
	case err = <-result:
		timer.Stop()
		cancel()
	case <-expired:
		err = fmt.Errorf("%w after %s", ErrSaveTimeout, s.timeout)
		cancel()
		// Keep the slot until the backend really returns.
		held = false
		go func() {
			<-result
			s.release()
		}()
	}

	latency := float64(s.clock.Now().Sub(start).Microseconds()) / 1000
	switch {
	case err == nil:
		metrics.RecordDraftSave("ok", latency)
	case errors.Is(err, ErrSaveTimeout):
		metrics.RecordDraftSave("timeout", latency)
	default:
		metrics.RecordDraftSave("failed", latency)
	}

	s.finishSave(ctx, gen, rev, err)
	return err
}

func (s *Scheduler) finishSave(ctx context.Context, gen, rev uint64, err error) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		s.log.Debug(ctx, "dropping stale save result", logger.Error(err))
		return
	}
	now := s.clock.Now()
	if err == nil {
		s.transition(EventSaveSucceeded)
		s.lastSaved = now
		s.lastErr = nil
		s.savedRev = rev
	} else {
		s.transition(EventSaveFailed)
		s.lastErr = err
	}
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(ctx, Result{At: now, Err: err})
	}
}

// transition applies e to the current state. Must be called with s.mu held.
func (s *Scheduler) transition(e Event) {
	next, err := Apply(s.state, e)
	if err != nil {
		s.log.Warn(context.Background(), "ignored transition", logger.Error(err))
		return
	}
	s.state = next
}

func (s *Scheduler) acquire(ctx context.Context) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) release() {
	<-s.slot
}
