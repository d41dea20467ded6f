// Package workflow drives one monthly form editing session: it opens an
// identity, autosaves edits as a draft, and turns the latest fields into the
// final submission.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opsboard/pulse/internal/domain/autosave"
	"github.com/opsboard/pulse/internal/domain/draft"
	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/pkg/clock"
	"github.com/opsboard/pulse/pkg/logger"
	"github.com/opsboard/pulse/pkg/metrics"
)

// SubmissionStore persists final submissions, one per identity.
type SubmissionStore interface {
	Upsert(ctx context.Context, sub model.Submission) error
	// Fetch returns found=false, not an error, when nothing is stored.
	Fetch(ctx context.Context, id model.Identity) (sub model.Submission, found bool, err error)
	Exists(ctx context.Context, id model.Identity) (bool, error)
}

// DraftInfo describes a recoverable draft found on Open.
type DraftInfo struct {
	SavedAt time.Time     `json:"saved_at"`
	Age     time.Duration `json:"age"`
}

// Opened is what Open found for an identity.
type Opened struct {
	Identity   model.Identity    `json:"identity"`
	Fields     model.Fields      `json:"fields"`
	Submission *model.Submission `json:"submission,omitempty"`
	Draft      *DraftInfo        `json:"draft,omitempty"`
}

// Option applies a configuration option to the Workflow.
type Option func(*Workflow)

// WithClock sets the time source for debouncing and timestamps.
func WithClock(c clock.Clock) Option {
	return func(w *Workflow) {
		if c != nil {
			w.clock = c
		}
	}
}

// WithDebounce sets the autosave quiet window.
func WithDebounce(d time.Duration) Option {
	return func(w *Workflow) { w.debounce = d }
}

// WithSaveTimeout sets the per-save timeout.
func WithSaveTimeout(d time.Duration) Option {
	return func(w *Workflow) { w.saveTimeout = d }
}

// WithValidator replaces the default MonthlyFormValidator.
func WithValidator(v Validator) Option {
	return func(w *Workflow) {
		if v != nil {
			w.validator = v
		}
	}
}

// WithNotifier replaces the default LogNotifier.
func WithNotifier(n Notifier) Option {
	return func(w *Workflow) {
		if n != nil {
			w.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.log = l
		}
	}
}

// Workflow is one editing session. It targets at most one identity at a time;
// Open switches the target and abandons the previous scheduler.
type Workflow struct {
	drafts      *draft.Store
	submissions SubmissionStore
	validator   Validator
	notifier    Notifier
	clock       clock.Clock
	debounce    time.Duration
	saveTimeout time.Duration
	log         logger.Logger

	mu          sync.Mutex
	id          model.Identity
	sched       *autosave.Scheduler
	submittedAt time.Time
}

// New creates a workflow over the draft store and submission store.
func New(drafts *draft.Store, submissions SubmissionStore, opts ...Option) *Workflow {
	w := &Workflow{
		drafts:      drafts,
		submissions: submissions,
		clock:       clock.NewReal(),
		debounce:    autosave.DefaultDebounce,
		saveTimeout: autosave.DefaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = logger.OrGet(w.log, "workflow")
	if w.validator == nil {
		w.validator = NewMonthlyFormValidator()
	}
	if w.notifier == nil {
		w.notifier = NewLogNotifier(w.log)
	}
	return w
}

// Open targets id. Fields start from the final submission when one exists;
// a stored draft is reported but not loaded until ResumeDraft.
func (w *Workflow) Open(ctx context.Context, id model.Identity) (Opened, error) {
	if err := id.Validate(); err != nil {
		return Opened{}, err
	}
	out := Opened{Identity: id, Fields: model.Fields{}}

	sub, found, err := w.submissions.Fetch(ctx, id)
	if err != nil {
		return Opened{}, persistenceErr("open", id, err)
	}
	if found {
		out.Submission = &sub
		out.Fields = sub.Fields.Clone()
	}

	p, err := w.drafts.LoadPayload(ctx, id)
	switch {
	case err == nil:
		out.Draft = &DraftInfo{SavedAt: p.SavedAt, Age: p.Age(w.clock.Now())}
	case errors.Is(err, draft.ErrNotFound):
	default:
		return Opened{}, err
	}

	sched := autosave.NewScheduler(w.saveFunc(id),
		autosave.WithClock(w.clock),
		autosave.WithDebounce(w.debounce),
		autosave.WithSaveTimeout(w.saveTimeout),
		autosave.WithInitialFields(out.Fields),
		autosave.WithListener(w.listener(id)),
		autosave.WithLogger(w.log.With(logger.String("identity", id.String()))),
	)

	w.mu.Lock()
	old := w.sched
	w.id, w.sched = id, sched
	w.submittedAt = time.Time{}
	if found {
		w.submittedAt = sub.SubmittedAt
	}
	w.mu.Unlock()
	if old != nil {
		old.Close()
	}

	w.log.Debug(ctx, "identity opened",
		logger.String("identity", id.String()),
		logger.Bool("has_submission", found),
		logger.Bool("has_draft", out.Draft != nil))
	return out, nil
}

// ResumeDraft replaces the in-memory fields with the stored draft. It returns
// draft.ErrNotFound when there is none.
func (w *Workflow) ResumeDraft(ctx context.Context) (model.Fields, error) {
	sched, id, err := w.current()
	if err != nil {
		return nil, err
	}
	var loaded model.Fields
	err = sched.Replace(ctx, func(ctx context.Context) (model.Fields, error) {
		f, err := w.drafts.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		loaded = f
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return loaded.Clone(), nil
}

// DiscardDraft deletes the stored draft and resets the fields to the final
// submission, or to empty when there is none.
func (w *Workflow) DiscardDraft(ctx context.Context) (model.Fields, error) {
	sched, id, err := w.current()
	if err != nil {
		return nil, err
	}
	var base model.Fields
	err = sched.Replace(ctx, func(ctx context.Context) (model.Fields, error) {
		if err := w.drafts.Delete(ctx, id); err != nil {
			return nil, err
		}
		sub, found, err := w.submissions.Fetch(ctx, id)
		if err != nil {
			return nil, persistenceErr("discard", id, err)
		}
		base = model.Fields{}
		if found {
			base = sub.Fields
		}
		return base, nil
	})
	if err != nil {
		return nil, err
	}
	return base.Clone(), nil
}

// Update sets one field.
func (w *Workflow) Update(field string, value any) error {
	return w.UpdateMany(model.Fields{field: value})
}

// UpdateMany sets several fields as one edit.
func (w *Workflow) UpdateMany(changes model.Fields) error {
	sched, _, err := w.current()
	if err != nil {
		return err
	}
	return sched.UpdateMany(changes)
}

// CycleAttendance advances the mark of one day of the open period and
// refreshes the derived attendance counts.
func (w *Workflow) CycleAttendance(day int) (AttendanceMark, error) {
	sched, id, err := w.current()
	if err != nil {
		return "", err
	}
	var mark AttendanceMark
	err = sched.Modify(func(cur model.Fields) (model.Fields, error) {
		changes, next, err := cycleDay(cur, id.Period, day)
		mark = next
		return changes, err
	})
	return mark, err
}

// SaveDraft saves immediately instead of waiting for the quiet window.
func (w *Workflow) SaveDraft(ctx context.Context) error {
	sched, _, err := w.current()
	if err != nil {
		return err
	}
	return sched.SaveNow(ctx)
}

// Submit validates the latest fields and stores them as the final
// submission. The draft is deleted afterwards; failing to delete it is
// logged but does not fail the submit. On validation or persistence failure
// the session and the draft are left untouched.
func (w *Workflow) Submit(ctx context.Context) (model.Submission, error) {
	sched, id, err := w.current()
	if err != nil {
		return model.Submission{}, err
	}
	w.mu.Lock()
	firstAt := w.submittedAt
	w.mu.Unlock()

	var sub model.Submission
	err = sched.Commit(ctx, func(ctx context.Context, fields model.Fields) error {
		if err := w.validator.Validate(id, fields); err != nil {
			return err
		}
		now := w.clock.Now()
		sub = model.Submission{Identity: id, Fields: fields, SubmittedAt: now, UpdatedAt: now}
		if !firstAt.IsZero() {
			sub.SubmittedAt = firstAt
		}
		if err := w.submissions.Upsert(ctx, sub); err != nil {
			return persistenceErr("submit", id, err)
		}
		if err := w.drafts.Delete(ctx, id); err != nil {
			metrics.RecordDraftDeleteFailure()
			w.log.Warn(ctx, "draft delete after submit failed",
				logger.String("identity", id.String()), logger.Error(err))
		}
		return nil
	})
	if err != nil {
		w.notifier.SubmitFailed(ctx, id, err)
		return model.Submission{}, err
	}

	w.mu.Lock()
	if w.id == id {
		w.submittedAt = sub.SubmittedAt
	}
	w.mu.Unlock()
	w.notifier.Submitted(ctx, sub)
	return sub, nil
}

// Status returns the autosave status of the open identity.
func (w *Workflow) Status() (autosave.Status, error) {
	sched, _, err := w.current()
	if err != nil {
		return autosave.Status{}, err
	}
	return sched.Status(), nil
}

// Fields returns a copy of the in-memory fields.
func (w *Workflow) Fields() (model.Fields, error) {
	sched, _, err := w.current()
	if err != nil {
		return nil, err
	}
	return sched.Fields(), nil
}

// Identity returns the open identity, if any.
func (w *Workflow) Identity() (model.Identity, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.id, w.sched != nil
}

// Close abandons the session. Unsaved edits are dropped.
func (w *Workflow) Close() {
	w.mu.Lock()
	sched := w.sched
	w.sched = nil
	w.mu.Unlock()
	if sched != nil {
		sched.Close()
	}
}

func (w *Workflow) current() (*autosave.Scheduler, model.Identity, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sched == nil {
		return nil, model.Identity{}, ErrNotOpen
	}
	return w.sched, w.id, nil
}

func (w *Workflow) saveFunc(id model.Identity) autosave.SaveFunc {
	return func(ctx context.Context, fields model.Fields) error {
		_, err := w.drafts.Save(ctx, id, fields)
		return err
	}
}

func (w *Workflow) listener(id model.Identity) autosave.Listener {
	return func(ctx context.Context, r autosave.Result) {
		if r.Err != nil {
			w.notifier.DraftSaveFailed(ctx, id, r.Err)
			return
		}
		w.notifier.DraftSaved(ctx, id, r.At)
	}
}

func persistenceErr(op string, id model.Identity, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrPersistence, op, id, err)
}
