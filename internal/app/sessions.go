package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opsboard/pulse/internal/domain/autosave"
	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/internal/domain/period"
	"github.com/opsboard/pulse/internal/domain/workflow"
	"github.com/opsboard/pulse/pkg/logger"
	"github.com/opsboard/pulse/pkg/metrics"
)

// session is one open editing workflow.
type session struct {
	id       string
	wf       *workflow.Workflow
	lastUsed atomic.Int64 // unix nanos
}

func (s *session) touch(now time.Time) { s.lastUsed.Store(now.UnixNano()) }

func (s *session) idleSince() time.Time { return time.Unix(0, s.lastUsed.Load()) }

// SessionView is the read shape of a session.
type SessionView struct {
	ID         string              `json:"id"`
	Identity   model.Identity      `json:"identity"`
	Fields     model.Fields        `json:"fields"`
	Status     autosave.Status     `json:"status"`
	Submission *model.Submission   `json:"submission,omitempty"`
	Draft      *workflow.DraftInfo `json:"draft,omitempty"`
}

// OpenSession starts editing subjectKey's form for the YYYY-MM period.
func (s *Service) OpenSession(ctx context.Context, subjectKey, rawPeriod string) (SessionView, error) {
	if err := s.running(); err != nil {
		return SessionView{}, err
	}
	p, err := period.Parse(rawPeriod)
	if err != nil {
		return SessionView{}, err
	}
	id := model.Identity{SubjectKey: subjectKey, Period: p}

	wf := workflow.New(s.drafts, s.submissions,
		workflow.WithClock(s.clock),
		workflow.WithDebounce(s.debounce),
		workflow.WithSaveTimeout(s.saveTimeout),
		workflow.WithValidator(s.validator),
		workflow.WithNotifier(s.notifier),
		workflow.WithLogger(s.logger.Named("workflow")),
	)
	opened, err := wf.Open(ctx, id)
	if err != nil {
		wf.Close()
		return SessionView{}, err
	}

	sess := &session{id: uuid.NewString(), wf: wf}
	sess.touch(s.clock.Now())

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		wf.Close()
		return SessionView{}, ErrNotStarted
	}
	s.sessions[sess.id] = sess
	count := len(s.sessions)
	s.mu.Unlock()
	metrics.UpdateActiveSessions(count)

	s.logger.Debug(ctx, "session opened",
		logger.String("session", sess.id),
		logger.String("identity", id.String()),
		logger.Bool("hasDraft", opened.Draft != nil),
	)

	status, _ := wf.Status()
	return SessionView{
		ID:         sess.id,
		Identity:   opened.Identity,
		Fields:     opened.Fields,
		Status:     status,
		Submission: opened.Submission,
		Draft:      opened.Draft,
	}, nil
}

// Session returns the current fields and autosave status of a session.
func (s *Service) Session(_ context.Context, sessionID string) (SessionView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	return viewOf(sess)
}

// CloseSession flushes unsaved edits as a draft and ends the session.
func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	count := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	metrics.UpdateActiveSessions(count)
	s.closeSession(ctx, sess)
	return nil
}

// UpdateFields applies edits to a session and restarts its autosave window.
func (s *Service) UpdateFields(_ context.Context, sessionID string, changes model.Fields) (autosave.Status, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return autosave.Status{}, err
	}
	if err := sess.wf.UpdateMany(changes); err != nil {
		return autosave.Status{}, err
	}
	return sess.wf.Status()
}

// CycleAttendance advances the attendance mark of day and returns the new mark.
func (s *Service) CycleAttendance(_ context.Context, sessionID string, day int) (workflow.AttendanceMark, autosave.Status, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return "", autosave.Status{}, err
	}
	mark, err := sess.wf.CycleAttendance(day)
	if err != nil {
		return "", autosave.Status{}, err
	}
	status, err := sess.wf.Status()
	return mark, status, err
}

// SaveDraft saves the session's fields immediately.
func (s *Service) SaveDraft(ctx context.Context, sessionID string) (autosave.Status, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return autosave.Status{}, err
	}
	if err := sess.wf.SaveDraft(ctx); err != nil {
		return autosave.Status{}, err
	}
	return sess.wf.Status()
}

// ResumeDraft replaces the session's fields with its stored draft.
func (s *Service) ResumeDraft(ctx context.Context, sessionID string) (SessionView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if _, err := sess.wf.ResumeDraft(ctx); err != nil {
		return SessionView{}, err
	}
	return viewOf(sess)
}

// DiscardDraft deletes the stored draft and resets the session's fields.
func (s *Service) DiscardDraft(ctx context.Context, sessionID string) (SessionView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if _, err := sess.wf.DiscardDraft(ctx); err != nil {
		return SessionView{}, err
	}
	return viewOf(sess)
}

// Submit finalizes the session's fields. The numeric fields are merged into
// the period's metric record and a score recompute is requested; failures
// there are logged and do not undo the submission.
func (s *Service) Submit(ctx context.Context, sessionID string) (model.Submission, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return model.Submission{}, err
	}
	sub, err := sess.wf.Submit(ctx)
	if err != nil {
		return model.Submission{}, err
	}

	values := sub.Fields.Numbers()
	if len(values) == 0 {
		return sub, nil
	}
	if _, err := s.mergeMetrics(ctx, sub.Identity, values); err != nil {
		s.logger.Warn(ctx, "metric record from submission failed",
			logger.String("identity", sub.Identity.String()),
			logger.Error(err),
		)
	}
	return sub, nil
}

// ReapIdle closes sessions idle for longer than the configured TTL and
// returns how many were closed.
func (s *Service) ReapIdle(ctx context.Context) int {
	if s.idleTTL <= 0 {
		return 0
	}
	cutoff := s.clock.Now().Add(-s.idleTTL)

	s.mu.Lock()
	var idle []*session
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	if len(idle) == 0 {
		return 0
	}
	metrics.UpdateActiveSessions(count)
	for _, sess := range idle {
		s.closeSession(ctx, sess)
	}
	s.logger.Info(ctx, "reaped idle sessions", logger.Int("count", len(idle)))
	return len(idle)
}

func (s *Service) session(sessionID string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess.touch(s.clock.Now())
	return sess, nil
}

// closeSession saves pending edits as a draft before closing.
func (s *Service) closeSession(ctx context.Context, sess *session) {
	if status, err := sess.wf.Status(); err == nil && status.Unsaved {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		if err := sess.wf.SaveDraft(flushCtx); err != nil {
			s.logger.Warn(ctx, "flush on close failed", logger.String("session", sess.id), logger.Error(err))
		}
		cancel()
	}
	sess.wf.Close()
}

func viewOf(sess *session) (SessionView, error) {
	id, _ := sess.wf.Identity()
	fields, err := sess.wf.Fields()
	if err != nil {
		return SessionView{}, err
	}
	status, err := sess.wf.Status()
	if err != nil {
		return SessionView{}, err
	}
	return SessionView{ID: sess.id, Identity: id, Fields: fields, Status: status}, nil
}
