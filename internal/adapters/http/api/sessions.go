package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	service "github.com/opsboard/pulse/internal/app"
	"github.com/opsboard/pulse/internal/domain/autosave"
	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/internal/domain/workflow"
	"github.com/opsboard/pulse/pkg/logger"
)

// SessionDependencies defines the editing session operations.
type SessionDependencies interface {
	OpenSession(ctx context.Context, subjectKey, period string) (service.SessionView, error)
	Session(ctx context.Context, sessionID string) (service.SessionView, error)
	CloseSession(ctx context.Context, sessionID string) error
	UpdateFields(ctx context.Context, sessionID string, changes model.Fields) (autosave.Status, error)
	CycleAttendance(ctx context.Context, sessionID string, day int) (workflow.AttendanceMark, autosave.Status, error)
	SaveDraft(ctx context.Context, sessionID string) (autosave.Status, error)
	ResumeDraft(ctx context.Context, sessionID string) (service.SessionView, error)
	DiscardDraft(ctx context.Context, sessionID string) (service.SessionView, error)
	Submit(ctx context.Context, sessionID string) (model.Submission, error)
}

// openRequest mirrors the OpenAPI schema for POST /sessions.
type openRequest struct {
	SubjectKey string `json:"subject_key"`
	Period     string `json:"period"`
}

func (o openRequest) validate() error {
	switch {
	case strings.TrimSpace(o.SubjectKey) == "":
		return errors.New("missing subject_key")
	case strings.TrimSpace(o.Period) == "":
		return errors.New("missing period")
	}
	return nil
}

type attendanceResponse struct {
	Day    int                     `json:"day"`
	Mark   workflow.AttendanceMark `json:"mark"`
	Status autosave.Status         `json:"status"`
}

// SessionsHandler handles editing session requests.
type SessionsHandler struct {
	deps SessionDependencies
	log  logger.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies, log logger.Logger) *SessionsHandler {
	return &SessionsHandler{deps: deps, log: logger.OrGet(log, "api")}
}

// HandleOpen handles POST /sessions.
func (h *SessionsHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	const op = "api.open_session"
	var req openRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, "sessions", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		h.fail(w, r, "sessions", WrapKind(op, ErrBadRequest, err))
		return
	}
	view, err := h.deps.OpenSession(r.Context(), strings.TrimSpace(req.SubjectKey), strings.TrimSpace(req.Period))
	if err != nil {
		h.fail(w, r, "sessions", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HandleGet handles GET /sessions/{id}.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "session", Wrap("api.get_session", err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleClose handles DELETE /sessions/{id}.
func (h *SessionsHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.CloseSession(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, "session", Wrap("api.close_session", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpdateFields handles PATCH /sessions/{id}/fields with a JSON object
// of field edits.
func (h *SessionsHandler) HandleUpdateFields(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_fields"
	var changes model.Fields
	if err := decodeBody(w, r, &changes); err != nil {
		h.fail(w, r, "session_fields", WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(changes) == 0 {
		h.fail(w, r, "session_fields", WrapKind(op, ErrBadRequest, errors.New("no fields")))
		return
	}
	status, err := h.deps.UpdateFields(r.Context(), r.PathValue("id"), changes)
	if err != nil {
		h.fail(w, r, "session_fields", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleCycleAttendance handles POST /sessions/{id}/attendance/{day}.
func (h *SessionsHandler) HandleCycleAttendance(w http.ResponseWriter, r *http.Request) {
	const op = "api.cycle_attendance"
	day, err := strconv.Atoi(r.PathValue("day"))
	if err != nil {
		h.fail(w, r, "session_attendance", WrapKind(op, ErrBadRequest, err))
		return
	}
	mark, status, err := h.deps.CycleAttendance(r.Context(), r.PathValue("id"), day)
	if err != nil {
		h.fail(w, r, "session_attendance", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, attendanceResponse{Day: day, Mark: mark, Status: status})
}

// HandleSave handles POST /sessions/{id}/save.
func (h *SessionsHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	status, err := h.deps.SaveDraft(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "session_save", Wrap("api.save_draft", err))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleResume handles POST /sessions/{id}/resume.
func (h *SessionsHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.ResumeDraft(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "session_resume", Wrap("api.resume_draft", err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleDiscard handles POST /sessions/{id}/discard.
func (h *SessionsHandler) HandleDiscard(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.DiscardDraft(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "session_discard", Wrap("api.discard_draft", err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleSubmit handles POST /sessions/{id}/submit.
func (h *SessionsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	sub, err := h.deps.Submit(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "session_submit", Wrap("api.submit", err))
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SessionsHandler) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	respondError(r.Context(), w, h.log, endpoint, err)
}
