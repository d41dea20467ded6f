package api

import (
	"errors"
	"fmt"
	"net/http"

	service "github.com/opsboard/pulse/internal/app"
	"github.com/opsboard/pulse/internal/domain/autosave"
	"github.com/opsboard/pulse/internal/domain/draft"
	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/internal/domain/period"
	"github.com/opsboard/pulse/internal/domain/scoring"
	"github.com/opsboard/pulse/internal/domain/workflow"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limited")
)

// Wrap annotates err with the operation name.
func Wrap(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// WrapKind annotates err with the operation and a sentinel kind.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// NewKind returns a bare sentinel kind for op.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// statusFor maps an error chain to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, workflow.ErrValidationFailed):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, period.ErrInvalidPeriod),
		errors.Is(err, model.ErrInvalidIdentity),
		errors.Is(err, scoring.ErrUnknownKind),
		errors.Is(err, workflow.ErrInvalidDay),
		errors.Is(err, service.ErrInvalidLimit):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrNoRecord),
		errors.Is(err, draft.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, autosave.ErrClosed), errors.Is(err, workflow.ErrNotOpen):
		return http.StatusConflict, "session_closed"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, draft.ErrPersistence), errors.Is(err, autosave.ErrSaveTimeout):
		return http.StatusInternalServerError, "persistence_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
