package workflow

import (
	"errors"
	"sort"
	"strings"

	"github.com/opsboard/pulse/internal/domain/draft"
)

// Sentinel errors for the submission workflow.
var (
	ErrValidationFailed = errors.New("validation failed")
	ErrNotOpen          = errors.New("no identity open")
	ErrInvalidDay       = errors.New("invalid day")
	// ErrPersistence is shared with the draft store so callers match one value.
	ErrPersistence = draft.ErrPersistence
)

// ValidationError carries per-field messages and matches ErrValidationFailed.
type ValidationError struct {
	Messages map[string]string `json:"messages"`
}

// Add records a message for field. The first message per field wins.
func (e *ValidationError) Add(field, msg string) {
	if e.Messages == nil {
		e.Messages = make(map[string]string)
	}
	if _, ok := e.Messages[field]; !ok {
		e.Messages[field] = msg
	}
}

// Empty reports whether no message was recorded.
func (e *ValidationError) Empty() bool { return e == nil || len(e.Messages) == 0 }

// Err returns e, or nil when it holds no messages.
func (e *ValidationError) Err() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Messages))
	for f := range e.Messages {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e.Messages[f])
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }
