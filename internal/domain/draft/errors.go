package draft

import (
	"errors"

	"github.com/opsboard/pulse/internal/domain/model"
)

// Sentinel errors for draft persistence.
var (
	// ErrNotFound means no draft exists; callers start from empty fields.
	ErrNotFound = errors.New("draft not found")
	// ErrPersistence wraps any failure of the underlying collaborator.
	ErrPersistence = errors.New("draft persistence failure")
	// ErrInvalidIdentity is returned before persistence is touched.
	ErrInvalidIdentity = model.ErrInvalidIdentity
)
