package autosave

import "errors"

// Sentinel errors for the autosave scheduler.
var (
	ErrSaveTimeout       = errors.New("draft save timed out")
	ErrClosed            = errors.New("autosave scheduler closed")
	ErrInvalidTransition = errors.New("invalid autosave transition")
)
