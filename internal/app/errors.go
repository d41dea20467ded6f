package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrSessionNotFound = errors.New("session not found")
	ErrBackpressure    = errors.New("recompute queue full")
	ErrNoRecord        = errors.New("metric record not found")
	ErrInvalidLimit    = errors.New("invalid limit")
)
