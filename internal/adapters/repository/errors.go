package repository

import "errors"

// Sentinel errors for repository lookups.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
)
