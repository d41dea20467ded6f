package scoring

import "errors"

// Sentinel errors for scoring.
var (
	ErrUnknownKind    = errors.New("unknown score kind")
	ErrInvalidWeights = errors.New("invalid weight table")
)
