// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsboard/pulse/internal/domain/period"
)

// ErrInvalidIdentity is returned when an identity has no subject or period.
var ErrInvalidIdentity = errors.New("invalid identity")

// Identity keys drafts and submissions: one subject in one period.
// Equality is structural, so Identity works as a map key.
type Identity struct {
	SubjectKey string     `json:"subject_key"`
	Period     period.Key `json:"period"`
}

// Validate requires a non-blank subject and a non-zero period.
func (id Identity) Validate() error {
	if strings.TrimSpace(id.SubjectKey) == "" {
		return fmt.Errorf("%w: empty subject", ErrInvalidIdentity)
	}
	if id.Period.IsZero() {
		return fmt.Errorf("%w: empty period", ErrInvalidIdentity)
	}
	return nil
}

// String renders subject/period.
func (id Identity) String() string {
	return id.SubjectKey + "/" + id.Period.String()
}

// MetricRecord holds one subject's raw metric values for one period.
type MetricRecord struct {
	SubjectID string             `json:"subject_id"`
	Period    period.Key         `json:"period"`
	Values    map[string]float64 `json:"values"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Value returns the named metric, or 0 when the record does not carry it.
func (r MetricRecord) Value(name string) float64 {
	return r.Values[name]
}

// Submission is the canonical, validated form content for an identity.
type Submission struct {
	Identity    Identity  `json:"identity"`
	Fields      Fields    `json:"fields"`
	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ScoreEvent asks the recompute pipeline to refresh a subject's composite
// scores for one period.
type ScoreEvent struct {
	EventID   string     // unique id for idempotency
	SubjectID string     // subject whose metrics changed
	Period    period.Key // period of the changed record
	TS        time.Time  // when the change was observed
}

// NewScoreEvent builds a ScoreEvent with a fresh random id.
func NewScoreEvent(subjectID string, p period.Key, ts time.Time) ScoreEvent {
	return ScoreEvent{
		EventID:   uuid.NewString(),
		SubjectID: subjectID,
		Period:    p,
		TS:        ts,
	}
}
