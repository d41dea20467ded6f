package workflow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/internal/domain/period"
	"github.com/opsboard/pulse/internal/domain/scoring"
)

// Form field names checked by MonthlyFormValidator.
const (
	FieldTasksCount    = "tasks_count"
	FieldTasksEvidence = "tasks_evidence"
	FieldAttendance    = "attendance_total"
)

// Validator checks submitted fields. A nil return accepts them; a
// *ValidationError rejects them with per-field messages.
type Validator interface {
	Validate(id model.Identity, fields model.Fields) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(id model.Identity, fields model.Fields) error

// Validate calls f.
func (f ValidatorFunc) Validate(id model.Identity, fields model.Fields) error { return f(id, fields) }

// Validators runs every validator and merges their messages. Any other error
// stops the run.
type Validators []Validator

// Validate implements Validator.
func (vs Validators) Validate(id model.Identity, fields model.Fields) error {
	merged := &ValidationError{}
	for _, v := range vs {
		err := v.Validate(id, fields)
		if err == nil {
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		for f, msg := range ve.Messages {
			merged.Add(f, msg)
		}
	}
	return merged.Err()
}

// MonthlyFormValidator enforces the monthly report rules: attendance is
// bounded by the period's working days and reported tasks need evidence.
type MonthlyFormValidator struct {
	Calendar period.Calendar
}

// NewMonthlyFormValidator uses the default office calendar.
func NewMonthlyFormValidator() MonthlyFormValidator {
	return MonthlyFormValidator{Calendar: period.DefaultCalendar()}
}

// Validate implements Validator.
func (v MonthlyFormValidator) Validate(id model.Identity, fields model.Fields) error {
	ve := &ValidationError{}
	working := id.Period.WorkingDays(v.Calendar)
	label := id.Period.Label()

	wfo := attendance(ve, fields, scoring.MetricAttendanceWFO, "Work from Office", working, label)
	wfh := attendance(ve, fields, scoring.MetricAttendanceWFH, "Work from Home", working, label)
	if total := wfo + wfh; total > float64(working) {
		ve.Add(FieldAttendance, fmt.Sprintf("Total attendance (%s days) cannot exceed %d working days for %s",
			strconv.FormatFloat(total, 'f', -1, 64), working, label))
	}

	if _, present := fields[FieldTasksCount]; present {
		count, ok := fields.Number(FieldTasksCount)
		switch {
		case !ok:
			ve.Add(FieldTasksCount, "Task count must be a number")
		case count < 0:
			ve.Add(FieldTasksCount, "Task count cannot be negative")
		case count > 0 && !hasEvidence(fields[FieldTasksEvidence]):
			ve.Add(FieldTasksEvidence, "Evidence is required when tasks are reported")
		}
	}
	return ve.Err()
}

// attendance validates one attendance field and returns its value, or 0 when
// it is absent or invalid.
func attendance(ve *ValidationError, fields model.Fields, key, name string, working int, label string) float64 {
	if v, present := fields[key]; !present || v == nil || v == "" {
		return 0
	}
	n, ok := fields.Number(key)
	switch {
	case !ok:
		ve.Add(key, name+" days must be a number")
		return 0
	case n < 0:
		ve.Add(key, name+" days cannot be negative")
		return 0
	case n > float64(working):
		ve.Add(key, fmt.Sprintf("%s days cannot exceed %d working days for %s", name, working, label))
	}
	return n
}

func hasEvidence(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				return true
			}
		}
	case []string:
		for _, s := range t {
			if strings.TrimSpace(s) != "" {
				return true
			}
		}
	}
	return false
}
