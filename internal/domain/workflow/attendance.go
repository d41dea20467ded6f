package workflow

import (
	"fmt"
	"strconv"

	"github.com/opsboard/pulse/internal/domain/model"
	"github.com/opsboard/pulse/internal/domain/period"
	"github.com/opsboard/pulse/internal/domain/scoring"
)

// FieldAttendanceDays holds the per-day marks as {"<day>": "<mark>"}.
const FieldAttendanceDays = "attendance_days"

// AttendanceMark is the state of one calendar day.
type AttendanceMark string

// Marks in cycling order.
const (
	MarkPresent AttendanceMark = "present"
	MarkWFH     AttendanceMark = "wfh"
	MarkLeave   AttendanceMark = "leave"
	MarkAbsent  AttendanceMark = "absent"
	MarkHoliday AttendanceMark = "holiday"
)

var markCycle = []AttendanceMark{MarkPresent, MarkWFH, MarkLeave, MarkAbsent, MarkHoliday}

// Next returns the mark a click moves to. Unknown marks start the cycle.
func (m AttendanceMark) Next() AttendanceMark {
	for i, c := range markCycle {
		if c == m {
			return markCycle[(i+1)%len(markCycle)]
		}
	}
	return MarkPresent
}

// AttendanceSheet maps day of month to mark.
type AttendanceSheet map[int]AttendanceMark

// SheetFrom reads the sheet stored in fields. Malformed entries are skipped.
func SheetFrom(fields model.Fields) AttendanceSheet {
	sheet := AttendanceSheet{}
	raw, _ := fields[FieldAttendanceDays].(map[string]any)
	for k, v := range raw {
		day, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			sheet[day] = AttendanceMark(s)
		}
	}
	return sheet
}

// Tally counts days per mark.
func (s AttendanceSheet) Tally() map[AttendanceMark]int {
	out := make(map[AttendanceMark]int, len(markCycle))
	for _, m := range s {
		out[m]++
	}
	return out
}

// Fields renders the sheet plus the derived office and home day counts.
func (s AttendanceSheet) Fields() model.Fields {
	raw := make(map[string]any, len(s))
	for day, m := range s {
		raw[strconv.Itoa(day)] = string(m)
	}
	tally := s.Tally()
	return model.Fields{
		FieldAttendanceDays:         raw,
		scoring.MetricAttendanceWFO: float64(tally[MarkPresent]),
		scoring.MetricAttendanceWFH: float64(tally[MarkWFH]),
	}
}

// cycleDay advances the mark of day within p and returns the edit to apply.
func cycleDay(fields model.Fields, p period.Key, day int) (model.Fields, AttendanceMark, error) {
	if day < 1 || day > p.Days() {
		return nil, "", fmt.Errorf("%w: %d not in %s", ErrInvalidDay, day, p)
	}
	sheet := SheetFrom(fields)
	next := sheet[day].Next()
	sheet[day] = next
	return sheet.Fields(), next, nil
}
