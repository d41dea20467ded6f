// Package period implements the YYYY-MM reporting period used as the
// time half of every draft, submission and metric record identity.
package period

import (
	"fmt"
	"iter"
	"time"

	"github.com/opsboard/pulse/pkg/clock"
)

const (
	minYear = 1
	maxYear = 9999
	layout  = "2006-01"

	// Month indexes of 0001-01 and 9999-12.
	minIndex = minYear * 12
	maxIndex = maxYear*12 + 11
)

// Key identifies one monthly reporting cycle. The zero Key means "no period".
// Keys are comparable and safe to use as map keys.
type Key struct {
	year  int
	month time.Month
}

// New builds a Key, rejecting months outside [1,12] and years outside [1,9999].
func New(year int, month time.Month) (Key, error) {
	if year < minYear || year > maxYear || month < time.January || month > time.December {
		return Key{}, fmt.Errorf("%w: %04d-%02d", ErrInvalidPeriod, year, int(month))
	}
	return Key{year: year, month: month}, nil
}

// Parse reads a strict YYYY-MM string.
func Parse(s string) (Key, error) {
	if len(s) != len(layout) || s[4] != '-' {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	year, ok := digits(s[:4])
	if !ok {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	month, ok := digits(s[5:])
	if !ok {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return New(year, time.Month(month))
}

// MustParse is Parse that panics; for constants and tests.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

func digits(s string) (int, bool) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// Current returns the period containing t, in t's own location.
func Current(t time.Time) Key {
	return Key{year: t.Year(), month: t.Month()}
}

// Now returns the current period according to c, using local calendar fields.
func Now(c clock.Clock) Key {
	return Current(c.Now().Local())
}

// Year returns the calendar year of k.
func (k Key) Year() int { return k.year }

// Month returns the calendar month of k.
func (k Key) Month() time.Month { return k.month }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k.year == 0 && k.month == 0 }

// String renders k as YYYY-MM. The zero Key renders as "".
func (k Key) String() string {
	if k.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", k.year, int(k.month))
}

// AddMonths moves k by n months, rolling the year over as needed. The result
// is clamped to [0001-01, 9999-12].
func (k Key) AddMonths(n int) Key {
	if k.IsZero() {
		return k
	}
	return fromIndex(min(max(k.index()+n, minIndex), maxIndex))
}

func (k Key) index() int { return k.year*12 + int(k.month-1) }

func fromIndex(idx int) Key {
	return Key{year: idx / 12, month: time.Month(idx%12 + 1)}
}

// Previous returns the month before k.
func (k Key) Previous() Key { return k.AddMonths(-1) }

// Next returns the month after k.
func (k Key) Next() Key { return k.AddMonths(1) }

// Compare returns -1, 0 or +1 depending on whether k is before, equal to or after o.
func (k Key) Compare(o Key) int {
	switch {
	case k.year < o.year:
		return -1
	case k.year > o.year:
		return 1
	case k.month < o.month:
		return -1
	case k.month > o.month:
		return 1
	}
	return 0
}

// Before reports whether k is strictly earlier than o.
func (k Key) Before(o Key) bool { return k.Compare(o) < 0 }

// After reports whether k is strictly later than o.
func (k Key) After(o Key) bool { return k.Compare(o) > 0 }

// Label renders "March 2024". Month names are always English.
func (k Key) Label() string {
	if k.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s %d", k.month.String(), k.year)
}

// ShortLabel renders "Mar 2024".
func (k Key) ShortLabel() string {
	if k.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s %d", k.month.String()[:3], k.year)
}

// FirstDay returns midnight of the first day of k in loc.
func (k Key) FirstDay(loc *time.Location) time.Time {
	return time.Date(k.year, k.month, 1, 0, 0, 0, 0, loc)
}

// LastDay returns midnight of the last day of k in loc.
func (k Key) LastDay(loc *time.Location) time.Time {
	return k.FirstDay(loc).AddDate(0, 1, -1)
}

// Days returns the number of days in k.
func (k Key) Days() int {
	return k.LastDay(time.UTC).Day()
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields the zero Key.
func (k *Key) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*k = Key{}
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Range yields the n keys ending at end, newest first. It stops early at
// 0001-01 and yields nothing for the zero Key. The sequence holds no state
// between iterations, so it can be ranged over any number of times.
func Range(end Key, n int) iter.Seq[Key] {
	return func(yield func(Key) bool) {
		if end.IsZero() {
			return
		}
		for idx := end.index(); idx > end.index()-n && idx >= minIndex; idx-- {
			if !yield(fromIndex(idx)) {
				return
			}
		}
	}
}

// Year returns the twelve keys of a calendar year in ascending order.
func Year(year int) []Key {
	keys := make([]Key, 0, 12)
	for m := time.January; m <= time.December; m++ {
		keys = append(keys, Key{year: year, month: m})
	}
	return keys
}
