package period

import "time"

// MonthDay is a fixed calendar date that repeats every year.
type MonthDay struct {
	Month time.Month
	Day   int
}

// Calendar decides which days of a period count as working days.
type Calendar struct {
	// Holidays are fixed-date days off, keyed by month/day.
	Holidays map[MonthDay]string
	// AlternateSaturdays skips the 2nd and 4th Saturday of each month.
	AlternateSaturdays bool
}

// DefaultCalendar returns the office calendar: Sundays off, 2nd and 4th
// Saturdays off, and the national holiday list.
func DefaultCalendar() Calendar {
	return Calendar{
		AlternateSaturdays: true,
		Holidays: map[MonthDay]string{
			{time.January, 14}:  "Makar Sankranti",
			{time.January, 26}:  "Republic Day",
			{time.March, 8}:     "Holi",
			{time.April, 14}:    "Ram Navami",
			{time.May, 1}:       "Labour Day",
			{time.August, 15}:   "Independence Day",
			{time.August, 19}:   "Janmashtami",
			{time.September, 2}: "Ganesh Chaturthi",
			{time.October, 2}:   "Gandhi Jayanti",
			{time.October, 24}:  "Dussehra",
			{time.November, 12}: "Diwali",
			{time.November, 19}: "Guru Nanak Jayanti",
			{time.December, 25}: "Christmas Day",
		},
	}
}

// WorkingDays counts the days of k that are not weekends or holidays under cal.
func (k Key) WorkingDays(cal Calendar) int {
	if k.IsZero() {
		return 0
	}
	working := 0
	saturdays := 0
	for day := 1; day <= k.Days(); day++ {
		wd := time.Date(k.year, k.month, day, 0, 0, 0, 0, time.UTC).Weekday()
		if wd == time.Sunday {
			continue
		}
		if wd == time.Saturday {
			saturdays++
			if cal.AlternateSaturdays && (saturdays == 2 || saturdays == 4) {
				continue
			}
		}
		if _, ok := cal.Holidays[MonthDay{Month: k.month, Day: day}]; ok {
			continue
		}
		working++
	}
	return working
}
