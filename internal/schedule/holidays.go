// Package schedule computes county foreclosure auction dates.
//
// Auctions are held on the first Monday of the month. When that Monday is a
// federal holiday the auction moves according to a ShiftStrategy. Everything
// in this package is pure: no clocks, no I/O, no logging.
package schedule

import "time"

// Holiday is a single recognized holiday rule
type Holiday struct {
	Name string

	// Fixed-date holidays set Month and Day.
	Month time.Month
	Day   int

	// Floating holidays set Weekday and Nth (1 = first) instead of Day.
	Weekday time.Weekday
	Nth     int
}

// FederalHolidays is the fixed set of holidays that move an auction.
// Dates are literal calendar dates; weekend-observed shifts do not apply.
var FederalHolidays = []Holiday{
	{Name: "New Year's Day", Month: time.January, Day: 1},
	{Name: "Independence Day", Month: time.July, Day: 4},
	{Name: "Labor Day", Month: time.September, Weekday: time.Monday, Nth: 1},
}

// Date returns the holiday's date in the given year at midnight UTC
func (h Holiday) Date(year int) time.Time {
	if h.Nth > 0 {
		first := FirstWeekdayOfMonth(year, h.Month, h.Weekday)
		return first.AddDate(0, 0, 7*(h.Nth-1))
	}
	return time.Date(year, h.Month, h.Day, 0, 0, 0, 0, time.UTC)
}

// HolidayCalendar classifies dates against a set of holiday rules
type HolidayCalendar struct {
	holidays []Holiday
}

// NewHolidayCalendar creates a calendar over the given rules.
// With no rules it uses FederalHolidays.
func NewHolidayCalendar(holidays ...Holiday) *HolidayCalendar {
	if len(holidays) == 0 {
		holidays = FederalHolidays
	}
	return &HolidayCalendar{holidays: holidays}
}

// IsFederalHoliday reports whether date falls exactly on a holiday.
// Only the calendar date is compared; time of day and location are ignored.
func (c *HolidayCalendar) IsFederalHoliday(date time.Time) bool {
	_, ok := c.HolidayOn(date)
	return ok
}

// HolidayOn returns the holiday falling on date, if any
func (c *HolidayCalendar) HolidayOn(date time.Time) (Holiday, bool) {
	d := DateOnly(date)
	for _, h := range c.holidays {
		if h.Month != d.Month() {
			continue
		}
		if h.Date(d.Year()).Equal(d) {
			return h, true
		}
	}
	return Holiday{}, false
}

// FirstWeekdayOfMonth returns the earliest date in month whose weekday is wd,
// at midnight UTC. The 1st itself qualifies.
func FirstWeekdayOfMonth(year int, month time.Month, wd time.Weekday) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset)
}

// DateOnly truncates t to its calendar date at midnight UTC
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
