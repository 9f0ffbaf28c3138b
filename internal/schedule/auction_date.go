package schedule

import (
	"fmt"
	"strings"
	"time"
)

// ShiftStrategy decides where an auction moves when its first Monday is a holiday
type ShiftStrategy string

const (
	// ShiftNextMonday moves the auction a week at a time to the following Monday
	ShiftNextMonday ShiftStrategy = "next_monday"
	// ShiftNextBusinessDay moves the auction to the next weekday that is not a holiday
	ShiftNextBusinessDay ShiftStrategy = "next_business_day"
)

// maxShiftSteps bounds the search for a non-holiday date
const maxShiftSteps = 31

// ParseShiftStrategy parses a configuration value into a ShiftStrategy
func ParseShiftStrategy(s string) (ShiftStrategy, error) {
	switch ShiftStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ShiftNextMonday:
		return ShiftNextMonday, nil
	case ShiftNextBusinessDay:
		return ShiftNextBusinessDay, nil
	default:
		return "", fmt.Errorf("unknown auction shift strategy %q", s)
	}
}

// InvalidMonthError is returned when a month outside 1-12 is requested.
// It indicates a defect in the caller's month handling and is not retryable.
type InvalidMonthError struct {
	Month int
}

func (e *InvalidMonthError) Error() string {
	return fmt.Sprintf("invalid month %d: must be between 1 and 12", e.Month)
}

// Resolution describes how an auction date was derived
type Resolution struct {
	Date        time.Time `json:"date"`
	FirstMonday time.Time `json:"firstMonday"`
	Shifted     bool      `json:"shifted"`
	Holiday     string    `json:"holiday,omitempty"`
}

// AuctionDateResolver computes the legal auction date for a month
type AuctionDateResolver struct {
	calendar *HolidayCalendar
	strategy ShiftStrategy
}

// NewAuctionDateResolver creates a resolver. A nil calendar uses the federal
// holiday set; an empty strategy uses ShiftNextMonday.
func NewAuctionDateResolver(calendar *HolidayCalendar, strategy ShiftStrategy) *AuctionDateResolver {
	if calendar == nil {
		calendar = NewHolidayCalendar()
	}
	if strategy == "" {
		strategy = ShiftNextMonday
	}
	return &AuctionDateResolver{calendar: calendar, strategy: strategy}
}

// Resolve returns the auction date for year/month at midnight UTC
func (r *AuctionDateResolver) Resolve(year, month int) (time.Time, error) {
	res, err := r.ResolveDetailed(year, month)
	if err != nil {
		return time.Time{}, err
	}
	return res.Date, nil
}

// ResolveDetailed is Resolve plus the first Monday and the holiday that moved it
func (r *AuctionDateResolver) ResolveDetailed(year, month int) (Resolution, error) {
	if month < 1 || month > 12 {
		return Resolution{}, &InvalidMonthError{Month: month}
	}

	firstMonday := FirstWeekdayOfMonth(year, time.Month(month), time.Monday)
	res := Resolution{Date: firstMonday, FirstMonday: firstMonday}

	holiday, ok := r.calendar.HolidayOn(firstMonday)
	if !ok {
		return res, nil
	}

	res.Shifted = true
	res.Holiday = holiday.Name
	res.Date = r.shift(firstMonday)
	return res, nil
}

// Strategy returns the configured shift strategy
func (r *AuctionDateResolver) Strategy() ShiftStrategy {
	return r.strategy
}

func (r *AuctionDateResolver) shift(date time.Time) time.Time {
	for i := 0; i < maxShiftSteps; i++ {
		switch r.strategy {
		case ShiftNextBusinessDay:
			date = date.AddDate(0, 0, 1)
			if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
				continue
			}
		default:
			date = date.AddDate(0, 0, 7)
		}

		if !r.calendar.IsFederalHoliday(date) {
			return date
		}
	}
	return date
}
