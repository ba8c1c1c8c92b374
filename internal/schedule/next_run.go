// Package schedule computes recurrence fire times for automations.
// NextRun is pure: no clock reads, no persistence. Callers store the result
// after a successful dispatch.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"content-automation-pipeline/internal/models"
)

var (
	ErrUnknownFrequency  = errors.New("unknown frequency")
	ErrMissingDayOfWeek  = errors.New("day_of_week required for weekly frequency")
	ErrMissingDayOfMonth = errors.New("day_of_month required for monthly frequency")
)

// Params narrows the automation fields the computation needs.
type Params struct {
	DayOfWeek  *int   // 0=Sunday .. 6=Saturday
	DayOfMonth *int   // 1..31; clamped to the month's last day
	TimeOfDay  string // "HH:MM", UTC
}

// thriceDays is the fixed weekday set for the 3x_week frequency.
var thriceDays = map[time.Weekday]bool{
	time.Monday:    true,
	time.Wednesday: true,
	time.Friday:    true,
}

// NextRun returns the next fire time strictly after now for the given
// frequency. Same inputs always produce the same output.
func NextRun(frequency string, p Params, now time.Time) (time.Time, error) {
	hour, minute, err := parseTimeOfDay(p.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	now = now.UTC()

	switch frequency {
	case models.FreqDaily:
		cand := at(now, hour, minute)
		if !cand.After(now) {
			cand = cand.AddDate(0, 0, 1)
		}
		return cand, nil

	case models.FreqThrice:
		for i := 0; i < 7; i++ {
			day := now.AddDate(0, 0, i)
			if !thriceDays[day.Weekday()] {
				continue
			}
			cand := at(day, hour, minute)
			if cand.After(now) {
				return cand, nil
			}
		}
		// Full scan came up empty (clock skew edge); fall back to next Monday.
		delta := int(time.Monday-now.Weekday()+7) % 7
		if delta == 0 {
			delta = 7
		}
		return at(now.AddDate(0, 0, delta), hour, minute), nil

	case models.FreqWeekly:
		if p.DayOfWeek == nil {
			return time.Time{}, ErrMissingDayOfWeek
		}
		target := time.Weekday(*p.DayOfWeek % 7)
		delta := int(target-now.Weekday()+7) % 7
		cand := at(now.AddDate(0, 0, delta), hour, minute)
		if !cand.After(now) {
			cand = cand.AddDate(0, 0, 7)
		}
		return cand, nil

	case models.FreqMonthly:
		if p.DayOfMonth == nil {
			return time.Time{}, ErrMissingDayOfMonth
		}
		cand := monthlyAt(now.Year(), now.Month(), *p.DayOfMonth, hour, minute)
		if !cand.After(now) {
			next := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
			cand = monthlyAt(next.Year(), next.Month(), *p.DayOfMonth, hour, minute)
		}
		return cand, nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, frequency)
}

// monthlyAt places the target day in the given month, clamping day-of-month
// overflow (e.g. 31 in a 30-day month) to the month's last day.
func monthlyAt(year int, month time.Month, day, hour, minute int) time.Time {
	if last := daysIn(year, month); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
}

func parseTimeOfDay(v string) (int, int, error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time_of_day %q", v)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid time_of_day %q", v)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time_of_day %q", v)
	}
	return hour, minute, nil
}
