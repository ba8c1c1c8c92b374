package schedule

import (
	"testing"
	"time"

	"content-automation-pipeline/internal/models"
)

func intp(v int) *int { return &v }

func mustTime(t *testing.T, v string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		t.Fatalf("parse %q: %v", v, err)
	}
	return ts
}

func TestNextRun(t *testing.T) {
	cases := []struct {
		name string
		freq string
		p    Params
		now  string
		want string
	}{
		{
			name: "daily before time of day fires today",
			freq: models.FreqDaily,
			p:    Params{TimeOfDay: "09:00"},
			now:  "2025-03-10T08:00:00Z",
			want: "2025-03-10T09:00:00Z",
		},
		{
			name: "daily past time of day rolls to tomorrow",
			freq: models.FreqDaily,
			p:    Params{TimeOfDay: "09:00"},
			now:  "2025-03-10T10:00:00Z",
			want: "2025-03-11T09:00:00Z",
		},
		{
			name: "daily exactly at time of day rolls forward",
			freq: models.FreqDaily,
			p:    Params{TimeOfDay: "09:00"},
			now:  "2025-03-10T09:00:00Z",
			want: "2025-03-11T09:00:00Z",
		},
		{
			// 2025-03-10 is a Monday.
			name: "3x_week on monday before time fires monday",
			freq: models.FreqThrice,
			p:    Params{TimeOfDay: "09:00"},
			now:  "2025-03-10T08:00:00Z",
			want: "2025-03-10T09:00:00Z",
		},
		{
			name: "3x_week on monday after time fires wednesday",
			freq: models.FreqThrice,
			p:    Params{TimeOfDay: "09:00"},
			now:  "2025-03-10T10:00:00Z",
			want: "2025-03-12T09:00:00Z",
		},
		{
			// 2025-03-15 is a Saturday; next slot is Monday.
			name: "3x_week on weekend fires next monday",
			freq: models.FreqThrice,
			p:    Params{TimeOfDay: "09:00"},
			now:  "2025-03-15T12:00:00Z",
			want: "2025-03-17T09:00:00Z",
		},
		{
			name: "weekly before target weekday",
			freq: models.FreqWeekly,
			p:    Params{DayOfWeek: intp(5), TimeOfDay: "14:30"}, // Friday
			now:  "2025-03-10T08:00:00Z",
			want: "2025-03-14T14:30:00Z",
		},
		{
			name: "weekly on target weekday past time rolls 7 days",
			freq: models.FreqWeekly,
			p:    Params{DayOfWeek: intp(1), TimeOfDay: "09:00"}, // Monday
			now:  "2025-03-10T10:00:00Z",
			want: "2025-03-17T09:00:00Z",
		},
		{
			name: "monthly before target day fires this month",
			freq: models.FreqMonthly,
			p:    Params{DayOfMonth: intp(15), TimeOfDay: "09:00"},
			now:  "2025-03-10T08:00:00Z",
			want: "2025-03-15T09:00:00Z",
		},
		{
			name: "monthly past target day rolls to next month",
			freq: models.FreqMonthly,
			p:    Params{DayOfMonth: intp(5), TimeOfDay: "09:00"},
			now:  "2025-03-10T08:00:00Z",
			want: "2025-04-05T09:00:00Z",
		},
		{
			// Day 31 requested in April (30 days): clamp to the 30th.
			name: "monthly overflow clamps to last day",
			freq: models.FreqMonthly,
			p:    Params{DayOfMonth: intp(31), TimeOfDay: "09:00"},
			now:  "2025-04-01T08:00:00Z",
			want: "2025-04-30T09:00:00Z",
		},
		{
			// Day 31 in February of a non-leap year: clamp to the 28th.
			name: "monthly overflow clamps in february",
			freq: models.FreqMonthly,
			p:    Params{DayOfMonth: intp(31), TimeOfDay: "09:00"},
			now:  "2025-01-31T10:00:00Z",
			want: "2025-02-28T09:00:00Z",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now := mustTime(t, tc.now)
			got, err := NextRun(tc.freq, tc.p, now)
			if err != nil {
				t.Fatalf("NextRun: %v", err)
			}
			want := mustTime(t, tc.want)
			if !got.Equal(want) {
				t.Fatalf("got %s want %s", got, want)
			}
			if !got.After(now) {
				t.Fatalf("result %s not strictly after now %s", got, now)
			}

			// Deterministic: same inputs, same output.
			again, err := NextRun(tc.freq, tc.p, now)
			if err != nil {
				t.Fatalf("NextRun second call: %v", err)
			}
			if !again.Equal(got) {
				t.Fatalf("not idempotent: %s vs %s", again, got)
			}
		})
	}
}

func TestNextRunAlwaysFuture(t *testing.T) {
	// Sweep a week of hourly clock positions across every frequency.
	start := mustTime(t, "2025-05-01T00:00:00Z")
	freqs := []struct {
		freq string
		p    Params
	}{
		{models.FreqDaily, Params{TimeOfDay: "12:00"}},
		{models.FreqThrice, Params{TimeOfDay: "12:00"}},
		{models.FreqWeekly, Params{DayOfWeek: intp(3), TimeOfDay: "12:00"}},
		{models.FreqMonthly, Params{DayOfMonth: intp(31), TimeOfDay: "12:00"}},
	}
	for _, f := range freqs {
		for h := 0; h < 7*24; h++ {
			now := start.Add(time.Duration(h) * time.Hour)
			got, err := NextRun(f.freq, f.p, now)
			if err != nil {
				t.Fatalf("%s at %s: %v", f.freq, now, err)
			}
			if !got.After(now) {
				t.Fatalf("%s at %s: result %s not in the future", f.freq, now, got)
			}
		}
	}
}

func TestNextRunValidation(t *testing.T) {
	now := mustTime(t, "2025-03-10T08:00:00Z")

	if _, err := NextRun("fortnightly", Params{TimeOfDay: "09:00"}, now); err == nil {
		t.Fatal("expected error for unknown frequency")
	}
	if _, err := NextRun(models.FreqWeekly, Params{TimeOfDay: "09:00"}, now); err == nil {
		t.Fatal("expected error for weekly without day_of_week")
	}
	if _, err := NextRun(models.FreqMonthly, Params{TimeOfDay: "09:00"}, now); err == nil {
		t.Fatal("expected error for monthly without day_of_month")
	}
	if _, err := NextRun(models.FreqDaily, Params{TimeOfDay: "25:00"}, now); err == nil {
		t.Fatal("expected error for invalid time_of_day")
	}
}
