package model

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DateLayout is the persisted form of a calendar date.
	DateLayout = "2006-01-02"
	// ClockLayout is the persisted 24-hour form of a time of day.
	ClockLayout = "15:04"
)

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidClock = errors.New("invalid time of day")
)

// Date is a civil calendar date without time or zone. All calendar math
// happens in a single implicit local calendar, so a Date never carries a
// location. The zero value is "no date".
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the normalized date for y-m-d (out-of-range values roll
// over the same way time.Date does).
func NewDate(y int, m time.Month, d int) Date {
	return DateOf(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current local date.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a yyyy-MM-dd string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

func (d Date) time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.time().Format(DateLayout)
}

// Weekday returns the day of week with Sunday = 0.
func (d Date) Weekday() time.Weekday {
	return d.time().Weekday()
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.time().AddDate(0, 0, n))
}

// AddMonths moves d by n calendar months. When the target month is shorter
// than d.Day the result is clamped to the target month's last day
// (2024-01-31 + 1 month = 2024-02-29).
func (d Date) AddMonths(n int) Date {
	first := time.Date(d.Year, d.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := DaysIn(first.Year(), first.Month())
	day := d.Day
	if day > last {
		day = last
	}
	return Date{Year: first.Year(), Month: first.Month(), Day: day}
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

// StartOfMonth returns the first day of d's month.
func (d Date) StartOfMonth() Date {
	return Date{Year: d.Year, Month: d.Month, Day: 1}
}

// EndOfMonth returns the last day of d's month.
func (d Date) EndOfMonth() Date {
	return Date{Year: d.Year, Month: d.Month, Day: DaysIn(d.Year, d.Month)}
}

// StartOfWeek returns the latest date on or before d that falls on first.
func (d Date) StartOfWeek(first time.Weekday) Date {
	diff := (int(d.Weekday()) - int(first) + 7) % 7
	return d.AddDays(-diff)
}

// EndOfWeek returns the last day of the week containing d.
func (d Date) EndOfWeek(first time.Weekday) Date {
	return d.StartOfWeek(first).AddDays(6)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysIn returns the number of days in month m of year y.
func DaysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Clock is a time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses a 24-hour HH:mm string.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return Clock{}, fmt.Errorf("%w %q", ErrInvalidClock, s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant of c on date d in loc.
func (c Clock) On(d Date, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
