package domain

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day with no clock or zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.midnight().Format(dateLayout)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.midnight().AddDate(0, 0, n))
}

// DaysSince reports the number of whole calendar days from other to d.
// The result is negative when d is earlier than other.
func (d Date) DaysSince(other Date) int {
	return int(d.midnight().Sub(other.midnight()).Hours() / 24)
}

func (d Date) Weekday() time.Weekday { return d.midnight().Weekday() }

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// RoutineKey identifies one habit on one calendar day.
type RoutineKey struct {
	Date    Date
	HabitID string
}

// MarshalText renders YYYY-MM-DD-<habit>, the layout used by browser snapshots.
func (k RoutineKey) MarshalText() ([]byte, error) {
	if k.Date.IsZero() || k.HabitID == "" {
		return nil, fmt.Errorf("incomplete routine key")
	}
	return []byte(k.Date.String() + "-" + k.HabitID), nil
}

func (k *RoutineKey) UnmarshalText(b []byte) error {
	s := string(b)
	if len(s) < len(dateLayout)+2 || s[len(dateLayout)] != '-' {
		return fmt.Errorf("invalid routine key %q", s)
	}
	d, err := ParseDate(s[:len(dateLayout)])
	if err != nil {
		return err
	}
	k.Date = d
	k.HabitID = s[len(dateLayout)+1:]
	return nil
}
