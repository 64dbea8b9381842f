package masterdata

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrTimeParse marks a timetable value no canonical form exists for.
var ErrTimeParse = errors.New("unrecognized time format")

// ClockTime is a wall-clock time of day without a date.
type ClockTime struct {
	Hour   int
	Minute int
	Second int
}

// Minutes returns the clock time as minutes after midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// Seconds returns the clock time as seconds after midnight.
func (c ClockTime) Seconds() int {
	return c.Hour*3600 + c.Minute*60 + c.Second
}

// String formats the clock time as HH:MM:SS.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// HHMM formats the clock time as a zero-padded four digit string, the
// canonical form timetable cutoffs are compared in.
func (c ClockTime) HHMM() string {
	return fmt.Sprintf("%02d%02d", c.Hour, c.Minute)
}

// At anchors the clock time on the given date.
func (c ClockTime) At(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour, c.Minute, c.Second, 0, date.Location())
}

// Compare orders two clock times: -1 when c is earlier, 0 equal, 1 later.
func (c ClockTime) Compare(other ClockTime) int {
	switch {
	case c.Seconds() < other.Seconds():
		return -1
	case c.Seconds() > other.Seconds():
		return 1
	default:
		return 0
	}
}

// ParseClock maps a raw timetable value to a wall-clock time. Accepted
// forms: "HH:MM" and "HH:MM:SS" literally; bare digits of length 3-4 as
// HHMM; bare digits of length 1-2 as minutes past midnight (hour zero).
func ParseClock(raw string) (ClockTime, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ClockTime{}, fmt.Errorf("%w: empty value", ErrTimeParse)
	}

	if strings.Contains(value, ":") {
		parts := strings.Split(value, ":")
		if len(parts) != 2 && len(parts) != 3 {
			return ClockTime{}, fmt.Errorf("%w: %q", ErrTimeParse, raw)
		}
		fields := make([]int, 3)
		for i, part := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return ClockTime{}, fmt.Errorf("%w: %q", ErrTimeParse, raw)
			}
			fields[i] = n
		}
		return newClock(fields[0], fields[1], fields[2], raw)
	}

	if _, err := strconv.Atoi(value); err != nil {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrTimeParse, raw)
	}

	switch {
	case len(value) <= 2:
		minute, _ := strconv.Atoi(value)
		return newClock(0, minute, 0, raw)
	case len(value) <= 4:
		padded := strings.Repeat("0", 4-len(value)) + value
		hour, _ := strconv.Atoi(padded[:2])
		minute, _ := strconv.Atoi(padded[2:])
		return newClock(hour, minute, 0, raw)
	default:
		return ClockTime{}, fmt.Errorf("%w: %q", ErrTimeParse, raw)
	}
}

func newClock(hour, minute, second int, raw string) (ClockTime, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return ClockTime{}, fmt.Errorf("%w: %q out of range", ErrTimeParse, raw)
	}
	return ClockTime{Hour: hour, Minute: minute, Second: second}, nil
}

// IsWorkday reports whether the date falls on Monday through Friday.
func IsWorkday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// DateOf truncates a timestamp to midnight in its own location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDate reports whether two timestamps fall on the same calendar day.
func SameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
