package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the exclusive upper bound of a time of day; 24:00 is allowed as an end bound.
const MinutesPerDay = 24 * 60

// TimeOfDay is an offset from midnight with minute granularity.
type TimeOfDay int

func ClockTime(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay accepts "HH:MM" and "24:00".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, invalidRange("time must be HH:MM")
	}
	if !allDigits(hh) || len(hh) > 2 || !allDigits(mm) || len(mm) != 2 {
		return 0, invalidRange("time must be HH:MM")
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, invalidRange("time must be HH:MM")
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m > 59 {
		return 0, invalidRange("time must be HH:MM")
	}
	t := ClockTime(h, m)
	if t > MinutesPerDay {
		return 0, invalidRange("time must be between 00:00 and 24:00")
	}
	return t, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func TimeOfDayOf(t time.Time) TimeOfDay {
	return ClockTime(t.Hour(), t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Interval is a half-open range [Start, End) within a single day.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

func NewInterval(start, end TimeOfDay) (Interval, error) {
	if start < 0 || end > MinutesPerDay {
		return Interval{}, invalidRange("interval must lie within one day")
	}
	if start >= end {
		return Interval{}, invalidRange("end must be after start")
	}
	return Interval{Start: start, End: end}, nil
}

func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Interval{}, err
	}
	return NewInterval(s, e)
}

// Overlaps is the only overlap test used for windows, slots and bookings.
// Touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && i.End > o.Start
}

func (i Interval) Contains(point TimeOfDay) bool {
	return i.Start <= point && point < i.End
}

// Covers reports whether o lies entirely inside i.
func (i Interval) Covers(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

func (i Interval) Duration() time.Duration {
	return time.Duration(i.End-i.Start) * time.Minute
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}

// OverlapsAny reports whether i overlaps any of others.
func (i Interval) OverlapsAny(others []Interval) bool {
	for _, o := range others {
		if i.Overlaps(o) {
			return true
		}
	}
	return false
}
