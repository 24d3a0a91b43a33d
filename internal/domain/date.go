package domain

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// DateOf truncates t to its calendar day. The wall-clock fields of t are kept as-is;
// the core runs in a single deployment-owned timezone and never converts.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, invalidRange("date must be YYYY-MM-DD")
	}
	return d, nil
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

func ValidWeekday(wd time.Weekday) bool {
	return wd >= time.Sunday && wd <= time.Saturday
}
