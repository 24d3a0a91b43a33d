package domain

import (
	"iter"
	"time"
)

// Slots tiles window into contiguous intervals of length duration, starting at
// window.Start, and yields those that overlap none of booked. A trailing remainder
// shorter than duration is dropped. The sequence can be ranged over repeatedly.
func Slots(window Interval, duration time.Duration, booked []Interval) iter.Seq[Interval] {
	step := TimeOfDay(duration / time.Minute)
	return func(yield func(Interval) bool) {
		if step <= 0 {
			return
		}
		for cursor := window.Start; cursor+step <= window.End; cursor += step {
			slot := Interval{Start: cursor, End: cursor + step}
			if slot.OverlapsAny(booked) {
				continue
			}
			if !yield(slot) {
				return
			}
		}
	}
}

// DaySlots runs Slots over each window in order. Windows are expected in start order,
// as returned by AvailabilityIndex.WindowsFor.
func DaySlots(windows []Interval, duration time.Duration, booked []Interval) iter.Seq[Interval] {
	return func(yield func(Interval) bool) {
		for _, w := range windows {
			for slot := range Slots(w, duration, booked) {
				if !yield(slot) {
					return
				}
			}
		}
	}
}
