package domain

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AvailabilityWindow struct {
	bun.BaseModel `bun:"table:availability_windows"`

	ID          uuid.UUID    `bun:"id,pk,type:uuid"`
	ProviderID  string       `bun:"provider_id,notnull"`
	Weekday     time.Weekday `bun:"weekday,notnull"`
	StartMinute TimeOfDay    `bun:"start_minute,notnull"`
	EndMinute   TimeOfDay    `bun:"end_minute,notnull"`
	CreatedAt   time.Time    `bun:"created_at,notnull"`
}

func (w AvailabilityWindow) Interval() Interval {
	return Interval{Start: w.StartMinute, End: w.EndMinute}
}

func (w *AvailabilityWindow) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if w.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		w.ID = id
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	return nil
}

// SortWindows orders windows by weekday, then start time.
func SortWindows(ws []AvailabilityWindow) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].Weekday != ws[j].Weekday {
			return ws[i].Weekday < ws[j].Weekday
		}
		return ws[i].StartMinute < ws[j].StartMinute
	})
}

type weeklyKey struct {
	providerID string
	weekday    time.Weekday
}

// AvailabilityIndex maps (provider, weekday) to its windows ordered by start.
// It is a read-side snapshot; admission happens in the scheduling service.
type AvailabilityIndex struct {
	byDay map[weeklyKey][]Interval
}

func NewAvailabilityIndex(windows []AvailabilityWindow) *AvailabilityIndex {
	idx := &AvailabilityIndex{byDay: make(map[weeklyKey][]Interval)}
	for _, w := range windows {
		k := weeklyKey{providerID: w.ProviderID, weekday: w.Weekday}
		idx.byDay[k] = append(idx.byDay[k], w.Interval())
	}
	for _, ivs := range idx.byDay {
		sort.Slice(ivs, func(i, j int) bool { return ivs[i].Start < ivs[j].Start })
	}
	return idx
}

// WindowsFor returns the provider's windows on the weekday of date.
func (x *AvailabilityIndex) WindowsFor(providerID string, date time.Time) []Interval {
	ivs := x.byDay[weeklyKey{providerID: providerID, weekday: date.Weekday()}]
	out := make([]Interval, len(ivs))
	copy(out, ivs)
	return out
}

// Admits reports whether iv lies inside one of the provider's windows on date and
// starts on that window's slot grid.
func (x *AvailabilityIndex) Admits(providerID string, date time.Time, iv Interval, duration time.Duration) bool {
	step := TimeOfDay(duration / time.Minute)
	if step <= 0 {
		return false
	}
	for _, w := range x.WindowsFor(providerID, date) {
		if w.Covers(iv) && (iv.Start-w.Start)%step == 0 {
			return true
		}
	}
	return false
}
