package domain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID          uuid.UUID `bun:"id,pk,type:uuid"`
	ConsumerID  string    `bun:"consumer_id,notnull"`
	ProviderID  string    `bun:"provider_id,notnull"`
	Date        time.Time `bun:"date,notnull,type:date"`
	StartMinute TimeOfDay `bun:"start_minute,notnull"`
	EndMinute   TimeOfDay `bun:"end_minute,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

func (b Booking) Interval() Interval {
	return Interval{Start: b.StartMinute, End: b.EndMinute}
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}

// BookedIntervals projects bookings onto their intervals, skipping the booking with id exclude.
func BookedIntervals(bookings []Booking, exclude uuid.UUID) []Interval {
	out := make([]Interval, 0, len(bookings))
	for _, b := range bookings {
		if exclude != uuid.Nil && b.ID == exclude {
			continue
		}
		out = append(out, b.Interval())
	}
	return out
}

type Horizon string

const (
	HorizonUpcoming Horizon = "upcoming"
	HorizonPast     Horizon = "past"
)

func ParseHorizon(s string) (Horizon, error) {
	switch Horizon(s) {
	case HorizonUpcoming, "":
		return HorizonUpcoming, nil
	case HorizonPast:
		return HorizonPast, nil
	default:
		return "", fmt.Errorf("unknown horizon %q", s)
	}
}

// IsPast is the single past/upcoming classifier. A booking is past once its end has
// been reached on asOf's day; a booking in progress is still upcoming.
func IsPast(b Booking, asOf time.Time) bool {
	today := DateOf(asOf)
	day := DateOf(b.Date)
	if day.Before(today) {
		return true
	}
	return day.Equal(today) && b.EndMinute <= TimeOfDayOf(asOf)
}

// Classify keeps the bookings on the requested side of asOf, ordered ascending for
// upcoming and descending for past, and truncated to limit when limit > 0.
func Classify(bookings []Booking, h Horizon, asOf time.Time, limit int) []Booking {
	out := make([]Booking, 0, len(bookings))
	for _, b := range bookings {
		if IsPast(b, asOf) == (h == HorizonPast) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if h == HorizonPast {
			return bookingLess(out[j], out[i])
		}
		return bookingLess(out[i], out[j])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func bookingLess(a, b Booking) bool {
	da, db := DateOf(a.Date), DateOf(b.Date)
	if !da.Equal(db) {
		return da.Before(db)
	}
	return a.StartMinute < b.StartMinute
}
