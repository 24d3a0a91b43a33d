package grpc

import (
	"time"

	"tutorbook/backend/internal/domain"
)

// Wire messages of tutorbook.v1.SchedulingService. Dates are YYYY-MM-DD, times of day
// HH:MM and instants RFC 3339.

type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Provider struct {
	ID                    string    `json:"id"`
	LessonDurationMinutes int       `json:"lesson_duration_minutes"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type AvailabilityWindow struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	Weekday    int       `json:"weekday"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	CreatedAt  time.Time `json:"created_at"`
}

type Booking struct {
	ID         string    `json:"id"`
	ConsumerID string    `json:"consumer_id"`
	ProviderID string    `json:"provider_id"`
	Date       string    `json:"date"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type GenerateSlotsRequest struct {
	ProviderID       string `json:"provider_id"`
	Date             string `json:"date"`
	ExcludeBookingID string `json:"exclude_booking_id,omitempty"`
	ConsumerID       string `json:"consumer_id,omitempty"`
}

type GenerateSlotsResponse struct {
	Slots []TimeRange `json:"slots"`
}

type CreateBookingRequest struct {
	ProviderID string `json:"provider_id"`
	ConsumerID string `json:"consumer_id"`
	Date       string `json:"date"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

type CreateBookingResponse struct {
	Booking Booking `json:"booking"`
}

type RescheduleBookingRequest struct {
	BookingID  string `json:"booking_id"`
	ConsumerID string `json:"consumer_id"`
	Date       string `json:"date"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

type RescheduleBookingResponse struct {
	Booking Booking `json:"booking"`
}

type CancelBookingRequest struct {
	BookingID  string `json:"booking_id"`
	ConsumerID string `json:"consumer_id"`
}

type CancelBookingResponse struct{}

type AddAvailabilityRequest struct {
	ProviderID string `json:"provider_id"`
	Weekday    int    `json:"weekday"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

type AddAvailabilityResponse struct {
	Window AvailabilityWindow `json:"window"`
}

type RemoveAvailabilityRequest struct {
	ProviderID  string `json:"provider_id"`
	WindowID    string `json:"window_id"`
	RequesterID string `json:"requester_id"`
}

type RemoveAvailabilityResponse struct{}

type ListAvailabilityRequest struct {
	ProviderID string `json:"provider_id"`
}

type ListAvailabilityResponse struct {
	Windows []AvailabilityWindow `json:"windows"`
}

type ListBookingsRequest struct {
	ProviderID string `json:"provider_id,omitempty"`
	ConsumerID string `json:"consumer_id,omitempty"`
	// Horizon is "upcoming" (default) or "past".
	Horizon string `json:"horizon,omitempty"`
	AsOf    string `json:"as_of,omitempty"`
}

type ListBookingsResponse struct {
	Bookings []Booking `json:"bookings"`
}

type UpsertProviderRequest struct {
	ProviderID            string `json:"provider_id"`
	LessonDurationMinutes int    `json:"lesson_duration_minutes"`
}

type UpsertProviderResponse struct {
	Provider Provider `json:"provider"`
}

func toTimeRanges(ivs []domain.Interval) []TimeRange {
	out := make([]TimeRange, 0, len(ivs))
	for _, iv := range ivs {
		out = append(out, TimeRange{Start: iv.Start.String(), End: iv.End.String()})
	}
	return out
}

func toWireProvider(p domain.Provider) Provider {
	return Provider{
		ID:                    p.ID,
		LessonDurationMinutes: p.LessonDurationMinutes,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
}

func toWireWindow(w domain.AvailabilityWindow) AvailabilityWindow {
	return AvailabilityWindow{
		ID:         w.ID.String(),
		ProviderID: w.ProviderID,
		Weekday:    int(w.Weekday),
		Start:      w.StartMinute.String(),
		End:        w.EndMinute.String(),
		CreatedAt:  w.CreatedAt,
	}
}

func toWireWindows(ws []domain.AvailabilityWindow) []AvailabilityWindow {
	out := make([]AvailabilityWindow, 0, len(ws))
	for _, w := range ws {
		out = append(out, toWireWindow(w))
	}
	return out
}

func toWireBooking(b domain.Booking) Booking {
	return Booking{
		ID:         b.ID.String(),
		ConsumerID: b.ConsumerID,
		ProviderID: b.ProviderID,
		Date:       domain.FormatDate(b.Date),
		Start:      b.StartMinute.String(),
		End:        b.EndMinute.String(),
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func toWireBookings(bs []domain.Booking) []Booking {
	out := make([]Booking, 0, len(bs))
	for _, b := range bs {
		out = append(out, toWireBooking(b))
	}
	return out
}
