// Package store declares the storage collaborator used by the scheduling core.
//
// Deletion contract: removing a provider cascades to its availability windows but is
// rejected while bookings reference it. The core never relies on implicit cascades;
// cancelling a booking is always an explicit DeleteBooking.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tutorbook/backend/internal/domain"
)

// PastLookback bounds how far back past-booking listings read.
const PastLookback = 180 * 24 * time.Hour

type BookingFilter struct {
	ProviderID string
	ConsumerID string
	// FromDate and ToDate are inclusive calendar days; zero means unbounded.
	FromDate time.Time
	ToDate   time.Time
}

// ProviderTx is the view of storage inside a per-provider serialized transaction.
// Every read and write made through it is atomic with respect to other transactions
// for the same provider.
type ProviderTx interface {
	GetProvider(ctx context.Context, providerID string) (domain.Provider, error)

	ListWindows(ctx context.Context, providerID string, weekday time.Weekday) ([]domain.AvailabilityWindow, error)
	CreateWindow(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error)
	DeleteWindow(ctx context.Context, providerID string, windowID uuid.UUID) error

	GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error)
	ListBookingsOn(ctx context.Context, providerID string, date time.Time) ([]domain.Booking, error)
	CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
	MoveBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
	DeleteBooking(ctx context.Context, consumerID string, bookingID uuid.UUID) error
}

type SchedulingRepository interface {
	// InProviderTransaction runs fn serialized against every other transaction for
	// providerID. If fn returns an error nothing it wrote is kept.
	InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx ProviderTx) error) error

	UpsertProvider(ctx context.Context, p domain.Provider) (domain.Provider, error)
	GetProvider(ctx context.Context, providerID string) (domain.Provider, error)

	GetWindow(ctx context.Context, windowID uuid.UUID) (domain.AvailabilityWindow, error)
	ListProviderWindows(ctx context.Context, providerID string) ([]domain.AvailabilityWindow, error)

	GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error)
	ListBookingsOn(ctx context.Context, providerID string, date time.Time) ([]domain.Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]domain.Booking, error)

	Ping(ctx context.Context) error
}
