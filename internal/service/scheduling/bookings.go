package scheduling

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"tutorbook/backend/internal/domain"
	"tutorbook/backend/internal/store"
)

type CreateBookingInput struct {
	ProviderID string
	ConsumerID string
	Date       time.Time
	Interval   domain.Interval
}

// CreateBooking admits the interval on date only if it is one of the provider's slots
// and overlaps no committed booking at commit time.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (booking domain.Booking, err error) {
	ctx, span := s.startSpan(ctx, "CreateBooking")
	defer s.endSpan(span, opCreateBooking, &err)
	span.SetAttributes(attribute.String("provider_id", in.ProviderID))

	if err := requireID(in.ProviderID, "provider_id"); err != nil {
		return domain.Booking{}, err
	}
	if err := requireID(in.ConsumerID, "consumer_id"); err != nil {
		return domain.Booking{}, err
	}
	iv, err := domain.NewInterval(in.Interval.Start, in.Interval.End)
	if err != nil {
		return domain.Booking{}, err
	}
	date := domain.DateOf(in.Date)

	err = s.inProviderTx(ctx, opCreateBooking, in.ProviderID, domain.KindSlotUnavailable, func(ctx context.Context, tx store.ProviderTx) error {
		if err := admitBooking(ctx, tx, in.ProviderID, date, iv, uuid.Nil); err != nil {
			return err
		}
		created, err := tx.CreateBooking(ctx, domain.Booking{
			ConsumerID:  in.ConsumerID,
			ProviderID:  in.ProviderID,
			Date:        date,
			StartMinute: iv.Start,
			EndMinute:   iv.End,
		})
		if err != nil {
			return err
		}
		booking = created
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.invalidateSlots(ctx, in.ProviderID)
	return booking, nil
}

type RescheduleBookingInput struct {
	BookingID  uuid.UUID
	ConsumerID string
	Date       time.Time
	Interval   domain.Interval
}

// RescheduleBooking moves a booking to a new date and interval, keeping its id and
// creation time. On any failure the booking is left as it was.
func (s *Service) RescheduleBooking(ctx context.Context, in RescheduleBookingInput) (booking domain.Booking, err error) {
	ctx, span := s.startSpan(ctx, "RescheduleBooking")
	defer s.endSpan(span, opRescheduleBooking, &err)
	span.SetAttributes(attribute.String("booking_id", in.BookingID.String()))

	if in.BookingID == uuid.Nil {
		return domain.Booking{}, domain.NewError(domain.KindInvalidRange, "booking_id is required")
	}
	if err := requireID(in.ConsumerID, "consumer_id"); err != nil {
		return domain.Booking{}, err
	}
	iv, err := domain.NewInterval(in.Interval.Start, in.Interval.End)
	if err != nil {
		return domain.Booking{}, err
	}
	date := domain.DateOf(in.Date)

	current, err := s.ownedBooking(ctx, in.BookingID, in.ConsumerID)
	if err != nil {
		return domain.Booking{}, err
	}

	err = s.inProviderTx(ctx, opRescheduleBooking, current.ProviderID, domain.KindSlotUnavailable, func(ctx context.Context, tx store.ProviderTx) error {
		locked, err := tx.GetBooking(ctx, in.BookingID)
		if err != nil {
			return notFound(err, "booking not found")
		}
		if locked.ConsumerID != in.ConsumerID {
			return domain.NewError(domain.KindNotFound, "booking not found")
		}
		if err := admitBooking(ctx, tx, locked.ProviderID, date, iv, locked.ID); err != nil {
			return err
		}
		locked.Date = date
		locked.StartMinute = iv.Start
		locked.EndMinute = iv.End
		moved, err := tx.MoveBooking(ctx, locked)
		if err != nil {
			return err
		}
		booking = moved
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}

	s.invalidateSlots(ctx, current.ProviderID)
	return booking, nil
}

// CancelBooking deletes a booking owned by consumerID.
func (s *Service) CancelBooking(ctx context.Context, bookingID uuid.UUID, consumerID string) (err error) {
	ctx, span := s.startSpan(ctx, "CancelBooking")
	defer s.endSpan(span, opCancelBooking, &err)
	span.SetAttributes(attribute.String("booking_id", bookingID.String()))

	if bookingID == uuid.Nil {
		return domain.NewError(domain.KindInvalidRange, "booking_id is required")
	}
	if err := requireID(consumerID, "consumer_id"); err != nil {
		return err
	}

	current, err := s.ownedBooking(ctx, bookingID, consumerID)
	if err != nil {
		return err
	}

	err = s.inProviderTx(ctx, opCancelBooking, current.ProviderID, domain.KindStorageUnavailable, func(ctx context.Context, tx store.ProviderTx) error {
		if err := tx.DeleteBooking(ctx, consumerID, bookingID); err != nil {
			return notFound(err, "booking not found")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateSlots(ctx, current.ProviderID)
	return nil
}

// ownedBooking resolves the booking's provider before its transaction is opened. A
// booking owned by someone else is reported exactly like a missing one.
func (s *Service) ownedBooking(ctx context.Context, bookingID uuid.UUID, consumerID string) (domain.Booking, error) {
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, notFound(err, "booking not found")
	}
	if b.ConsumerID != consumerID {
		s.log.WarnContext(ctx, "booking access by non-owner",
			slog.String("booking_id", bookingID.String()),
			slog.String("consumer_id", consumerID),
		)
		return domain.Booking{}, domain.NewError(domain.KindNotFound, "booking not found")
	}
	return b, nil
}

// admitBooking checks iv on date against the provider's lesson duration, availability
// grid and committed bookings, ignoring the booking exclude.
func admitBooking(ctx context.Context, tx store.ProviderTx, providerID string, date time.Time, iv domain.Interval, exclude uuid.UUID) error {
	provider, err := tx.GetProvider(ctx, providerID)
	if err != nil {
		return notFound(err, "provider not found")
	}
	if iv.Duration() != provider.LessonDuration() {
		return domain.NewError(domain.KindInvalidRange, "interval must match the lesson duration")
	}

	windows, err := tx.ListWindows(ctx, providerID, date.Weekday())
	if err != nil {
		return err
	}
	if !domain.NewAvailabilityIndex(windows).Admits(providerID, date, iv, provider.LessonDuration()) {
		return domain.NewError(domain.KindOutsideAvailability, "interval is not an offered slot")
	}

	existing, err := tx.ListBookingsOn(ctx, providerID, date)
	if err != nil {
		return err
	}
	if iv.OverlapsAny(domain.BookedIntervals(existing, exclude)) {
		return domain.NewError(domain.KindSlotUnavailable, "slot is already booked")
	}
	return nil
}

type ListBookingsInput struct {
	// Exactly one of ProviderID and ConsumerID is set.
	ProviderID string
	ConsumerID string
	Horizon    domain.Horizon
	// AsOf defaults to the service clock.
	AsOf time.Time
}

// ListBookings returns upcoming bookings ascending, or the most recent past bookings
// descending, capped per audience and bounded by the lookback.
func (s *Service) ListBookings(ctx context.Context, in ListBookingsInput) (bookings []domain.Booking, err error) {
	ctx, span := s.startSpan(ctx, "ListBookings")
	defer s.endSpan(span, opListBookings, &err)

	if (in.ProviderID == "") == (in.ConsumerID == "") {
		return nil, domain.NewError(domain.KindInvalidRange, "exactly one of provider_id and consumer_id is required")
	}
	horizon := in.Horizon
	if horizon == "" {
		horizon = domain.HorizonUpcoming
	}
	if horizon != domain.HorizonUpcoming && horizon != domain.HorizonPast {
		return nil, domain.NewError(domain.KindInvalidRange, "horizon must be upcoming or past")
	}
	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}

	filter := store.BookingFilter{ProviderID: in.ProviderID, ConsumerID: in.ConsumerID}
	limit := 0
	if horizon == domain.HorizonPast {
		filter.FromDate = domain.DateOf(asOf.Add(-s.pastLookback))
		filter.ToDate = domain.DateOf(asOf)
		limit = s.consumerPastLimit
		if in.ProviderID != "" {
			limit = s.providerPastLimit
		}
	} else {
		filter.FromDate = domain.DateOf(asOf)
	}

	rows, err := s.repo.ListBookings(ctx, filter)
	if err != nil {
		return nil, storageError(err)
	}
	return domain.Classify(rows, horizon, asOf, limit), nil
}
