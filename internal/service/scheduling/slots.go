package scheduling

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"tutorbook/backend/internal/cache"
	"tutorbook/backend/internal/domain"
)

type GenerateSlotsInput struct {
	ProviderID string
	Date       time.Time
	// ExcludeBookingID treats that booking as free, so a consumer rescheduling it can
	// see its current slot and the ones it overlaps. It must be owned by ConsumerID.
	ExcludeBookingID uuid.UUID
	ConsumerID       string
}

// GenerateSlots lists the free slots of the provider on date in start order. The result
// is a snapshot; CreateBooking and RescheduleBooking re-check at commit time.
func (s *Service) GenerateSlots(ctx context.Context, in GenerateSlotsInput) (slots []domain.Interval, err error) {
	ctx, span := s.startSpan(ctx, "GenerateSlots")
	defer s.endSpan(span, opGenerateSlots, &err)
	span.SetAttributes(
		attribute.String("provider_id", in.ProviderID),
		attribute.String("date", domain.FormatDate(in.Date)),
	)

	if err := requireID(in.ProviderID, "provider_id"); err != nil {
		return nil, err
	}
	date := domain.DateOf(in.Date)
	if in.ExcludeBookingID != uuid.Nil {
		if err := requireID(in.ConsumerID, "consumer_id"); err != nil {
			return nil, err
		}
		b, err := s.ownedBooking(ctx, in.ExcludeBookingID, in.ConsumerID)
		if err != nil {
			return nil, err
		}
		if b.ProviderID != in.ProviderID {
			return nil, domain.NewError(domain.KindNotFound, "booking not found")
		}
	}
	started := time.Now()

	cacheable := s.cache != nil && in.ExcludeBookingID == uuid.Nil
	var gen cache.Generation
	if cacheable {
		cached, hit, g, err := s.cache.Lookup(ctx, in.ProviderID, date)
		switch {
		case err != nil:
			s.log.WarnContext(ctx, "slot cache lookup failed",
				slog.String("provider_id", in.ProviderID),
				slog.Any("err", err),
			)
			cacheable = false
		case hit:
			s.metrics.ObserveSlotGeneration("cache", time.Since(started))
			return cached, nil
		default:
			gen = g
		}
	}

	provider, err := s.repo.GetProvider(ctx, in.ProviderID)
	if err != nil {
		return nil, notFound(err, "provider not found")
	}
	windows, err := s.repo.ListProviderWindows(ctx, in.ProviderID)
	if err != nil {
		return nil, storageError(err)
	}
	bookings, err := s.repo.ListBookingsOn(ctx, in.ProviderID, date)
	if err != nil {
		return nil, storageError(err)
	}

	open := domain.NewAvailabilityIndex(windows).WindowsFor(in.ProviderID, date)
	booked := domain.BookedIntervals(bookings, in.ExcludeBookingID)
	slots = slices.AppendSeq(make([]domain.Interval, 0), domain.DaySlots(open, provider.LessonDuration(), booked))
	s.metrics.ObserveSlotGeneration("storage", time.Since(started))

	if cacheable {
		if err := s.cache.Store(ctx, in.ProviderID, date, gen, slots); err != nil {
			s.log.WarnContext(ctx, "slot cache store failed",
				slog.String("provider_id", in.ProviderID),
				slog.Any("err", err),
			)
		}
	}
	return slots, nil
}
