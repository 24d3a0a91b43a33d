package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"tutorbook/backend/internal/domain"
	"tutorbook/backend/internal/store"
)

type AddAvailabilityInput struct {
	ProviderID string
	Weekday    time.Weekday
	Interval   domain.Interval
}

// AddAvailability publishes a weekly window. Windows of one provider never overlap on
// the same weekday; touching windows are fine.
func (s *Service) AddAvailability(ctx context.Context, in AddAvailabilityInput) (window domain.AvailabilityWindow, err error) {
	ctx, span := s.startSpan(ctx, "AddAvailability")
	defer s.endSpan(span, opAddAvailability, &err)
	span.SetAttributes(attribute.String("provider_id", in.ProviderID))

	if err := requireID(in.ProviderID, "provider_id"); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	if !domain.ValidWeekday(in.Weekday) {
		return domain.AvailabilityWindow{}, domain.NewError(domain.KindInvalidRange, "weekday must be between 0 and 6")
	}
	iv, err := domain.NewInterval(in.Interval.Start, in.Interval.End)
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}

	err = s.inProviderTx(ctx, opAddAvailability, in.ProviderID, domain.KindOverlapsExisting, func(ctx context.Context, tx store.ProviderTx) error {
		if _, err := tx.GetProvider(ctx, in.ProviderID); err != nil {
			return notFound(err, "provider not found")
		}
		existing, err := tx.ListWindows(ctx, in.ProviderID, in.Weekday)
		if err != nil {
			return err
		}
		for _, w := range existing {
			if iv.Overlaps(w.Interval()) {
				return domain.NewError(domain.KindOverlapsExisting, "window overlaps "+w.Interval().String())
			}
		}
		created, err := tx.CreateWindow(ctx, domain.AvailabilityWindow{
			ProviderID:  in.ProviderID,
			Weekday:     in.Weekday,
			StartMinute: iv.Start,
			EndMinute:   iv.End,
		})
		if err != nil {
			return err
		}
		window = created
		return nil
	})
	if err != nil {
		return domain.AvailabilityWindow{}, err
	}

	s.invalidateSlots(ctx, in.ProviderID)
	return window, nil
}

// RemoveAvailability deletes a window on behalf of requesterID, who must be the owning
// provider. Bookings inside the window are kept.
func (s *Service) RemoveAvailability(ctx context.Context, providerID string, windowID uuid.UUID, requesterID string) (err error) {
	ctx, span := s.startSpan(ctx, "RemoveAvailability")
	defer s.endSpan(span, opRemoveAvailability, &err)
	span.SetAttributes(
		attribute.String("provider_id", providerID),
		attribute.String("window_id", windowID.String()),
	)

	if err := requireID(providerID, "provider_id"); err != nil {
		return err
	}
	if windowID == uuid.Nil {
		return domain.NewError(domain.KindInvalidRange, "window_id is required")
	}
	if requesterID != providerID {
		return domain.NewError(domain.KindForbidden, "only the provider may change its availability")
	}

	w, err := s.repo.GetWindow(ctx, windowID)
	if err != nil {
		return notFound(err, "window not found")
	}
	if w.ProviderID != providerID {
		return domain.NewError(domain.KindForbidden, "window belongs to another provider")
	}

	err = s.inProviderTx(ctx, opRemoveAvailability, providerID, domain.KindStorageUnavailable, func(ctx context.Context, tx store.ProviderTx) error {
		if err := tx.DeleteWindow(ctx, providerID, windowID); err != nil {
			return notFound(err, "window not found")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateSlots(ctx, providerID)
	return nil
}

// ListAvailability returns the provider's windows ordered by weekday, then start.
func (s *Service) ListAvailability(ctx context.Context, providerID string) (windows []domain.AvailabilityWindow, err error) {
	ctx, span := s.startSpan(ctx, "ListAvailability")
	defer s.endSpan(span, opListAvailability, &err)

	if err := requireID(providerID, "provider_id"); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetProvider(ctx, providerID); err != nil {
		return nil, notFound(err, "provider not found")
	}
	windows, err = s.repo.ListProviderWindows(ctx, providerID)
	if err != nil {
		return nil, storageError(err)
	}
	domain.SortWindows(windows)
	return windows, nil
}
