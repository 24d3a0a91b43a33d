package scheduling

import (
	"context"

	"tutorbook/backend/internal/domain"
)

// UpsertProvider registers a provider or changes its lesson duration. Existing bookings
// keep their length; only future admissions use the new duration.
func (s *Service) UpsertProvider(ctx context.Context, providerID string, lessonDurationMinutes int) (provider domain.Provider, err error) {
	ctx, span := s.startSpan(ctx, "UpsertProvider")
	defer s.endSpan(span, opUpsertProvider, &err)

	if err := requireID(providerID, "provider_id"); err != nil {
		return domain.Provider{}, err
	}
	if lessonDurationMinutes <= 0 || lessonDurationMinutes > domain.MinutesPerDay {
		return domain.Provider{}, domain.NewError(domain.KindInvalidRange, "lesson duration must be between 1 and 1440 minutes")
	}

	provider, err = s.repo.UpsertProvider(ctx, domain.Provider{
		ID:                    providerID,
		LessonDurationMinutes: lessonDurationMinutes,
	})
	if err != nil {
		return domain.Provider{}, storageError(err)
	}

	s.invalidateSlots(ctx, providerID)
	return provider, nil
}
