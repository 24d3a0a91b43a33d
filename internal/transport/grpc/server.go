package grpc

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tutorbook/backend/internal/domain"
	"tutorbook/backend/internal/service/scheduling"
)

type SchedulingServer struct {
	svc schedulingService
	log *slog.Logger
}

type schedulingService interface {
	GenerateSlots(ctx context.Context, in scheduling.GenerateSlotsInput) ([]domain.Interval, error)
	CreateBooking(ctx context.Context, in scheduling.CreateBookingInput) (domain.Booking, error)
	RescheduleBooking(ctx context.Context, in scheduling.RescheduleBookingInput) (domain.Booking, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID, consumerID string) error
	AddAvailability(ctx context.Context, in scheduling.AddAvailabilityInput) (domain.AvailabilityWindow, error)
	RemoveAvailability(ctx context.Context, providerID string, windowID uuid.UUID, requesterID string) error
	ListAvailability(ctx context.Context, providerID string) ([]domain.AvailabilityWindow, error)
	ListBookings(ctx context.Context, in scheduling.ListBookingsInput) ([]domain.Booking, error)
	UpsertProvider(ctx context.Context, providerID string, lessonDurationMinutes int) (domain.Provider, error)
}

var _ SchedulingServiceServer = (*SchedulingServer)(nil)

func NewSchedulingServer(svc schedulingService, log *slog.Logger) *SchedulingServer {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.scheduling")),
	}
}

func (s *SchedulingServer) logger(ctx context.Context, rpc string) *slog.Logger {
	log := s.log.With(slog.String("rpc", rpc))
	if id := RequestIDFromContext(ctx); id != "" {
		log = log.With(slog.String("request_id", id))
	}
	return log
}

// fail logs err at a level matching its status and returns the status error.
func (s *SchedulingServer) fail(ctx context.Context, log *slog.Logger, err error, attrs ...any) error {
	st := statusFromError(err)
	args := append([]any{slog.Any("err", err), slog.String("code", st.Code().String())}, attrs...)
	switch st.Code() {
	case codes.InvalidArgument:
		log.WarnContext(ctx, "invalid request", args...)
	case codes.Internal, codes.Unavailable:
		log.ErrorContext(ctx, "request failed", args...)
	default:
		log.InfoContext(ctx, "request rejected", args...)
	}
	return st.Err()
}

func invalid(ctx context.Context, log *slog.Logger, reason, msg string, attrs ...any) error {
	args := append([]any{slog.String("reason", reason)}, attrs...)
	log.WarnContext(ctx, "invalid request", args...)
	return status.Error(codes.InvalidArgument, msg)
}

func (s *SchedulingServer) GenerateSlots(ctx context.Context, req *GenerateSlotsRequest) (*GenerateSlotsResponse, error) {
	log := s.logger(ctx, "GenerateSlots")

	date, err := domain.ParseDate(req.Date)
	if err != nil {
		return nil, invalid(ctx, log, "bad_date", "date must be YYYY-MM-DD", slog.String("provider_id", req.ProviderID))
	}
	var exclude uuid.UUID
	if strings.TrimSpace(req.ExcludeBookingID) != "" {
		exclude, err = uuid.Parse(req.ExcludeBookingID)
		if err != nil {
			return nil, invalid(ctx, log, "bad_exclude_booking_id", "exclude_booking_id must be a UUID")
		}
	}

	slots, err := s.svc.GenerateSlots(ctx, scheduling.GenerateSlotsInput{
		ProviderID:       req.ProviderID,
		Date:             date,
		ExcludeBookingID: exclude,
		ConsumerID:       req.ConsumerID,
	})
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("provider_id", req.ProviderID), slog.String("date", req.Date))
	}

	log.DebugContext(ctx, "slots generated",
		slog.String("provider_id", req.ProviderID),
		slog.String("date", req.Date),
		slog.Int("count", len(slots)),
	)
	return &GenerateSlotsResponse{Slots: toTimeRanges(slots)}, nil
}

func (s *SchedulingServer) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*CreateBookingResponse, error) {
	log := s.logger(ctx, "CreateBooking")

	date, err := domain.ParseDate(req.Date)
	if err != nil {
		return nil, invalid(ctx, log, "bad_date", "date must be YYYY-MM-DD", slog.String("consumer_id", req.ConsumerID))
	}
	iv, err := domain.ParseInterval(req.Start, req.End)
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("consumer_id", req.ConsumerID))
	}

	b, err := s.svc.CreateBooking(ctx, scheduling.CreateBookingInput{
		ProviderID: req.ProviderID,
		ConsumerID: req.ConsumerID,
		Date:       date,
		Interval:   iv,
	})
	if err != nil {
		return nil, s.fail(ctx, log, err,
			slog.String("provider_id", req.ProviderID),
			slog.String("consumer_id", req.ConsumerID),
			slog.String("date", req.Date),
			slog.String("interval", iv.String()),
		)
	}

	log.InfoContext(ctx, "booking created",
		slog.String("booking_id", b.ID.String()),
		slog.String("provider_id", b.ProviderID),
		slog.String("consumer_id", b.ConsumerID),
		slog.String("date", domain.FormatDate(b.Date)),
		slog.String("interval", b.Interval().String()),
	)
	return &CreateBookingResponse{Booking: toWireBooking(b)}, nil
}

func (s *SchedulingServer) RescheduleBooking(ctx context.Context, req *RescheduleBookingRequest) (*RescheduleBookingResponse, error) {
	log := s.logger(ctx, "RescheduleBooking")

	id, err := uuid.Parse(req.BookingID)
	if err != nil {
		return nil, invalid(ctx, log, "bad_booking_id", "booking_id must be a UUID")
	}
	date, err := domain.ParseDate(req.Date)
	if err != nil {
		return nil, invalid(ctx, log, "bad_date", "date must be YYYY-MM-DD", slog.String("booking_id", req.BookingID))
	}
	iv, err := domain.ParseInterval(req.Start, req.End)
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("booking_id", req.BookingID))
	}

	b, err := s.svc.RescheduleBooking(ctx, scheduling.RescheduleBookingInput{
		BookingID:  id,
		ConsumerID: req.ConsumerID,
		Date:       date,
		Interval:   iv,
	})
	if err != nil {
		return nil, s.fail(ctx, log, err,
			slog.String("booking_id", req.BookingID),
			slog.String("consumer_id", req.ConsumerID),
			slog.String("date", req.Date),
			slog.String("interval", iv.String()),
		)
	}

	log.InfoContext(ctx, "booking rescheduled",
		slog.String("booking_id", b.ID.String()),
		slog.String("date", domain.FormatDate(b.Date)),
		slog.String("interval", b.Interval().String()),
	)
	return &RescheduleBookingResponse{Booking: toWireBooking(b)}, nil
}

func (s *SchedulingServer) CancelBooking(ctx context.Context, req *CancelBookingRequest) (*CancelBookingResponse, error) {
	log := s.logger(ctx, "CancelBooking")

	id, err := uuid.Parse(req.BookingID)
	if err != nil {
		return nil, invalid(ctx, log, "bad_booking_id", "booking_id must be a UUID", slog.String("consumer_id", req.ConsumerID))
	}

	if err := s.svc.CancelBooking(ctx, id, req.ConsumerID); err != nil {
		return nil, s.fail(ctx, log, err, slog.String("booking_id", req.BookingID), slog.String("consumer_id", req.ConsumerID))
	}

	log.InfoContext(ctx, "booking cancelled", slog.String("booking_id", req.BookingID), slog.String("consumer_id", req.ConsumerID))
	return &CancelBookingResponse{}, nil
}

func (s *SchedulingServer) AddAvailability(ctx context.Context, req *AddAvailabilityRequest) (*AddAvailabilityResponse, error) {
	log := s.logger(ctx, "AddAvailability")

	iv, err := domain.ParseInterval(req.Start, req.End)
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("provider_id", req.ProviderID))
	}

	w, err := s.svc.AddAvailability(ctx, scheduling.AddAvailabilityInput{
		ProviderID: req.ProviderID,
		Weekday:    time.Weekday(req.Weekday),
		Interval:   iv,
	})
	if err != nil {
		return nil, s.fail(ctx, log, err,
			slog.String("provider_id", req.ProviderID),
			slog.Int("weekday", req.Weekday),
			slog.String("interval", iv.String()),
		)
	}

	log.InfoContext(ctx, "availability added",
		slog.String("window_id", w.ID.String()),
		slog.String("provider_id", w.ProviderID),
		slog.String("weekday", w.Weekday.String()),
		slog.String("interval", w.Interval().String()),
	)
	return &AddAvailabilityResponse{Window: toWireWindow(w)}, nil
}

func (s *SchedulingServer) RemoveAvailability(ctx context.Context, req *RemoveAvailabilityRequest) (*RemoveAvailabilityResponse, error) {
	log := s.logger(ctx, "RemoveAvailability")

	id, err := uuid.Parse(req.WindowID)
	if err != nil {
		return nil, invalid(ctx, log, "bad_window_id", "window_id must be a UUID", slog.String("provider_id", req.ProviderID))
	}

	if err := s.svc.RemoveAvailability(ctx, req.ProviderID, id, req.RequesterID); err != nil {
		return nil, s.fail(ctx, log, err,
			slog.String("provider_id", req.ProviderID),
			slog.String("window_id", req.WindowID),
			slog.String("requester_id", req.RequesterID),
		)
	}

	log.InfoContext(ctx, "availability removed", slog.String("provider_id", req.ProviderID), slog.String("window_id", req.WindowID))
	return &RemoveAvailabilityResponse{}, nil
}

func (s *SchedulingServer) ListAvailability(ctx context.Context, req *ListAvailabilityRequest) (*ListAvailabilityResponse, error) {
	log := s.logger(ctx, "ListAvailability")

	windows, err := s.svc.ListAvailability(ctx, req.ProviderID)
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("provider_id", req.ProviderID))
	}
	return &ListAvailabilityResponse{Windows: toWireWindows(windows)}, nil
}

func (s *SchedulingServer) ListBookings(ctx context.Context, req *ListBookingsRequest) (*ListBookingsResponse, error) {
	log := s.logger(ctx, "ListBookings")

	horizon, err := domain.ParseHorizon(req.Horizon)
	if err != nil {
		return nil, invalid(ctx, log, "bad_horizon", "horizon must be upcoming or past")
	}
	var asOf time.Time
	if strings.TrimSpace(req.AsOf) != "" {
		asOf, err = time.Parse(time.RFC3339, req.AsOf)
		if err != nil {
			return nil, invalid(ctx, log, "bad_as_of", "as_of must be RFC 3339")
		}
	}

	bookings, err := s.svc.ListBookings(ctx, scheduling.ListBookingsInput{
		ProviderID: req.ProviderID,
		ConsumerID: req.ConsumerID,
		Horizon:    horizon,
		AsOf:       asOf,
	})
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("provider_id", req.ProviderID), slog.String("consumer_id", req.ConsumerID))
	}
	return &ListBookingsResponse{Bookings: toWireBookings(bookings)}, nil
}

func (s *SchedulingServer) UpsertProvider(ctx context.Context, req *UpsertProviderRequest) (*UpsertProviderResponse, error) {
	log := s.logger(ctx, "UpsertProvider")

	p, err := s.svc.UpsertProvider(ctx, req.ProviderID, req.LessonDurationMinutes)
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("provider_id", req.ProviderID))
	}

	log.InfoContext(ctx, "provider saved", slog.String("provider_id", p.ID), slog.Int("lesson_duration_minutes", p.LessonDurationMinutes))
	return &UpsertProviderResponse{Provider: toWireProvider(p)}, nil
}
