// Package scheduling is the booking ledger and availability admission control.
//
// Every mutation runs inside one per-provider storage transaction that re-reads the
// provider's windows and bookings and commits only if the candidate still fits. Reads
// outside a transaction (slot generation, listings) are advisory snapshots.
package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tutorbook/backend/internal/cache"
	"tutorbook/backend/internal/domain"
	"tutorbook/backend/internal/metrics"
	"tutorbook/backend/internal/store"
)

const (
	DefaultMaxCommitAttempts = 3
	DefaultProviderPastLimit = 20
	DefaultConsumerPastLimit = 10
)

const (
	opGenerateSlots      = "generate_slots"
	opCreateBooking      = "create_booking"
	opRescheduleBooking  = "reschedule_booking"
	opCancelBooking      = "cancel_booking"
	opAddAvailability    = "add_availability"
	opRemoveAvailability = "remove_availability"
	opListAvailability   = "list_availability"
	opListBookings       = "list_bookings"
	opUpsertProvider     = "upsert_provider"
)

var tracer = otel.Tracer("tutorbook/backend/internal/service/scheduling")

// SlotCache is the read-through cache for GenerateSlots. Store must ignore entries
// whose generation has been superseded by Invalidate.
type SlotCache interface {
	Lookup(ctx context.Context, providerID string, date time.Time) ([]domain.Interval, bool, cache.Generation, error)
	Store(ctx context.Context, providerID string, date time.Time, gen cache.Generation, slots []domain.Interval) error
	Invalidate(ctx context.Context, providerID string) error
}

type Service struct {
	repo    store.SchedulingRepository
	cache   SlotCache
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time

	maxCommitAttempts int
	providerPastLimit int
	consumerPastLimit int
	pastLookback      time.Duration
}

type Option func(*Service)

func WithSlotCache(c SlotCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithMaxCommitAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCommitAttempts = n
		}
	}
}

// WithPastLimits overrides the caps on past listings. Non-positive values keep the defaults.
func WithPastLimits(providerLimit, consumerLimit int, lookback time.Duration) Option {
	return func(s *Service) {
		if providerLimit > 0 {
			s.providerPastLimit = providerLimit
		}
		if consumerLimit > 0 {
			s.consumerPastLimit = consumerLimit
		}
		if lookback > 0 {
			s.pastLookback = lookback
		}
	}
}

func NewService(repo store.SchedulingRepository, opts ...Option) *Service {
	s := &Service{
		repo:              repo,
		log:               slog.Default(),
		now:               time.Now,
		maxCommitAttempts: DefaultMaxCommitAttempts,
		providerPastLimit: DefaultProviderPastLimit,
		consumerPastLimit: DefaultConsumerPastLimit,
		pastLookback:      store.PastLookback,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "scheduling."+name)
}

func (s *Service) endSpan(span trace.Span, op string, errp *error) {
	err := *errp
	s.metrics.ObserveOperation(op, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, metrics.Result(err))
	}
	span.End()
}

// inProviderTx runs fn in a per-provider transaction, retrying storage conflicts.
// Once the attempts are used up the conflict is reported as conflictKind.
func (s *Service) inProviderTx(ctx context.Context, op, providerID string, conflictKind domain.ErrorKind, fn func(ctx context.Context, tx store.ProviderTx) error) error {
	var err error
	for attempt := 1; attempt <= s.maxCommitAttempts; attempt++ {
		err = s.repo.InProviderTransaction(ctx, providerID, fn)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		if attempt < s.maxCommitAttempts {
			s.metrics.IncCommitRetry(op)
		}
	}
	if errors.Is(err, store.ErrConflict) {
		return domain.WrapError(conflictKind, conflictMessage(conflictKind), err)
	}
	return storageError(err)
}

func conflictMessage(kind domain.ErrorKind) string {
	switch kind {
	case domain.KindOverlapsExisting:
		return "window overlaps an existing window"
	case domain.KindStorageUnavailable:
		return "storage unavailable"
	default:
		return "slot is no longer available"
	}
}

// storageError passes domain and context errors through and reports anything else
// from storage as StorageUnavailable.
func storageError(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.WrapError(domain.KindStorageUnavailable, "storage unavailable", err)
}

// notFound maps store.ErrNotFound to a NotFound with msg and everything else through storageError.
func notFound(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.NewError(domain.KindNotFound, msg)
	}
	return storageError(err)
}

func (s *Service) invalidateSlots(ctx context.Context, providerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, providerID); err != nil {
		s.log.WarnContext(ctx, "slot cache invalidate failed",
			slog.String("provider_id", providerID),
			slog.Any("err", err),
		)
	}
}

func requireID(value, field string) error {
	if value == "" {
		return domain.NewError(domain.KindInvalidRange, field+" is required")
	}
	return nil
}
