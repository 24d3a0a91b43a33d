// Package memory is a process-local SchedulingRepository. Transactions for one provider
// are serialized by a per-provider semaphore; transactions for different providers run
// concurrently.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"tutorbook/backend/internal/domain"
	"tutorbook/backend/internal/store"
)

type Repo struct {
	mu        sync.RWMutex
	providers map[string]domain.Provider
	windows   map[uuid.UUID]domain.AvailabilityWindow
	bookings  map[uuid.UUID]domain.Booking

	locks *xsync.MapOf[string, chan struct{}]
}

func NewRepo() *Repo {
	return &Repo{
		providers: make(map[string]domain.Provider),
		windows:   make(map[uuid.UUID]domain.AvailabilityWindow),
		bookings:  make(map[uuid.UUID]domain.Booking),
		locks:     xsync.NewMapOf[string, chan struct{}](),
	}
}

func (r *Repo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
	sem, _ := r.locks.LoadOrCompute(providerID, func() chan struct{} {
		return make(chan struct{}, 1)
	})

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-sem }()

	tx := &providerTx{repo: r, providerID: providerID}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (r *Repo) UpsertProvider(ctx context.Context, p domain.Provider) (domain.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.providers[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.providers[p.ID] = p
	return p, nil
}

func (r *Repo) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[providerID]
	if !ok {
		return domain.Provider{}, store.ErrNotFound
	}
	return p, nil
}

func (r *Repo) GetWindow(ctx context.Context, windowID uuid.UUID) (domain.AvailabilityWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.windows[windowID]
	if !ok {
		return domain.AvailabilityWindow{}, store.ErrNotFound
	}
	return w, nil
}

func (r *Repo) ListProviderWindows(ctx context.Context, providerID string) ([]domain.AvailabilityWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.AvailabilityWindow
	for _, w := range r.windows {
		if w.ProviderID == providerID {
			out = append(out, w)
		}
	}
	domain.SortWindows(out)
	return out, nil
}

func (r *Repo) GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[bookingID]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	return b, nil
}

func (r *Repo) ListBookingsOn(ctx context.Context, providerID string, date time.Time) ([]domain.Booking, error) {
	day := domain.DateOf(date)
	return r.ListBookings(ctx, store.BookingFilter{ProviderID: providerID, FromDate: day, ToDate: day})
}

func (r *Repo) ListBookings(ctx context.Context, f store.BookingFilter) ([]domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	from := domain.DateOf(f.FromDate)
	to := domain.DateOf(f.ToDate)

	var out []domain.Booking
	for _, b := range r.bookings {
		if f.ProviderID != "" && b.ProviderID != f.ProviderID {
			continue
		}
		if f.ConsumerID != "" && b.ConsumerID != f.ConsumerID {
			continue
		}
		day := domain.DateOf(b.Date)
		if !f.FromDate.IsZero() && day.Before(from) {
			continue
		}
		if !f.ToDate.IsZero() && day.After(to) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartMinute < out[j].StartMinute
	})
	return out, nil
}

func (r *Repo) Ping(ctx context.Context) error {
	return nil
}

type providerTx struct {
	repo       *Repo
	providerID string
	undo       []func()
}

func (t *providerTx) rollback() {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *providerTx) checkScope(providerID string) error {
	if providerID != t.providerID {
		return fmt.Errorf("memory: write for provider %q inside transaction for %q", providerID, t.providerID)
	}
	return nil
}

func (t *providerTx) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	return t.repo.GetProvider(ctx, providerID)
}

func (t *providerTx) ListWindows(ctx context.Context, providerID string, weekday time.Weekday) ([]domain.AvailabilityWindow, error) {
	all, err := t.repo.ListProviderWindows(ctx, providerID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, w := range all {
		if w.Weekday == weekday {
			out = append(out, w)
		}
	}
	return out, nil
}

func (t *providerTx) CreateWindow(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	if err := t.checkScope(w.ProviderID); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	if w.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.AvailabilityWindow{}, err
		}
		w.ID = id
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}

	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	if _, ok := t.repo.windows[w.ID]; ok {
		return domain.AvailabilityWindow{}, store.ErrConflict
	}
	t.repo.windows[w.ID] = w
	t.undo = append(t.undo, func() { delete(t.repo.windows, w.ID) })
	return w, nil
}

func (t *providerTx) DeleteWindow(ctx context.Context, providerID string, windowID uuid.UUID) error {
	if err := t.checkScope(providerID); err != nil {
		return err
	}

	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	w, ok := t.repo.windows[windowID]
	if !ok || w.ProviderID != providerID {
		return store.ErrNotFound
	}
	delete(t.repo.windows, windowID)
	t.undo = append(t.undo, func() { t.repo.windows[windowID] = w })
	return nil
}

func (t *providerTx) GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	return t.repo.GetBooking(ctx, bookingID)
}

func (t *providerTx) ListBookingsOn(ctx context.Context, providerID string, date time.Time) ([]domain.Booking, error) {
	return t.repo.ListBookingsOn(ctx, providerID, date)
}

func (t *providerTx) CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	if err := t.checkScope(b.ProviderID); err != nil {
		return domain.Booking{}, err
	}
	now := time.Now().UTC()
	if b.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Booking{}, err
		}
		b.ID = id
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	b.Date = domain.DateOf(b.Date)

	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	if _, ok := t.repo.bookings[b.ID]; ok {
		return domain.Booking{}, store.ErrConflict
	}
	t.repo.bookings[b.ID] = b
	t.undo = append(t.undo, func() { delete(t.repo.bookings, b.ID) })
	return b, nil
}

func (t *providerTx) MoveBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	if err := t.checkScope(b.ProviderID); err != nil {
		return domain.Booking{}, err
	}

	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	prev, ok := t.repo.bookings[b.ID]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	moved := prev
	moved.Date = domain.DateOf(b.Date)
	moved.StartMinute = b.StartMinute
	moved.EndMinute = b.EndMinute
	moved.UpdatedAt = time.Now().UTC()

	t.repo.bookings[b.ID] = moved
	t.undo = append(t.undo, func() { t.repo.bookings[b.ID] = prev })
	return moved, nil
}

func (t *providerTx) DeleteBooking(ctx context.Context, consumerID string, bookingID uuid.UUID) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	b, ok := t.repo.bookings[bookingID]
	if !ok || b.ConsumerID != consumerID {
		return store.ErrNotFound
	}
	if err := t.checkScope(b.ProviderID); err != nil {
		return err
	}
	delete(t.repo.bookings, bookingID)
	t.undo = append(t.undo, func() { t.repo.bookings[bookingID] = b })
	return nil
}
