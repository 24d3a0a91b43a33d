package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"tutorbook/backend/internal/domain"
	"tutorbook/backend/internal/store"
)

const (
	constraintBookingsNoOverlap = "bookings_no_overlap"
	constraintWindowsNoOverlap  = "availability_windows_no_overlap"
)

type SchedulingRepo struct {
	db *bun.DB
}

func NewSchedulingRepo(db *bun.DB) *SchedulingRepo {
	return &SchedulingRepo{db: db}
}

type providerTx struct {
	tx         bun.Tx
	providerID string
}

func (r *SchedulingRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderCalendar(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, providerTx{tx: tx, providerID: providerID})
	})
	return mapPgError(err)
}

func lockProviderCalendar(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "provider:"+providerID).Exec(ctx)
	return err
}

func (r *SchedulingRepo) UpsertProvider(ctx context.Context, p domain.Provider) (domain.Provider, error) {
	m := domain.Provider{
		ID:                    p.ID,
		LessonDurationMinutes: p.LessonDurationMinutes,
	}
	_, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO UPDATE").
		Set("lesson_duration_minutes = EXCLUDED.lesson_duration_minutes").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return domain.Provider{}, err
	}
	return r.GetProvider(ctx, p.ID)
}

func (r *SchedulingRepo) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	return getProvider(ctx, r.db, providerID)
}

func (r *SchedulingRepo) GetWindow(ctx context.Context, windowID uuid.UUID) (domain.AvailabilityWindow, error) {
	var w domain.AvailabilityWindow
	err := r.db.NewSelect().
		Model(&w).
		Where("id = ?", windowID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.AvailabilityWindow{}, mapNoRows(err)
	}
	return w, nil
}

func (r *SchedulingRepo) ListProviderWindows(ctx context.Context, providerID string) ([]domain.AvailabilityWindow, error) {
	var rows []domain.AvailabilityWindow
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		OrderExpr("weekday ASC, start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	var b domain.Booking
	err := r.db.NewSelect().
		Model(&b).
		Where("id = ?", bookingID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Booking{}, mapNoRows(err)
	}
	return b, nil
}

func (r *SchedulingRepo) ListBookingsOn(ctx context.Context, providerID string, date time.Time) ([]domain.Booking, error) {
	return listBookingsOn(ctx, r.db, providerID, date)
}

func (r *SchedulingRepo) ListBookings(ctx context.Context, f store.BookingFilter) ([]domain.Booking, error) {
	var rows []domain.Booking
	q := r.db.NewSelect().Model(&rows)
	if f.ProviderID != "" {
		q = q.Where("provider_id = ?", f.ProviderID)
	}
	if f.ConsumerID != "" {
		q = q.Where("consumer_id = ?", f.ConsumerID)
	}
	if !f.FromDate.IsZero() {
		q = q.Where("date >= ?::date", domain.FormatDate(f.FromDate))
	}
	if !f.ToDate.IsZero() {
		q = q.Where("date <= ?::date", domain.FormatDate(f.ToDate))
	}
	if err := q.OrderExpr("date ASC, start_minute ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (t providerTx) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	return getProvider(ctx, t.tx, providerID)
}

func (t providerTx) ListWindows(ctx context.Context, providerID string, weekday time.Weekday) ([]domain.AvailabilityWindow, error) {
	var rows []domain.AvailabilityWindow
	err := t.tx.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("weekday = ?", int(weekday)).
		OrderExpr("start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t providerTx) CreateWindow(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	m := domain.AvailabilityWindow{
		ID:          w.ID,
		ProviderID:  w.ProviderID,
		Weekday:     w.Weekday,
		StartMinute: w.StartMinute,
		EndMinute:   w.EndMinute,
		CreatedAt:   w.CreatedAt,
	}
	if _, err := t.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.AvailabilityWindow{}, mapPgError(err)
	}
	return m, nil
}

func (t providerTx) DeleteWindow(ctx context.Context, providerID string, windowID uuid.UUID) error {
	res, err := t.tx.NewDelete().
		Model((*domain.AvailabilityWindow)(nil)).
		Where("provider_id = ?", providerID).
		Where("id = ?", windowID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (t providerTx) GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	var b domain.Booking
	err := t.tx.NewSelect().
		Model(&b).
		Where("id = ?", bookingID).
		For("UPDATE").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Booking{}, mapNoRows(err)
	}
	return b, nil
}

func (t providerTx) ListBookingsOn(ctx context.Context, providerID string, date time.Time) ([]domain.Booking, error) {
	return listBookingsOn(ctx, t.tx, providerID, date)
}

func (t providerTx) CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := domain.Booking{
		ID:          b.ID,
		ConsumerID:  b.ConsumerID,
		ProviderID:  b.ProviderID,
		Date:        domain.DateOf(b.Date),
		StartMinute: b.StartMinute,
		EndMinute:   b.EndMinute,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
	if _, err := t.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Booking{}, mapPgError(err)
	}
	return m, nil
}

func (t providerTx) MoveBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := domain.Booking{
		ID:          b.ID,
		Date:        domain.DateOf(b.Date),
		StartMinute: b.StartMinute,
		EndMinute:   b.EndMinute,
	}
	res, err := t.tx.NewUpdate().
		Model(&m).
		Column("date", "start_minute", "end_minute", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Booking{}, mapPgError(err)
	}
	if err := requireAffected(res); err != nil {
		return domain.Booking{}, err
	}
	return t.GetBooking(ctx, b.ID)
}

func (t providerTx) DeleteBooking(ctx context.Context, consumerID string, bookingID uuid.UUID) error {
	res, err := t.tx.NewDelete().
		Model((*domain.Booking)(nil)).
		Where("consumer_id = ?", consumerID).
		Where("provider_id = ?", t.providerID).
		Where("id = ?", bookingID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func getProvider(ctx context.Context, db bun.IDB, providerID string) (domain.Provider, error) {
	var p domain.Provider
	err := db.NewSelect().
		Model(&p).
		Where("id = ?", providerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Provider{}, mapNoRows(err)
	}
	return p, nil
}

func listBookingsOn(ctx context.Context, db bun.IDB, providerID string, date time.Time) ([]domain.Booking, error) {
	var rows []domain.Booking
	err := db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("date = ?::date", domain.FormatDate(date)).
		OrderExpr("start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// mapPgError turns races the advisory lock did not prevent into store.ErrConflict.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23P01":
		if pgErr.ConstraintName == constraintBookingsNoOverlap || pgErr.ConstraintName == constraintWindowsNoOverlap {
			return store.ErrConflict
		}
	case "23505", "40001", "40P01":
		return store.ErrConflict
	}
	return err
}
