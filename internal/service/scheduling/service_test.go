package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"tutorbook/backend/internal/cache"
	"tutorbook/backend/internal/domain"
	"tutorbook/backend/internal/store"
	"tutorbook/backend/internal/store/memory"
)

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// conflictRepo overrides the transaction of a memory repo.
type conflictRepo struct {
	*memory.Repo
	inProviderTransactionFn func(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error
}

func (r *conflictRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
	if r.inProviderTransactionFn == nil {
		panic("InProviderTransaction not configured")
	}
	return r.inProviderTransactionFn(ctx, providerID, fn)
}

type fakeSlotCache struct {
	lookupFn     func(ctx context.Context, providerID string, date time.Time) ([]domain.Interval, bool, cache.Generation, error)
	storeFn      func(ctx context.Context, providerID string, date time.Time, gen cache.Generation, slots []domain.Interval) error
	invalidateFn func(ctx context.Context, providerID string) error
}

func (f *fakeSlotCache) Lookup(ctx context.Context, providerID string, date time.Time) ([]domain.Interval, bool, cache.Generation, error) {
	if f.lookupFn == nil {
		panic("Lookup not configured")
	}
	return f.lookupFn(ctx, providerID, date)
}

func (f *fakeSlotCache) Store(ctx context.Context, providerID string, date time.Time, gen cache.Generation, slots []domain.Interval) error {
	if f.storeFn == nil {
		panic("Store not configured")
	}
	return f.storeFn(ctx, providerID, date, gen, slots)
}

func (f *fakeSlotCache) Invalidate(ctx context.Context, providerID string) error {
	if f.invalidateFn == nil {
		panic("Invalidate not configured")
	}
	return f.invalidateFn(ctx, providerID)
}

func iv(t *testing.T, start, end string) domain.Interval {
	t.Helper()
	out, err := domain.ParseInterval(start, end)
	if err != nil {
		t.Fatalf("ParseInterval(%s, %s) error: %v", start, end, err)
	}
	return out
}

// newMondayService returns a service over a provider p1 with 30 minute lessons and a
// Monday 09:00-11:00 window.
func newMondayService(t *testing.T, opts ...Option) (*Service, *memory.Repo) {
	t.Helper()
	repo := memory.NewRepo()
	svc := NewService(repo, opts...)
	ctx := context.Background()
	if _, err := svc.UpsertProvider(ctx, "p1", 30); err != nil {
		t.Fatalf("UpsertProvider error: %v", err)
	}
	if _, err := svc.AddAvailability(ctx, AddAvailabilityInput{
		ProviderID: "p1",
		Weekday:    time.Monday,
		Interval:   iv(t, "09:00", "11:00"),
	}); err != nil {
		t.Fatalf("AddAvailability error: %v", err)
	}
	return svc, repo
}

func book(t *testing.T, svc *Service, consumerID, start, end string) domain.Booking {
	t.Helper()
	b, err := svc.CreateBooking(context.Background(), CreateBookingInput{
		ProviderID: "p1",
		ConsumerID: consumerID,
		Date:       monday,
		Interval:   iv(t, start, end),
	})
	if err != nil {
		t.Fatalf("CreateBooking(%s-%s) error: %v", start, end, err)
	}
	return b
}

func slotStrings(slots []domain.Interval) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.String()
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGenerateSlots_MondayScenario(t *testing.T) {
	svc, _ := newMondayService(t)
	ctx := context.Background()

	slots, err := svc.GenerateSlots(ctx, GenerateSlotsInput{ProviderID: "p1", Date: monday})
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	want := []string{"09:00-09:30", "09:30-10:00", "10:00-10:30", "10:30-11:00"}
	if got := slotStrings(slots); !equalStrings(got, want) {
		t.Fatalf("slots = %v, want %v", got, want)
	}

	book(t, svc, "c1", "09:30", "10:00")

	slots, err = svc.GenerateSlots(ctx, GenerateSlotsInput{ProviderID: "p1", Date: monday})
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	want = []string{"09:00-09:30", "10:00-10:30", "10:30-11:00"}
	if got := slotStrings(slots); !equalStrings(got, want) {
		t.Fatalf("slots = %v, want %v", got, want)
	}

	tuesday := monday.AddDate(0, 0, 1)
	slots, err = svc.GenerateSlots(ctx, GenerateSlotsInput{ProviderID: "p1", Date: tuesday})
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	if slots == nil || len(slots) != 0 {
		t.Fatalf("tuesday slots = %#v, want empty non-nil", slots)
	}
}

func TestGenerateSlots_ExcludeBookingForReschedule(t *testing.T) {
	svc, _ := newMondayService(t)
	b := book(t, svc, "c1", "09:30", "10:00")

	slots, err := svc.GenerateSlots(context.Background(), GenerateSlotsInput{
		ProviderID:       "p1",
		Date:             monday,
		ExcludeBookingID: b.ID,
		ConsumerID:       "c1",
	})
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	if len(slots) != 4 {
		t.Fatalf("len(slots) = %d, want 4", len(slots))
	}
}

func TestGenerateSlots_ExcludeRequiresOwner(t *testing.T) {
	svc, _ := newMondayService(t)
	ctx := context.Background()
	b := book(t, svc, "c1", "09:30", "10:00")
	if _, err := svc.UpsertProvider(ctx, "p2", 30); err != nil {
		t.Fatalf("UpsertProvider error: %v", err)
	}

	tests := []struct {
		name     string
		provider string
		consumer string
		exclude  uuid.UUID
		want     error
	}{
		{name: "missing consumer", provider: "p1", consumer: "", exclude: b.ID, want: domain.ErrInvalidRange},
		{name: "other consumer", provider: "p1", consumer: "c2", exclude: b.ID, want: domain.ErrNotFound},
		{name: "other provider", provider: "p2", consumer: "c1", exclude: b.ID, want: domain.ErrNotFound},
		{name: "unknown booking", provider: "p1", consumer: "c1", exclude: uuid.New(), want: domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots, err := svc.GenerateSlots(ctx, GenerateSlotsInput{
				ProviderID:       tt.provider,
				Date:             monday,
				ExcludeBookingID: tt.exclude,
				ConsumerID:       tt.consumer,
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if slots != nil {
				t.Fatalf("slots = %v, want nil on error", slots)
			}
		})
	}
}

func TestGenerateSlots_UnknownProvider(t *testing.T) {
	svc := NewService(memory.NewRepo())
	_, err := svc.GenerateSlots(context.Background(), GenerateSlotsInput{ProviderID: "nobody", Date: monday})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, domain.ErrNotFound)
	}
}

func TestCreateBooking_Admission(t *testing.T) {
	svc, _ := newMondayService(t)
	book(t, svc, "c1", "09:30", "10:00")

	tests := []struct {
		name     string
		provider string
		date     time.Time
		start    string
		end      string
		want     error
	}{
		{name: "overlaps booked slot", provider: "p1", date: monday, start: "09:30", end: "10:00", want: domain.ErrSlotUnavailable},
		{name: "off grid", provider: "p1", date: monday, start: "09:15", end: "09:45", want: domain.ErrOutsideAvailability},
		{name: "past window end", provider: "p1", date: monday, start: "11:00", end: "11:30", want: domain.ErrOutsideAvailability},
		{name: "no window that day", provider: "p1", date: monday.AddDate(0, 0, 1), start: "09:00", end: "09:30", want: domain.ErrOutsideAvailability},
		{name: "wrong length", provider: "p1", date: monday, start: "09:00", end: "10:00", want: domain.ErrInvalidRange},
		{name: "unknown provider", provider: "p9", date: monday, start: "09:00", end: "09:30", want: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateBooking(context.Background(), CreateBookingInput{
				ProviderID: tt.provider,
				ConsumerID: "c2",
				Date:       tt.date,
				Interval:   iv(t, tt.start, tt.end),
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("reversed interval", func(t *testing.T) {
		_, err := svc.CreateBooking(context.Background(), CreateBookingInput{
			ProviderID: "p1",
			ConsumerID: "c2",
			Date:       monday,
			Interval:   domain.Interval{Start: domain.ClockTime(10, 0), End: domain.ClockTime(9, 30)},
		})
		if !errors.Is(err, domain.ErrInvalidRange) {
			t.Fatalf("error = %v, want %v", err, domain.ErrInvalidRange)
		}
	})

	t.Run("adjacent slot is admitted", func(t *testing.T) {
		b := book(t, svc, "c2", "10:00", "10:30")
		if b.ID == uuid.Nil || !b.Date.Equal(monday) {
			t.Fatalf("booking = %+v", b)
		}
	})
}

func TestCreateBooking_ConcurrentSameSlotExactlyOneWins(t *testing.T) {
	svc, repo := newMondayService(t)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		losses    int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateBooking(context.Background(), CreateBookingInput{
				ProviderID: "p1",
				ConsumerID: "c" + string(rune('a'+i)),
				Date:       monday,
				Interval:   domain.Interval{Start: domain.ClockTime(9, 0), End: domain.ClockTime(9, 30)},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrSlotUnavailable):
				losses++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 || losses != n-1 {
		t.Fatalf("successes = %d, losses = %d, want 1 and %d", successes, losses, n-1)
	}
	bookings, err := repo.ListBookingsOn(context.Background(), "p1", monday)
	if err != nil {
		t.Fatalf("ListBookingsOn error: %v", err)
	}
	if len(bookings) != 1 {
		t.Fatalf("len(bookings) = %d, want 1", len(bookings))
	}
}

func TestRescheduleBooking_ConcurrentIntoSameSlotExactlyOneWins(t *testing.T) {
	svc, repo := newMondayService(t)
	ctx := context.Background()

	held := []domain.Booking{
		book(t, svc, "c1", "09:00", "09:30"),
		book(t, svc, "c2", "09:30", "10:00"),
		book(t, svc, "c3", "10:00", "10:30"),
	}
	target := iv(t, "10:30", "11:00")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		start     = make(chan struct{})
		successes int
		losses    int
		winner    uuid.UUID
	)
	record := func(id uuid.UUID, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			successes++
			winner = id
		case errors.Is(err, domain.ErrSlotUnavailable):
			losses++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	for _, b := range held {
		wg.Add(1)
		go func(b domain.Booking) {
			defer wg.Done()
			<-start
			_, err := svc.RescheduleBooking(ctx, RescheduleBookingInput{
				BookingID:  b.ID,
				ConsumerID: b.ConsumerID,
				Date:       monday,
				Interval:   target,
			})
			record(b.ID, err)
		}(b)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		created, err := svc.CreateBooking(ctx, CreateBookingInput{
			ProviderID: "p1",
			ConsumerID: "c4",
			Date:       monday,
			Interval:   target,
		})
		record(created.ID, err)
	}()
	close(start)
	wg.Wait()

	if successes != 1 || losses != len(held) {
		t.Fatalf("successes = %d, losses = %d, want 1 and %d", successes, losses, len(held))
	}
	for _, b := range held {
		if b.ID == winner {
			continue
		}
		got, err := repo.GetBooking(ctx, b.ID)
		if err != nil {
			t.Fatalf("GetBooking error: %v", err)
		}
		if got.Interval() != b.Interval() || !got.Date.Equal(b.Date) {
			t.Fatalf("booking of %s = %s, want unchanged %s", b.ConsumerID, got.Interval(), b.Interval())
		}
	}
	assertNoOverlap(t, repo, monday)
}

func TestBookingLedger_ConcurrentMixedCommitsNeverOverlap(t *testing.T) {
	svc, repo := newMondayService(t)
	ctx := context.Background()
	slots := []domain.Interval{
		iv(t, "09:00", "09:30"),
		iv(t, "09:30", "10:00"),
		iv(t, "10:00", "10:30"),
		iv(t, "10:30", "11:00"),
	}

	const (
		workers = 8
		rounds  = 50
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			consumer := "c" + string(rune('a'+w))
			var mine uuid.UUID
			for r := 0; r < rounds; r++ {
				slot := slots[(w+r)%len(slots)]
				var err error
				switch {
				case mine == uuid.Nil:
					var b domain.Booking
					b, err = svc.CreateBooking(ctx, CreateBookingInput{ProviderID: "p1", ConsumerID: consumer, Date: monday, Interval: slot})
					if err == nil {
						mine = b.ID
					}
				case r%3 == 0:
					err = svc.CancelBooking(ctx, mine, consumer)
					if err == nil {
						mine = uuid.Nil
					}
				default:
					_, err = svc.RescheduleBooking(ctx, RescheduleBookingInput{BookingID: mine, ConsumerID: consumer, Date: monday, Interval: slot})
				}
				if err != nil && !errors.Is(err, domain.ErrSlotUnavailable) {
					t.Errorf("worker %d round %d: unexpected error: %v", w, r, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	assertNoOverlap(t, repo, monday)
}

func assertNoOverlap(t *testing.T, repo *memory.Repo, date time.Time) {
	t.Helper()
	bookings, err := repo.ListBookingsOn(context.Background(), "p1", date)
	if err != nil {
		t.Fatalf("ListBookingsOn error: %v", err)
	}
	for i := range bookings {
		for j := i + 1; j < len(bookings); j++ {
			if bookings[i].Interval().Overlaps(bookings[j].Interval()) {
				t.Fatalf("bookings %s and %s overlap", bookings[i].Interval(), bookings[j].Interval())
			}
		}
	}
}

func TestRescheduleBooking(t *testing.T) {
	svc, repo := newMondayService(t)
	ctx := context.Background()
	mine := book(t, svc, "c1", "09:00", "09:30")
	book(t, svc, "c2", "10:00", "10:30")

	t.Run("conflict leaves the booking unchanged", func(t *testing.T) {
		_, err := svc.RescheduleBooking(ctx, RescheduleBookingInput{
			BookingID:  mine.ID,
			ConsumerID: "c1",
			Date:       monday,
			Interval:   iv(t, "10:00", "10:30"),
		})
		if !errors.Is(err, domain.ErrSlotUnavailable) {
			t.Fatalf("error = %v, want %v", err, domain.ErrSlotUnavailable)
		}
		got, err := repo.GetBooking(ctx, mine.ID)
		if err != nil {
			t.Fatalf("GetBooking error: %v", err)
		}
		if got.Interval() != mine.Interval() || !got.Date.Equal(mine.Date) {
			t.Fatalf("booking = %s on %s, want unchanged", got.Interval(), domain.FormatDate(got.Date))
		}
	})

	t.Run("non owner gets not found", func(t *testing.T) {
		_, err := svc.RescheduleBooking(ctx, RescheduleBookingInput{
			BookingID:  mine.ID,
			ConsumerID: "c2",
			Date:       monday,
			Interval:   iv(t, "10:30", "11:00"),
		})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("error = %v, want %v", err, domain.ErrNotFound)
		}
	})

	t.Run("same slot is not a conflict with itself", func(t *testing.T) {
		same, err := svc.RescheduleBooking(ctx, RescheduleBookingInput{
			BookingID:  mine.ID,
			ConsumerID: "c1",
			Date:       monday,
			Interval:   iv(t, "09:00", "09:30"),
		})
		if err != nil {
			t.Fatalf("RescheduleBooking error: %v", err)
		}
		if same.ID != mine.ID {
			t.Fatalf("id = %s, want %s", same.ID, mine.ID)
		}
	})

	t.Run("moves within the day", func(t *testing.T) {
		moved, err := svc.RescheduleBooking(ctx, RescheduleBookingInput{
			BookingID:  mine.ID,
			ConsumerID: "c1",
			Date:       monday,
			Interval:   iv(t, "09:30", "10:00"),
		})
		if err != nil {
			t.Fatalf("RescheduleBooking error: %v", err)
		}
		if moved.ID != mine.ID {
			t.Fatalf("id = %s, want %s", moved.ID, mine.ID)
		}
		if !moved.CreatedAt.Equal(mine.CreatedAt) {
			t.Fatalf("created_at = %v, want %v", moved.CreatedAt, mine.CreatedAt)
		}
		if moved.Interval() != iv(t, "09:30", "10:00") {
			t.Fatalf("interval = %s, want 09:30-10:00", moved.Interval())
		}
	})

	t.Run("to another monday", func(t *testing.T) {
		next := monday.AddDate(0, 0, 7)
		moved, err := svc.RescheduleBooking(ctx, RescheduleBookingInput{
			BookingID:  mine.ID,
			ConsumerID: "c1",
			Date:       next,
			Interval:   iv(t, "10:00", "10:30"),
		})
		if err != nil {
			t.Fatalf("RescheduleBooking error: %v", err)
		}
		if !moved.Date.Equal(next) {
			t.Fatalf("date = %s, want %s", domain.FormatDate(moved.Date), domain.FormatDate(next))
		}
	})

	t.Run("missing booking", func(t *testing.T) {
		_, err := svc.RescheduleBooking(ctx, RescheduleBookingInput{
			BookingID:  uuid.New(),
			ConsumerID: "c1",
			Date:       monday,
			Interval:   iv(t, "10:30", "11:00"),
		})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("error = %v, want %v", err, domain.ErrNotFound)
		}
	})
}

func TestCancelBooking_ThenRecreate(t *testing.T) {
	svc, _ := newMondayService(t)
	ctx := context.Background()
	b := book(t, svc, "c1", "09:00", "09:30")

	if err := svc.CancelBooking(ctx, b.ID, "c2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign cancel error = %v, want %v", err, domain.ErrNotFound)
	}
	if err := svc.CancelBooking(ctx, b.ID, "c1"); err != nil {
		t.Fatalf("CancelBooking error: %v", err)
	}
	if err := svc.CancelBooking(ctx, b.ID, "c1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second cancel error = %v, want %v", err, domain.ErrNotFound)
	}

	again := book(t, svc, "c2", "09:00", "09:30")
	if again.ID == b.ID {
		t.Fatalf("expected a new booking id")
	}
}

func TestAvailability_AddRemoveRoundTrip(t *testing.T) {
	svc, _ := newMondayService(t)
	ctx := context.Background()

	before, err := svc.ListAvailability(ctx, "p1")
	if err != nil {
		t.Fatalf("ListAvailability error: %v", err)
	}

	w, err := svc.AddAvailability(ctx, AddAvailabilityInput{
		ProviderID: "p1",
		Weekday:    time.Sunday,
		Interval:   iv(t, "13:00", "15:00"),
	})
	if err != nil {
		t.Fatalf("AddAvailability error: %v", err)
	}

	during, err := svc.ListAvailability(ctx, "p1")
	if err != nil {
		t.Fatalf("ListAvailability error: %v", err)
	}
	if len(during) != len(before)+1 || during[0].ID != w.ID {
		t.Fatalf("windows = %v, want sunday window first", during)
	}

	if err := svc.RemoveAvailability(ctx, "p1", w.ID, "p1"); err != nil {
		t.Fatalf("RemoveAvailability error: %v", err)
	}
	after, err := svc.ListAvailability(ctx, "p1")
	if err != nil {
		t.Fatalf("ListAvailability error: %v", err)
	}
	if len(after) != len(before) || after[0].ID != before[0].ID {
		t.Fatalf("windows = %v, want %v", after, before)
	}
}

func TestAddAvailability_Errors(t *testing.T) {
	svc, _ := newMondayService(t)

	tests := []struct {
		name     string
		provider string
		weekday  time.Weekday
		start    string
		end      string
		want     error
	}{
		{name: "overlaps existing", provider: "p1", weekday: time.Monday, start: "10:30", end: "12:00", want: domain.ErrOverlapsExisting},
		{name: "contained", provider: "p1", weekday: time.Monday, start: "09:30", end: "10:00", want: domain.ErrOverlapsExisting},
		{name: "bad weekday", provider: "p1", weekday: time.Weekday(7), start: "09:00", end: "10:00", want: domain.ErrInvalidRange},
		{name: "unknown provider", provider: "p9", weekday: time.Monday, start: "09:00", end: "10:00", want: domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddAvailability(context.Background(), AddAvailabilityInput{
				ProviderID: tt.provider,
				Weekday:    tt.weekday,
				Interval:   iv(t, tt.start, tt.end),
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("touching window is accepted", func(t *testing.T) {
		if _, err := svc.AddAvailability(context.Background(), AddAvailabilityInput{
			ProviderID: "p1",
			Weekday:    time.Monday,
			Interval:   iv(t, "11:00", "12:00"),
		}); err != nil {
			t.Fatalf("AddAvailability error: %v", err)
		}
	})
}

func TestRemoveAvailability_Authority(t *testing.T) {
	svc, _ := newMondayService(t)
	ctx := context.Background()
	if _, err := svc.UpsertProvider(ctx, "p2", 60); err != nil {
		t.Fatalf("UpsertProvider error: %v", err)
	}
	windows, err := svc.ListAvailability(ctx, "p1")
	if err != nil {
		t.Fatalf("ListAvailability error: %v", err)
	}
	id := windows[0].ID

	if err := svc.RemoveAvailability(ctx, "p1", id, "c1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("requester mismatch error = %v, want %v", err, domain.ErrForbidden)
	}
	if err := svc.RemoveAvailability(ctx, "p2", id, "p2"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("foreign window error = %v, want %v", err, domain.ErrForbidden)
	}
	if err := svc.RemoveAvailability(ctx, "p1", uuid.New(), "p1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing window error = %v, want %v", err, domain.ErrNotFound)
	}
}

func TestRemoveAvailability_KeepsBookings(t *testing.T) {
	svc, repo := newMondayService(t)
	ctx := context.Background()
	b := book(t, svc, "c1", "09:00", "09:30")

	windows, err := svc.ListAvailability(ctx, "p1")
	if err != nil {
		t.Fatalf("ListAvailability error: %v", err)
	}
	if err := svc.RemoveAvailability(ctx, "p1", windows[0].ID, "p1"); err != nil {
		t.Fatalf("RemoveAvailability error: %v", err)
	}
	if _, err := repo.GetBooking(ctx, b.ID); err != nil {
		t.Fatalf("GetBooking error: %v", err)
	}
}

func TestStorageFailures(t *testing.T) {
	ctx := context.Background()
	base := memory.NewRepo()
	if _, err := base.UpsertProvider(ctx, domain.Provider{ID: "p1", LessonDurationMinutes: 30}); err != nil {
		t.Fatalf("UpsertProvider error: %v", err)
	}

	t.Run("unexpected error becomes storage unavailable", func(t *testing.T) {
		boom := errors.New("connection reset")
		svc := NewService(&conflictRepo{
			Repo: base,
			inProviderTransactionFn: func(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
				return boom
			},
		})
		_, err := svc.CreateBooking(ctx, CreateBookingInput{
			ProviderID: "p1",
			ConsumerID: "c1",
			Date:       monday,
			Interval:   iv(t, "09:00", "09:30"),
		})
		if !errors.Is(err, domain.ErrStorageUnavailable) {
			t.Fatalf("error = %v, want %v", err, domain.ErrStorageUnavailable)
		}
		if !errors.Is(err, boom) {
			t.Fatalf("error = %v, want wrapped %v", err, boom)
		}
	})

	t.Run("conflicts are retried then reported", func(t *testing.T) {
		calls := 0
		svc := NewService(&conflictRepo{
			Repo: base,
			inProviderTransactionFn: func(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
				calls++
				return store.ErrConflict
			},
		}, WithMaxCommitAttempts(4))

		_, err := svc.CreateBooking(ctx, CreateBookingInput{
			ProviderID: "p1",
			ConsumerID: "c1",
			Date:       monday,
			Interval:   iv(t, "09:00", "09:30"),
		})
		if !errors.Is(err, domain.ErrSlotUnavailable) {
			t.Fatalf("error = %v, want %v", err, domain.ErrSlotUnavailable)
		}
		if calls != 4 {
			t.Fatalf("calls = %d, want 4", calls)
		}

		calls = 0
		_, err = svc.AddAvailability(ctx, AddAvailabilityInput{
			ProviderID: "p1",
			Weekday:    time.Monday,
			Interval:   iv(t, "09:00", "10:00"),
		})
		if !errors.Is(err, domain.ErrOverlapsExisting) {
			t.Fatalf("error = %v, want %v", err, domain.ErrOverlapsExisting)
		}
	})

	t.Run("deletes out of retries report storage unavailable", func(t *testing.T) {
		var (
			booking domain.Booking
			window  domain.AvailabilityWindow
		)
		err := base.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.ProviderTx) error {
			var err error
			window, err = tx.CreateWindow(ctx, domain.AvailabilityWindow{
				ProviderID:  "p1",
				Weekday:     time.Friday,
				StartMinute: domain.ClockTime(9, 0),
				EndMinute:   domain.ClockTime(10, 0),
			})
			if err != nil {
				return err
			}
			booking, err = tx.CreateBooking(ctx, domain.Booking{
				ConsumerID:  "c1",
				ProviderID:  "p1",
				Date:        monday.AddDate(0, 0, 4),
				StartMinute: domain.ClockTime(9, 0),
				EndMinute:   domain.ClockTime(9, 30),
			})
			return err
		})
		if err != nil {
			t.Fatalf("seed error: %v", err)
		}

		svc := NewService(&conflictRepo{
			Repo: base,
			inProviderTransactionFn: func(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
				return store.ErrConflict
			},
		})

		err = svc.CancelBooking(ctx, booking.ID, "c1")
		if !errors.Is(err, domain.ErrStorageUnavailable) {
			t.Fatalf("cancel error = %v, want %v", err, domain.ErrStorageUnavailable)
		}
		if errors.Is(err, domain.ErrSlotUnavailable) {
			t.Fatalf("cancel error = %v, must not be an admission error", err)
		}

		err = svc.RemoveAvailability(ctx, "p1", window.ID, "p1")
		if !errors.Is(err, domain.ErrStorageUnavailable) {
			t.Fatalf("remove error = %v, want %v", err, domain.ErrStorageUnavailable)
		}
		if errors.Is(err, domain.ErrOverlapsExisting) {
			t.Fatalf("remove error = %v, must not be an admission error", err)
		}
	})

	t.Run("missing booking never opens a transaction", func(t *testing.T) {
		calls := 0
		svc := NewService(&conflictRepo{
			Repo: base,
			inProviderTransactionFn: func(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ProviderTx) error) error {
				calls++
				return fn(ctx, nil)
			},
		})
		if err := svc.CancelBooking(ctx, uuid.New(), "c1"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("error = %v, want %v", err, domain.ErrNotFound)
		}
		if calls != 0 {
			t.Fatalf("calls = %d, want no transaction for a missing booking", calls)
		}
	})
}

func TestListBookings(t *testing.T) {
	repo := memory.NewRepo()
	ctx := context.Background()
	svc := NewService(repo, WithPastLimits(3, 2, 30*24*time.Hour))
	if _, err := svc.UpsertProvider(ctx, "p1", 30); err != nil {
		t.Fatalf("UpsertProvider error: %v", err)
	}

	seed := func(consumerID string, date time.Time, start string) domain.Booking {
		var out domain.Booking
		err := repo.InProviderTransaction(ctx, "p1", func(ctx context.Context, tx store.ProviderTx) error {
			s, err := domain.ParseTimeOfDay(start)
			if err != nil {
				return err
			}
			b, err := tx.CreateBooking(ctx, domain.Booking{
				ConsumerID:  consumerID,
				ProviderID:  "p1",
				Date:        date,
				StartMinute: s,
				EndMinute:   s + 30,
			})
			out = b
			return err
		})
		if err != nil {
			t.Fatalf("seed error: %v", err)
		}
		return out
	}

	asOf := monday.Add(10 * time.Hour) // 10:00 on monday
	old := seed("c1", monday.AddDate(0, 0, -60), "09:00")
	p1 := seed("c1", monday.AddDate(0, 0, -3), "09:00")
	p2 := seed("c1", monday.AddDate(0, 0, -2), "09:00")
	p3 := seed("c1", monday, "09:00")
	endsNow := seed("c2", monday, "09:30")
	inProgress := seed("c1", monday, "09:45")
	u1 := seed("c1", monday, "11:00")
	u2 := seed("c1", monday.AddDate(0, 0, 1), "09:00")

	t.Run("consumer upcoming ascending", func(t *testing.T) {
		got, err := svc.ListBookings(ctx, ListBookingsInput{ConsumerID: "c1", AsOf: asOf})
		if err != nil {
			t.Fatalf("ListBookings error: %v", err)
		}
		want := []uuid.UUID{inProgress.ID, u1.ID, u2.ID}
		assertIDs(t, got, want)
	})

	t.Run("consumer past descending and capped", func(t *testing.T) {
		got, err := svc.ListBookings(ctx, ListBookingsInput{ConsumerID: "c1", Horizon: domain.HorizonPast, AsOf: asOf})
		if err != nil {
			t.Fatalf("ListBookings error: %v", err)
		}
		assertIDs(t, got, []uuid.UUID{p3.ID, p2.ID})
	})

	t.Run("provider past bounded by lookback", func(t *testing.T) {
		got, err := svc.ListBookings(ctx, ListBookingsInput{ProviderID: "p1", Horizon: domain.HorizonPast, AsOf: asOf})
		if err != nil {
			t.Fatalf("ListBookings error: %v", err)
		}
		assertIDs(t, got, []uuid.UUID{endsNow.ID, p3.ID, p2.ID})
		for _, b := range got {
			if b.ID == old.ID || b.ID == p1.ID {
				t.Fatalf("unexpected booking %s", b.ID)
			}
		}
	})

	t.Run("defaults to the service clock", func(t *testing.T) {
		clocked := NewService(repo, WithClock(func() time.Time { return asOf }))
		got, err := clocked.ListBookings(ctx, ListBookingsInput{ConsumerID: "c2"})
		if err != nil {
			t.Fatalf("ListBookings error: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("len(upcoming) = %d, want 0 for a booking ending at as_of", len(got))
		}
	})

	t.Run("needs exactly one audience", func(t *testing.T) {
		_, err := svc.ListBookings(ctx, ListBookingsInput{ProviderID: "p1", ConsumerID: "c1", AsOf: asOf})
		if !errors.Is(err, domain.ErrInvalidRange) {
			t.Fatalf("error = %v, want %v", err, domain.ErrInvalidRange)
		}
		_, err = svc.ListBookings(ctx, ListBookingsInput{AsOf: asOf})
		if !errors.Is(err, domain.ErrInvalidRange) {
			t.Fatalf("error = %v, want %v", err, domain.ErrInvalidRange)
		}
	})
}

func assertIDs(t *testing.T, got []domain.Booking, want []uuid.UUID) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("[%d] = %s %s, want %s", i, domain.FormatDate(got[i].Date), got[i].Interval(), want[i])
		}
	}
}

func TestSlotCache(t *testing.T) {
	ctx := context.Background()

	t.Run("hit skips storage", func(t *testing.T) {
		cached := []domain.Interval{{Start: domain.ClockTime(8, 0), End: domain.ClockTime(8, 30)}}
		svc := NewService(memory.NewRepo(), WithSlotCache(&fakeSlotCache{
			lookupFn: func(ctx context.Context, providerID string, date time.Time) ([]domain.Interval, bool, cache.Generation, error) {
				return cached, true, 1, nil
			},
		}))
		got, err := svc.GenerateSlots(ctx, GenerateSlotsInput{ProviderID: "p1", Date: monday})
		if err != nil {
			t.Fatalf("GenerateSlots error: %v", err)
		}
		if len(got) != 1 || got[0] != cached[0] {
			t.Fatalf("slots = %v, want %v", got, cached)
		}
	})

	t.Run("miss stores under observed generation and commits invalidate", func(t *testing.T) {
		var (
			storedGen   cache.Generation
			stored      []domain.Interval
			invalidated []string
		)
		fc := &fakeSlotCache{
			lookupFn: func(ctx context.Context, providerID string, date time.Time) ([]domain.Interval, bool, cache.Generation, error) {
				return nil, false, 5, nil
			},
			storeFn: func(ctx context.Context, providerID string, date time.Time, gen cache.Generation, slots []domain.Interval) error {
				storedGen = gen
				stored = slots
				return nil
			},
			invalidateFn: func(ctx context.Context, providerID string) error {
				invalidated = append(invalidated, providerID)
				return nil
			},
		}
		svc, _ := newMondayService(t, WithSlotCache(fc))
		invalidated = nil

		if _, err := svc.GenerateSlots(ctx, GenerateSlotsInput{ProviderID: "p1", Date: monday}); err != nil {
			t.Fatalf("GenerateSlots error: %v", err)
		}
		if storedGen != 5 || len(stored) != 4 {
			t.Fatalf("stored gen=%d slots=%v, want gen 5 and 4 slots", storedGen, stored)
		}

		book(t, svc, "c1", "09:00", "09:30")
		if len(invalidated) != 1 || invalidated[0] != "p1" {
			t.Fatalf("invalidated = %v, want [p1]", invalidated)
		}
	})

	t.Run("cache failures fall back to storage", func(t *testing.T) {
		fc := &fakeSlotCache{
			lookupFn: func(ctx context.Context, providerID string, date time.Time) ([]domain.Interval, bool, cache.Generation, error) {
				return nil, false, 0, errors.New("redis down")
			},
			invalidateFn: func(ctx context.Context, providerID string) error {
				return errors.New("redis down")
			},
		}
		svc, _ := newMondayService(t, WithSlotCache(fc))
		slots, err := svc.GenerateSlots(ctx, GenerateSlotsInput{ProviderID: "p1", Date: monday})
		if err != nil {
			t.Fatalf("GenerateSlots error: %v", err)
		}
		if len(slots) != 4 {
			t.Fatalf("len(slots) = %d, want 4", len(slots))
		}
	})
}

func TestUpsertProvider_Validation(t *testing.T) {
	svc := NewService(memory.NewRepo())
	for _, minutes := range []int{0, -30, domain.MinutesPerDay + 1} {
		if _, err := svc.UpsertProvider(context.Background(), "p1", minutes); !errors.Is(err, domain.ErrInvalidRange) {
			t.Fatalf("UpsertProvider(%d) error = %v, want %v", minutes, err, domain.ErrInvalidRange)
		}
	}
	p, err := svc.UpsertProvider(context.Background(), "p1", 45)
	if err != nil {
		t.Fatalf("UpsertProvider error: %v", err)
	}
	if p.LessonDuration() != 45*time.Minute {
		t.Fatalf("duration = %s, want 45m", p.LessonDuration())
	}
}
