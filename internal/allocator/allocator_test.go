package allocator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/julianstephens/salonbot/internal/catalog"
	"github.com/julianstephens/salonbot/internal/models"
	"github.com/julianstephens/salonbot/internal/storage"
)

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func newStore(t *testing.T) *storage.JSONStore {
	t.Helper()
	s := storage.NewJSONStore(filepath.Join(t.TempDir(), "appointments.json"))
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s
}

func draft(date, slot string) models.NewAppointment {
	return models.NewAppointment{
		ClientID:    "42",
		ServiceRef:  "manicure",
		Date:        date,
		Time:        slot,
		ClientName:  "Anna",
		ClientPhone: "5551234",
		Comment:     "none",
	}
}

func TestReserve_CalendarRules(t *testing.T) {
	tests := []struct {
		name      string
		date      string
		slot      string
		wantErr   error
		wantField Field
	}{
		{name: "future date", date: "2026-10-16", slot: "10:30"},
		{name: "later today", date: "2026-10-14", slot: "13:30"},
		{name: "unknown slot", date: "2026-10-16", slot: "14:00", wantErr: ErrUnknownSlot, wantField: FieldTime},
		{name: "past date", date: "2026-10-13", slot: "10:30", wantErr: ErrPastDate, wantField: FieldDate},
		{name: "invalid date", date: "16.10.2026", slot: "10:30", wantErr: ErrInvalidDate, wantField: FieldDate},
		{name: "slot already started", date: "2026-10-14", slot: "12:00", wantErr: ErrSlotPassed, wantField: FieldTime},
		{name: "slot earlier today", date: "2026-10-14", slot: "09:00", wantErr: ErrSlotPassed, wantField: FieldTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(newStore(t), catalog.Default(), WithClock(clock))
			appt, err := a.Reserve(context.Background(), draft(tt.date, tt.slot))

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Reserve failed: %v", err)
				}
				if appt.ID == 0 || appt.Status != models.StatusActive {
					t.Errorf("Reserve() = %+v", appt)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Reserve() error = %v, want %v", err, tt.wantErr)
			}
			var ce *ConflictError
			if !errors.As(err, &ce) || ce.Field != tt.wantField {
				t.Errorf("conflict field = %v, want %s", ce, tt.wantField)
			}
		})
	}
}

func TestReserve_DraftSpanningMidnight(t *testing.T) {
	now := fixedNow
	a := New(newStore(t), catalog.Default(), WithClock(func() time.Time { return now }))
	n := draft("2026-10-14", "19:30")

	// The draft was built on the 14th but confirmed after midnight.
	now = time.Date(2026, 10, 15, 0, 5, 0, 0, time.UTC)
	if _, err := a.Reserve(context.Background(), n); !errors.Is(err, ErrPastDate) {
		t.Errorf("Reserve() error = %v, want ErrPastDate", err)
	}
}

func TestReserve_Capacity(t *testing.T) {
	ctx := context.Background()

	t.Run("single seat", func(t *testing.T) {
		store := newStore(t)
		a := New(store, catalog.Default(), WithClock(clock), WithCapacity(1))

		first, err := a.Reserve(ctx, draft("2026-10-16", "10:30"))
		if err != nil {
			t.Fatalf("first Reserve failed: %v", err)
		}
		if _, err := a.Reserve(ctx, draft("2026-10-16", "10:30")); !errors.Is(err, ErrSlotFull) {
			t.Fatalf("second Reserve error = %v, want ErrSlotFull", err)
		}
		if _, err := a.Reserve(ctx, draft("2026-10-16", "12:00")); err != nil {
			t.Errorf("other slot rejected: %v", err)
		}

		if err := store.Cancel(ctx, first.ID, models.CancelledByClient); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		if _, err := a.Reserve(ctx, draft("2026-10-16", "10:30")); err != nil {
			t.Errorf("Reserve after cancellation failed: %v", err)
		}
	})

	t.Run("unlimited", func(t *testing.T) {
		a := New(newStore(t), catalog.Default(), WithClock(clock), WithCapacity(0))
		for i := 0; i < 3; i++ {
			if _, err := a.Reserve(ctx, draft("2026-10-16", "10:30")); err != nil {
				t.Fatalf("Reserve %d failed: %v", i, err)
			}
		}
		if a.Capacity() != 0 {
			t.Errorf("Capacity() = %d, want 0", a.Capacity())
		}
	})

	t.Run("concurrent last seat", func(t *testing.T) {
		a := New(newStore(t), catalog.Default(), WithClock(clock), WithCapacity(2))
		var ok, full int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := a.Reserve(ctx, draft("2026-10-17", "15:00"))
				switch {
				case err == nil:
					atomic.AddInt32(&ok, 1)
				case errors.Is(err, ErrSlotFull):
					atomic.AddInt32(&full, 1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if ok != 2 || full != 8 {
			t.Errorf("succeeded %d, full %d; want 2 and 8", ok, full)
		}
	})
}

func TestReserve_NotifiesListeners(t *testing.T) {
	var got []int64
	l := ListenerFunc(func(ctx context.Context, a models.Appointment) { got = append(got, a.ID) })
	a := New(newStore(t), catalog.Default(), WithClock(clock), WithListener(l))

	appt, err := a.Reserve(context.Background(), draft("2026-10-16", "10:30"))
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if _, err := a.Reserve(context.Background(), draft("2026-10-13", "10:30")); err == nil {
		t.Fatal("past reservation succeeded")
	}
	if len(got) != 1 || got[0] != appt.ID {
		t.Errorf("listener saw %v, want [%d]", got, appt.ID)
	}
}

type failingStore struct {
	countErr  error
	createErr error
	creates   int
}

func (f *failingStore) CountActiveAt(ctx context.Context, date, slot string) (int, error) {
	return 0, f.countErr
}

func (f *failingStore) Create(ctx context.Context, n models.NewAppointment) (int64, error) {
	f.creates++
	return 0, f.createErr
}

func (f *failingStore) Get(ctx context.Context, id int64) (models.Appointment, error) {
	return models.Appointment{}, storage.ErrNotFound
}

func TestReserve_StoreErrors(t *testing.T) {
	ctx := context.Background()
	diskErr := &storage.PersistenceError{Op: "create", Err: errors.New("disk full")}

	t.Run("count failure aborts before create", func(t *testing.T) {
		fs := &failingStore{countErr: diskErr}
		a := New(fs, catalog.Default(), WithClock(clock))
		if _, err := a.Reserve(ctx, draft("2026-10-16", "10:30")); !storage.IsPersistence(err) {
			t.Errorf("Reserve() error = %v, want persistence error", err)
		}
		if fs.creates != 0 {
			t.Errorf("Create called %d times", fs.creates)
		}
	})

	t.Run("create failure surfaces", func(t *testing.T) {
		fs := &failingStore{createErr: diskErr}
		a := New(fs, catalog.Default(), WithClock(clock))
		if _, err := a.Reserve(ctx, draft("2026-10-16", "10:30")); !storage.IsPersistence(err) {
			t.Errorf("Reserve() error = %v, want persistence error", err)
		}
	})
}
