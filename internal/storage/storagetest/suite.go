// Package storagetest holds the behavioural checks every storage.Provider must pass.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/models"
	"github.com/julianstephens/salonbot/internal/storage"
)

// Opener returns a fresh, loaded, empty store. The test owns cleanup.
type Opener func(t *testing.T, opts ...storage.Option) storage.Provider

// Clock is a deterministic time source that advances one minute per call.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(time.Minute)
	return t
}

// Sample returns a valid appointment for client.
func Sample(client, date, slot string) models.NewAppointment {
	return models.NewAppointment{
		ClientID:    client,
		ServiceRef:  "manicure",
		Date:        date,
		Time:        slot,
		ClientName:  "Anna",
		ClientPhone: "5551234",
		Comment:     constants.CommentNone,
	}
}

func mustCreate(t *testing.T, s storage.Provider, n models.NewAppointment) int64 {
	t.Helper()
	id, err := s.Create(context.Background(), n)
	if err != nil {
		t.Fatalf("Create(%+v) failed: %v", n, err)
	}
	return id
}

// Run exercises the full Provider contract against stores produced by open.
func Run(t *testing.T, open Opener) {
	ctx := context.Background()

	t.Run("CreateThenGet", func(t *testing.T) {
		s := open(t)
		in := Sample("42", "2026-10-16", "10:30")
		id := mustCreate(t, s, in)

		got, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get(%d) failed: %v", id, err)
		}
		if got.ID != id {
			t.Errorf("ID = %d, want %d", got.ID, id)
		}
		if got.Status != models.StatusActive {
			t.Errorf("Status = %q, want active", got.Status)
		}
		if got.CreatedAt.IsZero() {
			t.Error("CreatedAt not set")
		}
		if got.CancelledAt != nil || got.CancelledBy != nil {
			t.Error("cancellation metadata set on new appointment")
		}
		if got.ClientID != in.ClientID || got.ServiceRef != in.ServiceRef || got.Date != in.Date ||
			got.Time != in.Time || got.ClientName != in.ClientName || got.ClientPhone != in.ClientPhone ||
			got.Comment != in.Comment {
			t.Errorf("Get() = %+v, fields differ from input %+v", got, in)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := open(t)
		if _, err := s.Get(ctx, 999); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Get(999) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("CreateRejectsInvalid", func(t *testing.T) {
		s := open(t)
		if _, err := s.Create(ctx, models.NewAppointment{ClientID: "1"}); err == nil {
			t.Error("Create with missing fields succeeded")
		}
	})

	t.Run("IDsAreMonotonic", func(t *testing.T) {
		s := open(t)
		var last int64
		for i := 0; i < 5; i++ {
			id := mustCreate(t, s, Sample(fmt.Sprint(i), "2026-10-16", "09:00"))
			if id <= last {
				t.Fatalf("id %d not greater than previous %d", id, last)
			}
			last = id
		}

		// Cancelled ids are never reissued.
		if err := s.Cancel(ctx, last, models.CancelledByClient); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		if id := mustCreate(t, s, Sample("x", "2026-10-16", "09:00")); id <= last {
			t.Errorf("id %d reused after cancellation of %d", id, last)
		}
	})

	t.Run("ConcurrentCreatesGetDistinctIDs", func(t *testing.T) {
		s := open(t)
		const n = 16
		ids := make(chan int64, n)
		errs := make(chan error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, err := s.Create(ctx, Sample(fmt.Sprint(i), "2026-10-17", "12:00"))
				if err != nil {
					errs <- err
					return
				}
				ids <- id
			}(i)
		}
		wg.Wait()
		close(ids)
		close(errs)

		for err := range errs {
			t.Errorf("concurrent Create failed: %v", err)
		}
		seen := map[int64]bool{}
		for id := range ids {
			if seen[id] {
				t.Errorf("id %d issued twice", id)
			}
			seen[id] = true
		}
	})

	t.Run("CancelByClient", func(t *testing.T) {
		s := open(t)
		id := mustCreate(t, s, Sample("7", "2026-10-18", "13:30"))
		before, _ := s.Get(ctx, id)

		if err := s.Cancel(ctx, id, models.CancelledByClient); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		got, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Status != models.StatusCancelled {
			t.Errorf("Status = %q, want cancelled", got.Status)
		}
		if got.CancelledBy == nil || *got.CancelledBy != models.CancelledByClient {
			t.Errorf("CancelledBy = %v, want client", got.CancelledBy)
		}
		if got.CancelledAt == nil {
			t.Fatal("CancelledAt not set")
		}

		got.Status, got.CancelledAt, got.CancelledBy = before.Status, nil, nil
		if !sameRecord(got, before) {
			t.Errorf("cancel changed other fields: got %+v, before %+v", got, before)
		}

		if err := s.Cancel(ctx, id, models.CancelledByAdmin); !errors.Is(err, storage.ErrAlreadyCancelled) {
			t.Errorf("second Cancel error = %v, want ErrAlreadyCancelled", err)
		}
		again, _ := s.Get(ctx, id)
		if again.CancelledBy == nil || *again.CancelledBy != models.CancelledByClient {
			t.Errorf("re-cancel overwrote cancelled_by: %v", again.CancelledBy)
		}

		if err := s.Cancel(ctx, 999, models.CancelledByAdmin); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Cancel(999) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("SetTimeAndComment", func(t *testing.T) {
		s := open(t)
		id := mustCreate(t, s, Sample("9", "2026-10-19", "10:30"))
		before, _ := s.Get(ctx, id)

		if err := s.SetTime(ctx, id, "14:00"); err != nil {
			t.Fatalf("SetTime failed: %v", err)
		}
		if err := s.SetComment(ctx, id, "call before"); err != nil {
			t.Fatalf("SetComment failed: %v", err)
		}

		got, _ := s.Get(ctx, id)
		if got.Time != "14:00" || got.Comment != "call before" {
			t.Errorf("Time, Comment = %q, %q", got.Time, got.Comment)
		}
		got.Time, got.Comment = before.Time, before.Comment
		if !sameRecord(got, before) {
			t.Errorf("mutations changed other fields: got %+v, before %+v", got, before)
		}

		if err := s.SetTime(ctx, 999, "14:00"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("SetTime(999) error = %v, want ErrNotFound", err)
		}
		if err := s.SetComment(ctx, 999, "x"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("SetComment(999) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ListByClient", func(t *testing.T) {
		s := open(t)
		third := mustCreate(t, s, Sample("a", "2026-10-20", "09:00"))
		first := mustCreate(t, s, Sample("a", "2026-10-15", "12:00"))
		mustCreate(t, s, Sample("b", "2026-10-14", "09:00"))
		second := mustCreate(t, s, Sample("a", "2026-10-15", "09:00"))

		got, err := s.ListByClient(ctx, "a")
		if err != nil {
			t.Fatalf("ListByClient failed: %v", err)
		}
		want := []int64{first, second, third}
		if len(got) != len(want) {
			t.Fatalf("got %d appointments, want %d", len(got), len(want))
		}
		for i, a := range got {
			if a.ClientID != "a" {
				t.Errorf("appointment %d belongs to %q", a.ID, a.ClientID)
			}
			if a.ID != want[i] {
				t.Errorf("position %d: id %d, want %d", i, a.ID, want[i])
			}
		}

		none, err := s.ListByClient(ctx, "nobody")
		if err != nil || len(none) != 0 {
			t.Errorf("ListByClient(nobody) = %v, %v", none, err)
		}
	})

	t.Run("ListRecent", func(t *testing.T) {
		clock := NewClock()
		s := open(t, storage.WithClock(clock.Now))
		var ids []int64
		for i := 0; i < constants.AdminPageSize+3; i++ {
			ids = append(ids, mustCreate(t, s, Sample(fmt.Sprint(i), "2026-10-16", "09:00")))
		}

		got, err := s.ListRecent(ctx, 0)
		if err != nil {
			t.Fatalf("ListRecent failed: %v", err)
		}
		if len(got) != constants.AdminPageSize {
			t.Fatalf("got %d, want page size %d", len(got), constants.AdminPageSize)
		}
		for i, a := range got {
			if want := ids[len(ids)-1-i]; a.ID != want {
				t.Errorf("position %d: id %d, want %d", i, a.ID, want)
			}
		}

		small, _ := s.ListRecent(ctx, 2)
		if len(small) != 2 {
			t.Errorf("ListRecent(2) returned %d", len(small))
		}
		big, _ := s.ListRecent(ctx, 1000)
		if len(big) != constants.AdminPageSize {
			t.Errorf("ListRecent(1000) returned %d, want clamp to %d", len(big), constants.AdminPageSize)
		}
	})

	t.Run("CountActiveAt", func(t *testing.T) {
		s := open(t)
		a := mustCreate(t, s, Sample("1", "2026-10-16", "15:00"))
		mustCreate(t, s, Sample("2", "2026-10-16", "15:00"))
		mustCreate(t, s, Sample("3", "2026-10-16", "16:30"))
		if err := s.Cancel(ctx, a, models.CancelledByAdmin); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}

		n, err := s.CountActiveAt(ctx, "2026-10-16", "15:00")
		if err != nil {
			t.Fatalf("CountActiveAt failed: %v", err)
		}
		if n != 1 {
			t.Errorf("CountActiveAt = %d, want 1", n)
		}
	})

	t.Run("ReadsReturnCopies", func(t *testing.T) {
		s := open(t)
		id := mustCreate(t, s, Sample("1", "2026-10-16", "18:00"))
		if err := s.Cancel(ctx, id, models.CancelledByClient); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}

		got, _ := s.Get(ctx, id)
		got.Comment = "tampered"
		*got.CancelledBy = models.CancelledByAdmin

		again, _ := s.Get(ctx, id)
		if again.Comment == "tampered" || *again.CancelledBy != models.CancelledByClient {
			t.Error("mutating a returned record changed the store")
		}
	})

	t.Run("SnapshotRestore", func(t *testing.T) {
		src := open(t)
		mustCreate(t, src, Sample("1", "2026-10-16", "09:00"))
		cancelled := mustCreate(t, src, Sample("2", "2026-10-17", "10:30"))
		if err := src.Cancel(ctx, cancelled, models.CancelledByAdmin); err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}

		dump, err := src.Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if len(dump.Appointments) != 2 {
			t.Fatalf("snapshot has %d appointments, want 2", len(dump.Appointments))
		}
		dump.NextID = 40

		dst := open(t)
		if err := dst.Restore(ctx, dump); err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
		got, err := dst.Get(ctx, cancelled)
		if err != nil {
			t.Fatalf("Get after restore failed: %v", err)
		}
		if got.Status != models.StatusCancelled || got.CancelledBy == nil || *got.CancelledBy != models.CancelledByAdmin {
			t.Errorf("restored record lost cancellation: %+v", got)
		}
		if id := mustCreate(t, dst, Sample("3", "2026-10-18", "12:00")); id != 40 {
			t.Errorf("first id after restore = %d, want 40", id)
		}

		bad := storage.Dump{Appointments: dump.Appointments, NextID: 1}
		if err := dst.Restore(ctx, bad); err == nil {
			t.Error("Restore accepted next id below existing ids")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		s := open(t)
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func sameRecord(a, b models.Appointment) bool {
	return a.ID == b.ID && a.ClientID == b.ClientID && a.ServiceRef == b.ServiceRef &&
		a.Date == b.Date && a.Time == b.Time && a.ClientName == b.ClientName &&
		a.ClientPhone == b.ClientPhone && a.Comment == b.Comment && a.Status == b.Status &&
		a.CreatedAt.Equal(b.CreatedAt)
}
