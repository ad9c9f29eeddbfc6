package conversation

import (
	"testing"
	"time"

	"github.com/julianstephens/salonbot/internal/booking"
)

func TestRegistry_GetReturnsSameSession(t *testing.T) {
	r := NewRegistry(0, nil)
	a := r.Get("1")
	b := r.Get("1")
	if a != b {
		t.Fatal("Get returned different sessions for the same client")
	}
	if a.ID == "" || a.Booking.ClientID != "1" || a.Panel.Admin != "1" {
		t.Errorf("session = %+v", a)
	}
	if r.Get("2") == a {
		t.Error("clients share a session")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d", r.Len())
	}
}

func TestRegistry_Sweep(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(10*time.Minute, func() time.Time { return now })

	idle := r.Get("idle")
	idle.Booking.State = booking.EnteringName
	idle.Booking.Draft.ServiceRef = "brows"

	now = now.Add(9 * time.Minute)
	r.Get("fresh")
	busy := r.Get("busy")

	now = now.Add(20 * time.Minute)
	busy.mu.Lock()
	evicted := r.Sweep()
	busy.mu.Unlock()

	if evicted != 2 {
		t.Errorf("evicted = %d, want 2", evicted)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1 (busy session kept)", r.Len())
	}
	if s := r.Get("idle"); s == idle || s.Booking.Draft.ServiceRef != "" {
		t.Error("evicted session kept its draft")
	}
}

func TestRegistry_NoTTL(t *testing.T) {
	r := NewRegistry(0, nil)
	r.Get("1")
	if r.Sweep() != 0 || r.Len() != 1 {
		t.Error("sweep without ttl evicted sessions")
	}
}
