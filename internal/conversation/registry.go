package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/salonbot/internal/admin"
	"github.com/julianstephens/salonbot/internal/booking"
	"github.com/julianstephens/salonbot/internal/logger"
)

type Mode int

const (
	ModeMenu Mode = iota
	ModeBooking
	ModeAdmin
	ModeClientCancel
)

// Session is everything the bot remembers about one client between messages.
type Session struct {
	ID       string
	ClientID string
	Mode     Mode
	Booking  booking.Session
	Panel    admin.Panel

	// cancelTarget is the appointment awaiting the client's confirmation.
	cancelTarget int64

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) reset() {
	s.Mode = ModeMenu
	s.Booking = booking.Session{ClientID: s.ClientID}
	s.Panel = admin.Panel{Admin: s.ClientID}
	s.cancelTarget = 0
}

// Registry maps client identities to sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewRegistry creates a registry. A ttl of zero keeps sessions forever.
func NewRegistry(ttl time.Duration, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{sessions: map[string]*Session{}, ttl: ttl, now: now}
}

// Get returns the client's session, creating it on first contact.
func (r *Registry) Get(clientID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[clientID]
	if !ok {
		s = &Session{ID: uuid.NewString(), ClientID: clientID}
		s.reset()
		r.sessions[clientID] = s
		logger.Debug("Session started", "session", s.ID, "client", clientID)
	}
	s.lastSeen = r.now()
	return s
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the ttl, discarding their drafts.
// Sessions currently handling input are skipped.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	evicted := 0
	for id, s := range r.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if s.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			evicted++
			logger.Debug("Session evicted", "session", s.ID, "client", id, "mode", s.Mode, "state", s.Booking.State)
		}
		s.mu.Unlock()
	}
	return evicted
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	if r.ttl <= 0 {
		return
	}
	if every <= 0 {
		every = r.ttl / 2
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				logger.Info("Evicted idle sessions", "count", n)
			}
		}
	}
}
