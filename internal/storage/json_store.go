package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/julianstephens/salonbot/internal/logger"
	"github.com/julianstephens/salonbot/internal/models"
)

const jsonStoreVersion = 1

// fileState is the on-disk layout:
// {"version":1,"appointments":{"1":{...}},"counters":{"next_id":2}}
type fileState struct {
	Version      int                           `json:"version"`
	Appointments map[string]models.Appointment `json:"appointments"`
	Counters     counters                      `json:"counters"`
}

type counters struct {
	NextID int64 `json:"next_id"`
}

func emptyState() *fileState {
	return &fileState{
		Version:      jsonStoreVersion,
		Appointments: make(map[string]models.Appointment),
		Counters:     counters{NextID: 1},
	}
}

// JSONStore keeps every appointment in one JSON document. All mutations
// rewrite the document through a temp file and rename.
type JSONStore struct {
	path       string
	now        func() time.Time
	serviceKey func(string) (string, bool)

	mu    sync.RWMutex
	state *fileState
}

func NewJSONStore(path string, opts ...Option) *JSONStore {
	o := BuildOptions(opts...)
	return &JSONStore{
		path:       path,
		now:        o.Now,
		serviceKey: o.ServiceKey,
	}
}

func (s *JSONStore) Init() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		return fmt.Errorf("storage already initialized at %s", s.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = emptyState()
	return Persistence("init", s.save())
}

// Load reads the document. A missing file starts an empty store; a corrupt
// one is moved aside to <path>.corrupt-<timestamp> and an empty store is used,
// with the id counter continuing past any id still legible in the bad file.
// Unversioned files in the legacy layout are converted on read.
func (s *JSONStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("Appointment file not found, starting empty", "path", s.path)
			s.state = emptyState()
			return nil
		}
		return Persistence("load", err)
	}

	st, err := decodeState(data, s.serviceKey)
	if err != nil {
		s.quarantine(err)
		s.state = emptyState()
		if next := salvageNextID(data); next > s.state.Counters.NextID {
			s.state.Counters.NextID = next
		}
		return nil
	}

	if st.Appointments == nil {
		st.Appointments = make(map[string]models.Appointment)
	}
	if st.Counters.NextID < 1 {
		st.Counters.NextID = 1
	}
	// Guard against a hand-edited counter that lags behind stored ids.
	for _, a := range st.Appointments {
		if a.ID >= st.Counters.NextID {
			st.Counters.NextID = a.ID + 1
		}
	}
	s.state = st
	return nil
}

func (s *JSONStore) quarantine(parseErr error) {
	aside := fmt.Sprintf("%s.corrupt-%s", s.path, s.now().Format("20060102-150405"))
	if err := os.Rename(s.path, aside); err != nil {
		logger.Warn("Appointment file is corrupt and could not be moved aside", "path", s.path, "error", err)
		return
	}
	logger.Warn("Appointment file is corrupt, starting empty", "path", s.path, "moved_to", aside, "error", parseErr)
}

func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return ErrNotLoaded
	}
	return nil
}

func (s *JSONStore) GetConfigPath() string {
	return s.path
}

// save must be called with mu held for writing.
func (s *JSONStore) save() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize storage: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write storage: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync storage: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace storage: %w", err)
	}
	return nil
}

func key(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (s *JSONStore) Create(ctx context.Context, n models.NewAppointment) (int64, error) {
	if err := n.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return 0, ErrNotLoaded
	}

	id := s.state.Counters.NextID
	s.state.Appointments[key(id)] = models.FromNew(id, n, s.now())
	s.state.Counters.NextID = id + 1

	if err := s.save(); err != nil {
		delete(s.state.Appointments, key(id))
		s.state.Counters.NextID = id
		return 0, Persistence("create", err)
	}
	return id, nil
}

func (s *JSONStore) Get(ctx context.Context, id int64) (models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return models.Appointment{}, ErrNotLoaded
	}

	a, ok := s.state.Appointments[key(id)]
	if !ok {
		return models.Appointment{}, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *JSONStore) ListByClient(ctx context.Context, clientID string) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, ErrNotLoaded
	}

	var out []models.Appointment
	for _, a := range s.state.Appointments {
		if a.ClientID == clientID {
			out = append(out, a.Clone())
		}
	}
	SortByClientOrder(out)
	return out, nil
}

func (s *JSONStore) ListRecent(ctx context.Context, limit int) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, ErrNotLoaded
	}

	out := make([]models.Appointment, 0, len(s.state.Appointments))
	for _, a := range s.state.Appointments {
		out = append(out, a.Clone())
	}
	SortByRecent(out)
	if limit = ClampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *JSONStore) CountActiveAt(ctx context.Context, date, slot string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return 0, ErrNotLoaded
	}

	count := 0
	for _, a := range s.state.Appointments {
		if a.IsActive() && a.Date == date && a.Time == slot {
			count++
		}
	}
	return count, nil
}

// mutate applies fn to a copy of the record and persists it, keeping the
// previous version in memory if the write fails.
func (s *JSONStore) mutate(op string, id int64, fn func(a *models.Appointment) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return ErrNotLoaded
	}

	prev, ok := s.state.Appointments[key(id)]
	if !ok {
		return ErrNotFound
	}
	next := prev.Clone()
	if err := fn(&next); err != nil {
		return err
	}

	s.state.Appointments[key(id)] = next
	if err := s.save(); err != nil {
		s.state.Appointments[key(id)] = prev
		return Persistence(op, err)
	}
	return nil
}

func (s *JSONStore) SetTime(ctx context.Context, id int64, slot string) error {
	return s.mutate("set time", id, func(a *models.Appointment) error {
		a.Time = slot
		return nil
	})
}

func (s *JSONStore) SetComment(ctx context.Context, id int64, comment string) error {
	return s.mutate("set comment", id, func(a *models.Appointment) error {
		a.Comment = comment
		return nil
	})
}

func (s *JSONStore) Cancel(ctx context.Context, id int64, by models.CancelledBy) error {
	if !by.Valid() {
		return fmt.Errorf("invalid cancellation source %q", by)
	}
	return s.mutate("cancel", id, func(a *models.Appointment) error {
		if !a.IsActive() {
			return ErrAlreadyCancelled
		}
		a.MarkCancelled(by, s.now())
		return nil
	})
}

func (s *JSONStore) Snapshot(ctx context.Context) (Dump, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return Dump{}, ErrNotLoaded
	}

	d := Dump{NextID: s.state.Counters.NextID}
	for _, a := range s.state.Appointments {
		d.Appointments = append(d.Appointments, a.Clone())
	}
	SortByID(d.Appointments)
	return d, nil
}

// Restore replaces the store contents with d.
func (s *JSONStore) Restore(ctx context.Context, d Dump) error {
	if err := d.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return ErrNotLoaded
	}

	next := emptyState()
	for _, a := range d.Appointments {
		next.Appointments[key(a.ID)] = a.Clone()
	}
	next.Counters.NextID = d.NextID

	prev := s.state
	s.state = next
	if err := s.save(); err != nil {
		s.state = prev
		return Persistence("restore", err)
	}
	return nil
}
