// Package allocator decides whether a drafted (date, time) may be committed
// and performs the commit.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/julianstephens/salonbot/internal/catalog"
	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/logger"
	"github.com/julianstephens/salonbot/internal/models"
	"github.com/julianstephens/salonbot/internal/utils"
)

var (
	ErrUnknownSlot = errors.New("time is not one of the offered slots")
	ErrInvalidDate = errors.New("date is not a valid calendar date")
	ErrPastDate    = errors.New("date is in the past")
	ErrSlotPassed  = errors.New("slot has already started today")
	ErrSlotFull    = errors.New("slot is fully booked")
)

// Field names the draft field a conflict sends the user back to.
type Field string

const (
	FieldDate Field = "date"
	FieldTime Field = "time"
)

// ConflictError rejects a reservation; Field says which step must be redone.
type ConflictError struct {
	Field Field
	Err   error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %v", e.Field, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Store is the slice of storage.Provider the allocator needs.
type Store interface {
	CountActiveAt(ctx context.Context, date, slot string) (int, error)
	Create(ctx context.Context, n models.NewAppointment) (int64, error)
	Get(ctx context.Context, id int64) (models.Appointment, error)
}

// Listener is told about every committed appointment.
type Listener interface {
	AppointmentCreated(ctx context.Context, a models.Appointment)
}

type ListenerFunc func(ctx context.Context, a models.Appointment)

func (f ListenerFunc) AppointmentCreated(ctx context.Context, a models.Appointment) { f(ctx, a) }

type Allocator struct {
	store     Store
	catalog   *catalog.Catalog
	capacity  int
	now       func() time.Time
	listeners []Listener

	// mu covers the capacity check and the create as one step.
	mu sync.Mutex
}

type Option func(*Allocator)

// WithCapacity sets how many active appointments one (date, time) may hold.
// Zero means unlimited.
func WithCapacity(n int) Option {
	return func(a *Allocator) {
		if n >= 0 {
			a.capacity = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Allocator) {
		if now != nil {
			a.now = now
		}
	}
}

func WithListener(l Listener) Option {
	return func(a *Allocator) {
		if l != nil {
			a.listeners = append(a.listeners, l)
		}
	}
}

func New(store Store, cat *catalog.Catalog, opts ...Option) *Allocator {
	a := &Allocator{
		store:    store,
		catalog:  cat,
		capacity: constants.DefaultSlotCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Allocator) Capacity() int {
	return a.capacity
}

// checkCalendar applies the rules that need no store access.
func (a *Allocator) checkCalendar(date, slot string, now time.Time) error {
	if !a.catalog.HasSlot(slot) {
		return &ConflictError{Field: FieldTime, Err: ErrUnknownSlot}
	}
	day, err := utils.ParseDateInLocation(date, now.Location())
	if err != nil {
		return &ConflictError{Field: FieldDate, Err: ErrInvalidDate}
	}
	today := utils.StartOfDay(now)
	if day.Before(today) {
		return &ConflictError{Field: FieldDate, Err: ErrPastDate}
	}
	if day.Equal(today) {
		start, err := a.catalog.SlotStart(day, slot)
		if err != nil {
			return &ConflictError{Field: FieldTime, Err: ErrUnknownSlot}
		}
		if !start.After(now) {
			return &ConflictError{Field: FieldTime, Err: ErrSlotPassed}
		}
	}
	return nil
}

// Check reports whether (date, slot) could be reserved right now.
func (a *Allocator) Check(ctx context.Context, date, slot string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.check(ctx, date, slot)
}

func (a *Allocator) check(ctx context.Context, date, slot string) error {
	if err := a.checkCalendar(date, slot, a.now()); err != nil {
		return err
	}
	if a.capacity == 0 {
		return nil
	}
	taken, err := a.store.CountActiveAt(ctx, date, slot)
	if err != nil {
		return err
	}
	if taken >= a.capacity {
		return &ConflictError{Field: FieldTime, Err: ErrSlotFull}
	}
	return nil
}

// Reserve validates n against the slot policy and persists it.
func (a *Allocator) Reserve(ctx context.Context, n models.NewAppointment) (models.Appointment, error) {
	appt, err := a.reserve(ctx, n)
	if err != nil {
		return models.Appointment{}, err
	}

	logger.Info("Appointment created", "appointment", appt.ID, "client", appt.ClientID, "date", appt.Date, "time", appt.Time)
	for _, l := range a.listeners {
		l.AppointmentCreated(ctx, appt)
	}
	return appt, nil
}

func (a *Allocator) reserve(ctx context.Context, n models.NewAppointment) (models.Appointment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.check(ctx, n.Date, n.Time); err != nil {
		return models.Appointment{}, err
	}

	id, err := a.store.Create(ctx, n)
	if err != nil {
		return models.Appointment{}, err
	}

	appt, err := a.store.Get(ctx, id)
	if err != nil {
		logger.Warn("Created appointment could not be read back", "appointment", id, "error", err)
		return models.FromNew(id, n, a.now()), nil
	}
	return appt, nil
}
