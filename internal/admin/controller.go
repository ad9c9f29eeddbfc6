// Package admin implements the administrator operations on stored appointments
// and the short panel dialogue that drives them.
package admin

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/julianstephens/salonbot/internal/catalog"
	"github.com/julianstephens/salonbot/internal/events"
	"github.com/julianstephens/salonbot/internal/logger"
	"github.com/julianstephens/salonbot/internal/models"
)

var (
	ErrUnauthorized = errors.New("caller is not an administrator")
	ErrEmptyValue   = errors.New("value cannot be empty")
)

// Store is the slice of storage.Provider the controller needs.
type Store interface {
	Get(ctx context.Context, id int64) (models.Appointment, error)
	ListRecent(ctx context.Context, limit int) ([]models.Appointment, error)
	SetTime(ctx context.Context, id int64, slot string) error
	SetComment(ctx context.Context, id int64, comment string) error
	Cancel(ctx context.Context, id int64, by models.CancelledBy) error
}

type Controller struct {
	store   Store
	catalog *catalog.Catalog
	admins  map[string]struct{}
	events  events.Publisher
	now     func() time.Time
}

type Option func(*Controller)

func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) {
		if p != nil {
			c.events = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func NewController(store Store, cat *catalog.Catalog, admins []string, opts ...Option) *Controller {
	c := &Controller{
		store:   store,
		catalog: cat,
		admins:  make(map[string]struct{}, len(admins)),
		events:  events.Noop{},
		now:     time.Now,
	}
	for _, id := range admins {
		if id = strings.TrimSpace(id); id != "" {
			c.admins[id] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) IsAdmin(caller string) bool {
	_, ok := c.admins[caller]
	return ok
}

// Authorize returns ErrUnauthorized unless caller is in the administrator set.
func (c *Controller) Authorize(caller string) error {
	if !c.IsAdmin(caller) {
		return ErrUnauthorized
	}
	return nil
}

// Admins returns the configured administrator ids.
func (c *Controller) Admins() []string {
	out := make([]string, 0, len(c.admins))
	for id := range c.admins {
		out = append(out, id)
	}
	return out
}

func (c *Controller) ListRecent(ctx context.Context, caller string, limit int) ([]models.Appointment, error) {
	if err := c.Authorize(caller); err != nil {
		return nil, err
	}
	return c.store.ListRecent(ctx, limit)
}

func (c *Controller) Get(ctx context.Context, caller string, id int64) (models.Appointment, error) {
	if err := c.Authorize(caller); err != nil {
		return models.Appointment{}, err
	}
	return c.store.Get(ctx, id)
}

// Reschedule replaces the time label. The value is stored as typed; only
// emptiness is rejected.
func (c *Controller) Reschedule(ctx context.Context, caller string, id int64, slot string) (models.Appointment, error) {
	slot = strings.TrimSpace(slot)
	return c.mutate(ctx, caller, id, events.Rescheduled, func() error {
		if slot == "" {
			return ErrEmptyValue
		}
		return c.store.SetTime(ctx, id, slot)
	})
}

func (c *Controller) EditComment(ctx context.Context, caller string, id int64, comment string) (models.Appointment, error) {
	comment = strings.TrimSpace(comment)
	return c.mutate(ctx, caller, id, events.Commented, func() error {
		if comment == "" {
			return ErrEmptyValue
		}
		return c.store.SetComment(ctx, id, comment)
	})
}

func (c *Controller) Cancel(ctx context.Context, caller string, id int64) (models.Appointment, error) {
	return c.mutate(ctx, caller, id, events.Cancelled, func() error {
		return c.store.Cancel(ctx, id, models.CancelledByAdmin)
	})
}

func (c *Controller) mutate(ctx context.Context, caller string, id int64, kind events.Type, apply func() error) (models.Appointment, error) {
	if err := c.Authorize(caller); err != nil {
		logger.Warn("Rejected admin operation", "admin", caller, "appointment", id, "op", kind)
		return models.Appointment{}, err
	}
	if err := apply(); err != nil {
		return models.Appointment{}, err
	}

	appt, err := c.store.Get(ctx, id)
	if err != nil {
		return models.Appointment{}, err
	}

	logger.Info("Admin updated appointment", "admin", caller, "appointment", id, "op", kind)
	if err := c.events.Publish(ctx, events.New(kind, caller, appt, c.now())); err != nil {
		logger.Warn("Failed to publish event", "appointment", id, "op", kind, "error", err)
	}
	return appt, nil
}
