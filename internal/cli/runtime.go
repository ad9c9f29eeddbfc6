package cli

import (
	"context"
	"time"

	"github.com/julianstephens/salonbot/internal/admin"
	"github.com/julianstephens/salonbot/internal/allocator"
	"github.com/julianstephens/salonbot/internal/booking"
	"github.com/julianstephens/salonbot/internal/catalog"
	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/conversation"
	"github.com/julianstephens/salonbot/internal/events"
	"github.com/julianstephens/salonbot/internal/logger"
	"github.com/julianstephens/salonbot/internal/models"
)

// Runtime is the wired conversation core shared by every transport.
type Runtime struct {
	Catalog    *catalog.Catalog
	Allocator  *allocator.Allocator
	Controller *admin.Controller
	Router     *conversation.Router
	Registry   *conversation.Registry
}

type RuntimeOptions struct {
	Publisher  events.Publisher
	Listeners  []allocator.Listener
	SessionTTL time.Duration
	// PublishTimeout bounds each event publish; zero means
	// constants.NotifyTimeout.
	PublishTimeout time.Duration
}

// NewRuntime wires the catalog, allocator, booking machine, admin controller
// and router over the loaded store.
func (c *Context) NewRuntime(opts RuntimeOptions) (*Runtime, error) {
	cat, err := c.Catalog()
	if err != nil {
		return nil, err
	}
	pub := opts.Publisher
	if pub == nil {
		pub = events.Noop{}
	}
	timeout := opts.PublishTimeout
	if timeout <= 0 {
		timeout = constants.NotifyTimeout
	}
	pub = events.WithTimeout(pub, timeout)
	now := c.Now
	if now == nil {
		now = time.Now
	}

	allocOpts := []allocator.Option{
		allocator.WithCapacity(c.Config.SlotCapacity),
		allocator.WithClock(now),
		allocator.WithListener(publishCreated(pub, now)),
	}
	for _, l := range opts.Listeners {
		allocOpts = append(allocOpts, allocator.WithListener(l))
	}
	alloc := allocator.New(c.Store, cat, allocOpts...)

	machine := booking.NewMachine(cat, alloc, booking.WithClock(now))
	ctrl := admin.NewController(c.Store, cat, c.Config.Admins(), admin.WithPublisher(pub), admin.WithClock(now))
	registry := conversation.NewRegistry(opts.SessionTTL, now)
	router := conversation.NewRouter(cat, machine, ctrl, c.Store, registry,
		conversation.WithPublisher(pub), conversation.WithClock(now))

	return &Runtime{
		Catalog:    cat,
		Allocator:  alloc,
		Controller: ctrl,
		Router:     router,
		Registry:   registry,
	}, nil
}

// publishCreated emits appointment.created for every committed booking.
func publishCreated(pub events.Publisher, now func() time.Time) allocator.Listener {
	return allocator.ListenerFunc(func(ctx context.Context, a models.Appointment) {
		if err := pub.Publish(ctx, events.New(events.Created, a.ClientID, a, now())); err != nil {
			logger.Warn("Failed to publish appointment event", "appointment", a.ID, "error", err)
		}
	})
}
