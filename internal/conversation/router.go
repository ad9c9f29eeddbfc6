// Package conversation routes client input between the main menu, the
// booking dialogue, the admin panel and client self-service.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/salonbot/internal/admin"
	"github.com/julianstephens/salonbot/internal/booking"
	"github.com/julianstephens/salonbot/internal/catalog"
	"github.com/julianstephens/salonbot/internal/dialog"
	"github.com/julianstephens/salonbot/internal/events"
	"github.com/julianstephens/salonbot/internal/logger"
	"github.com/julianstephens/salonbot/internal/models"
	"github.com/julianstephens/salonbot/internal/storage"
	"github.com/julianstephens/salonbot/internal/utils"
)

// Main menu actions. They are accepted from any mode.
const (
	MenuMain     = "menu:main"
	MenuNew      = "menu:new"
	MenuMine     = "menu:mine"
	MenuCancel   = "menu:cancel"
	MenuContacts = "menu:contacts"
	MenuAdmin    = "menu:admin"

	menuPrefix    = "menu:"
	ownPrefix     = "own:"
	ownConfirm    = "own:confirm"
	backToMenuBtn = "🔙 Back"
)

// Store is the slice of storage.Provider the router reads and writes directly.
type Store interface {
	ListByClient(ctx context.Context, clientID string) ([]models.Appointment, error)
	Get(ctx context.Context, id int64) (models.Appointment, error)
	Cancel(ctx context.Context, id int64, by models.CancelledBy) error
}

// Caller identifies who sent an input.
type Caller struct {
	ID   string
	Name string
}

type Router struct {
	catalog  *catalog.Catalog
	machine  *booking.Machine
	admin    *admin.Controller
	store    Store
	registry *Registry
	events   events.Publisher
	now      func() time.Time
}

type Option func(*Router)

func WithPublisher(p events.Publisher) Option {
	return func(r *Router) {
		if p != nil {
			r.events = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRouter(cat *catalog.Catalog, machine *booking.Machine, ctrl *admin.Controller, store Store, registry *Registry, opts ...Option) *Router {
	r := &Router{
		catalog:  cat,
		machine:  machine,
		admin:    ctrl,
		store:    store,
		registry: registry,
		events:   events.Noop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Registry() *Registry { return r.registry }

// Start returns the greeting and main menu.
func (r *Router) Start(c Caller) []dialog.Prompt {
	return r.Handle(context.Background(), c, dialog.Command(dialog.CmdStart))
}

// Handle applies one input and returns the messages to send, in order.
func (r *Router) Handle(ctx context.Context, c Caller, in dialog.Input) []dialog.Prompt {
	s := r.registry.Get(c.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case in.IsCommand(dialog.CmdStart):
		s.reset()
		return []dialog.Prompt{r.welcome(c)}
	case in.IsCommand(dialog.CmdAdmin):
		return r.openAdmin(ctx, s, c)
	case in.Kind == dialog.KindChoice && strings.HasPrefix(in.Value, menuPrefix):
		return r.menuAction(ctx, s, c, in.Value)
	}

	switch s.Mode {
	case ModeBooking:
		return r.handleBooking(ctx, s, c, in)
	case ModeAdmin:
		return r.handleAdmin(ctx, s, c, in)
	case ModeClientCancel:
		return r.handleClientCancel(ctx, s, c, in)
	default:
		return r.handleMenu(ctx, s, c, in)
	}
}

func (r *Router) welcome(c Caller) dialog.Prompt {
	greeting := "✨ Welcome! ✨"
	if name := strings.TrimSpace(c.Name); name != "" {
		greeting = fmt.Sprintf("✨ Welcome, %s! ✨", name)
	}
	p := r.menu(c)
	p.Text = greeting + "\n\n" + p.Text
	return p
}

func (r *Router) menu(c Caller) dialog.Prompt {
	choices := []dialog.Choice{
		{Label: "📅 Book an appointment", Value: MenuNew},
		{Label: "📋 My appointments", Value: MenuMine},
		{Label: "❌ Cancel an appointment", Value: MenuCancel},
		{Label: "📞 Contacts", Value: MenuContacts},
	}
	if r.admin.IsAdmin(c.ID) {
		choices = append(choices, dialog.Choice{Label: "👑 Admin panel", Value: MenuAdmin})
	}
	return dialog.Prompt{Text: "Choose an action:", Choices: choices, Columns: 1}
}

func backToMenu() []dialog.Choice {
	return []dialog.Choice{{Label: backToMenuBtn, Value: MenuMain}}
}

func (r *Router) menuAction(ctx context.Context, s *Session, c Caller, action string) []dialog.Prompt {
	if s.Mode == ModeBooking && s.Booking.State.Active() {
		logger.Debug("Booking left from menu", "session", s.ID, "client", c.ID, "state", s.Booking.State)
	}
	s.reset()

	switch action {
	case MenuNew:
		s.Mode = ModeBooking
		return []dialog.Prompt{r.machine.Begin(&s.Booking)}
	case MenuMine:
		return []dialog.Prompt{r.myAppointments(ctx, c)}
	case MenuCancel:
		return []dialog.Prompt{r.startClientCancel(ctx, s, c)}
	case MenuContacts:
		return []dialog.Prompt{{Text: r.catalog.Contacts(), Choices: backToMenu()}}
	case MenuAdmin:
		return r.openAdmin(ctx, s, c)
	default:
		return []dialog.Prompt{r.menu(c)}
	}
}

func (r *Router) handleMenu(ctx context.Context, s *Session, c Caller, in dialog.Input) []dialog.Prompt {
	if in.IsCommand(dialog.CmdRestart) {
		return r.menuAction(ctx, s, c, MenuNew)
	}
	if in.Kind == dialog.KindText {
		for _, ch := range r.menu(c).Choices {
			if strings.EqualFold(strings.TrimSpace(in.Value), ch.Label) {
				return r.menuAction(ctx, s, c, ch.Value)
			}
		}
	}
	return []dialog.Prompt{r.menu(c).WithNotice("Please choose an action from the menu.")}
}

// openAdmin shows the panel to administrators and the ordinary menu to
// everyone else.
func (r *Router) openAdmin(ctx context.Context, s *Session, c Caller) []dialog.Prompt {
	s.reset()
	p, err := r.admin.Open(ctx, &s.Panel)
	if err != nil {
		if !errors.Is(err, admin.ErrUnauthorized) {
			logger.Error("Failed to open admin panel", "admin", c.ID, "error", err)
		}
		return []dialog.Prompt{r.menu(c)}
	}
	s.Mode = ModeAdmin
	return []dialog.Prompt{p}
}

func (r *Router) handleBooking(ctx context.Context, s *Session, c Caller, in dialog.Input) []dialog.Prompt {
	out, err := r.machine.Handle(ctx, &s.Booking, in)
	if err != nil {
		var ve *booking.ValidationError
		if errors.As(err, &ve) {
			logger.Debug("Rejected booking input", "session", s.ID, "client", c.ID, "reason", ve.Reason)
		} else {
			logger.Warn("Booking not committed", "session", s.ID, "client", c.ID, "state", s.Booking.State, "error", err)
		}
	}

	var prompts []dialog.Prompt
	if out.Prompt.Body() != "" {
		prompts = append(prompts, out.Prompt)
	}
	if out.Done {
		if out.Appointment != nil {
			logger.Info("Booking committed", "session", s.ID, "client", c.ID, "appointment", out.Appointment.ID)
		}
		s.reset()
		prompts = append(prompts, r.menu(c))
	}
	return prompts
}

func (r *Router) handleAdmin(ctx context.Context, s *Session, c Caller, in dialog.Input) []dialog.Prompt {
	out, err := r.admin.HandlePanel(ctx, &s.Panel, in)
	if err != nil {
		logger.Debug("Admin panel input failed", "admin", c.ID, "error", err)
	}
	if errors.Is(err, admin.ErrUnauthorized) {
		s.reset()
		return []dialog.Prompt{r.menu(c)}
	}

	var prompts []dialog.Prompt
	if out.Prompt.Body() != "" {
		prompts = append(prompts, out.Prompt)
	}
	if out.Done {
		s.reset()
		prompts = append(prompts, r.menu(c))
	}
	return prompts
}

// activeOwn lists the caller's active appointments. Read failures degrade to
// an empty list.
func (r *Router) activeOwn(ctx context.Context, clientID string) []models.Appointment {
	list, err := r.store.ListByClient(ctx, clientID)
	if err != nil {
		logger.Error("Failed to list client appointments", "client", clientID, "error", err)
		return nil
	}
	var active []models.Appointment
	for _, a := range list {
		if a.IsActive() {
			active = append(active, a)
		}
	}
	return active
}

func (r *Router) myAppointments(ctx context.Context, c Caller) dialog.Prompt {
	list := r.activeOwn(ctx, c.ID)
	if len(list) == 0 {
		return dialog.Prompt{Text: "You have no active appointments.", Choices: backToMenu()}
	}

	var b strings.Builder
	b.WriteString("📋 Your appointments:\n")
	for _, a := range list {
		fmt.Fprintf(&b, "\n#%d %s\n📅 %s ⏰ %s\n", a.ID, r.catalog.ServiceName(a.ServiceRef), utils.DisplayDate(a.Date), a.Time)
	}
	return dialog.Prompt{Text: strings.TrimRight(b.String(), "\n"), Choices: backToMenu()}
}

func (r *Router) startClientCancel(ctx context.Context, s *Session, c Caller) dialog.Prompt {
	list := r.activeOwn(ctx, c.ID)
	if len(list) == 0 {
		return dialog.Prompt{Text: "You have no appointments to cancel.", Choices: backToMenu()}
	}
	s.Mode = ModeClientCancel
	choices := make([]dialog.Choice, 0, len(list)+1)
	for _, a := range list {
		choices = append(choices, dialog.Choice{
			Label: fmt.Sprintf("#%d %s %s", a.ID, utils.DisplayDate(a.Date), a.Time),
			Value: ownPrefix + strconv.FormatInt(a.ID, 10),
		})
	}
	return dialog.Prompt{
		Text:    "Which appointment do you want to cancel?",
		Choices: append(choices, backToMenu()...),
		Columns: 1,
	}
}

// ownActive returns the appointment only if it belongs to the caller and is
// still active. Anything else looks like a missing appointment.
func (r *Router) ownActive(ctx context.Context, clientID string, id int64) (models.Appointment, bool) {
	a, err := r.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Error("Failed to read appointment", "client", clientID, "appointment", id, "error", err)
		}
		return models.Appointment{}, false
	}
	if a.ClientID != clientID || !a.IsActive() {
		return models.Appointment{}, false
	}
	return a, true
}

func (r *Router) handleClientCancel(ctx context.Context, s *Session, c Caller, in dialog.Input) []dialog.Prompt {
	if s.cancelTarget == 0 {
		id, ok := parseOwn(in)
		if !ok {
			return []dialog.Prompt{r.startClientCancel(ctx, s, c).WithNotice("Choose an appointment from the list.")}
		}
		a, ok := r.ownActive(ctx, c.ID, id)
		if !ok {
			return []dialog.Prompt{r.startClientCancel(ctx, s, c).WithNotice(fmt.Sprintf("Appointment #%d not found.", id))}
		}
		s.cancelTarget = id
		return []dialog.Prompt{r.confirmCancelPrompt(a)}
	}

	id := s.cancelTarget
	if in.Kind != dialog.KindChoice || in.Value != ownConfirm {
		a, ok := r.ownActive(ctx, c.ID, id)
		if !ok {
			s.reset()
			return []dialog.Prompt{r.menu(c).WithNotice(fmt.Sprintf("Appointment #%d not found.", id))}
		}
		return []dialog.Prompt{r.confirmCancelPrompt(a).WithNotice("Please confirm or go back.")}
	}

	if _, ok := r.ownActive(ctx, c.ID, id); !ok {
		s.reset()
		return []dialog.Prompt{r.menu(c).WithNotice(fmt.Sprintf("Appointment #%d not found.", id))}
	}
	if err := r.store.Cancel(ctx, id, models.CancelledByClient); err != nil {
		notice := "The appointment was not cancelled. Please try again."
		switch {
		case errors.Is(err, storage.ErrAlreadyCancelled):
			notice = fmt.Sprintf("Appointment #%d is already cancelled.", id)
		case errors.Is(err, storage.ErrNotFound):
			notice = fmt.Sprintf("Appointment #%d not found.", id)
		default:
			logger.Error("Client cancellation failed", "session", s.ID, "client", c.ID, "appointment", id, "error", err)
		}
		s.reset()
		return []dialog.Prompt{r.menu(c).WithNotice(notice)}
	}

	logger.Info("Client cancelled appointment", "session", s.ID, "client", c.ID, "appointment", id)
	if a, err := r.store.Get(ctx, id); err == nil {
		if err := r.events.Publish(ctx, events.New(events.Cancelled, c.ID, a, r.now())); err != nil {
			logger.Warn("Failed to publish event", "appointment", id, "error", err)
		}
	}
	s.reset()
	return []dialog.Prompt{{Text: fmt.Sprintf("✅ Appointment #%d cancelled.", id)}, r.menu(c)}
}

func (r *Router) confirmCancelPrompt(a models.Appointment) dialog.Prompt {
	return dialog.Prompt{
		Text: fmt.Sprintf("Cancel appointment #%d?\n\n%s", a.ID, r.machine.Summary(a)),
		Choices: []dialog.Choice{
			{Label: "✅ Yes, cancel it", Value: ownConfirm},
			{Label: "🔙 No, keep it", Value: MenuMain},
		},
		Columns: 1,
	}
}

func parseOwn(in dialog.Input) (int64, bool) {
	v := strings.TrimSpace(in.Value)
	switch in.Kind {
	case dialog.KindChoice:
		if !strings.HasPrefix(v, ownPrefix) {
			return 0, false
		}
		v = strings.TrimPrefix(v, ownPrefix)
	case dialog.KindText:
		v = strings.TrimPrefix(v, "#")
	default:
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
