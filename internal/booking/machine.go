// Package booking drives a client through the guided appointment steps:
// service, date, time, name, phone, comment, confirmation.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/salonbot/internal/allocator"
	"github.com/julianstephens/salonbot/internal/catalog"
	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/dialog"
	apperrors "github.com/julianstephens/salonbot/internal/errors"
	"github.com/julianstephens/salonbot/internal/logger"
	"github.com/julianstephens/salonbot/internal/models"
	"github.com/julianstephens/salonbot/internal/storage"
	"github.com/julianstephens/salonbot/internal/utils"
)

// Choice values shared by several steps.
const (
	ChoiceBack    = "back"
	ChoiceConfirm = "confirm"
	ChoiceCancel  = "cancel"
	ChoiceSkip    = "skip"
)

// Reserver commits a finished draft. *allocator.Allocator implements it.
type Reserver interface {
	Reserve(ctx context.Context, n models.NewAppointment) (models.Appointment, error)
}

// Outcome is the result of one input. Done means the session has left the
// booking flow and the caller should return the user to the main menu after
// showing Prompt (which may be empty).
type Outcome struct {
	Prompt      dialog.Prompt
	Done        bool
	Appointment *models.Appointment
}

type Machine struct {
	catalog  *catalog.Catalog
	reserver Reserver
	now      func() time.Time
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMachine(cat *catalog.Catalog, reserver Reserver, opts ...Option) *Machine {
	m := &Machine{catalog: cat, reserver: reserver, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin starts a fresh cycle with an empty draft.
func (m *Machine) Begin(s *Session) dialog.Prompt {
	s.State = SelectingService
	s.Draft = Draft{}
	s.committedID = 0
	return m.Prompt(s)
}

// Handle applies one input. Invalid input returns a *ValidationError together
// with the unchanged state's prompt carrying a notice line.
func (m *Machine) Handle(ctx context.Context, s *Session, in dialog.Input) (Outcome, error) {
	switch {
	case in.IsCommand(dialog.CmdCancel):
		s.State, s.Draft = Idle, Draft{}
		return Outcome{Done: true, Prompt: dialog.Prompt{Text: "Booking cancelled."}}, nil
	case in.IsCommand(dialog.CmdRestart):
		return Outcome{Prompt: m.Begin(s)}, nil
	}

	switch s.State {
	case SelectingService:
		return m.selectService(s, in)
	case SelectingDate:
		return m.selectDate(s, in)
	case SelectingTime:
		return m.selectTime(s, in)
	case EnteringName:
		return m.enterName(s, in)
	case EnteringPhone:
		return m.enterPhone(s, in)
	case EnteringComment:
		return m.enterComment(s, in)
	case Confirming:
		return m.confirm(ctx, s, in)
	default:
		return Outcome{Done: true}, invalid(s.State, "no booking in progress")
	}
}

func (m *Machine) reject(s *Session, notice string, err *ValidationError) (Outcome, error) {
	return Outcome{Prompt: m.Prompt(s).WithNotice(notice)}, err
}

func (m *Machine) advance(s *Session, next State) (Outcome, error) {
	s.State = next
	return Outcome{Prompt: m.Prompt(s)}, nil
}

// pick matches a button press, or typed text equal to a button's value or label.
func pick(p dialog.Prompt, in dialog.Input) (string, bool) {
	if in.Kind != dialog.KindChoice && in.Kind != dialog.KindText {
		return "", false
	}
	v := strings.TrimSpace(in.Value)
	for _, c := range p.Choices {
		if c.Value == v || (in.Kind == dialog.KindText && c.Label == v) {
			return c.Value, true
		}
	}
	return "", false
}

func (m *Machine) selectService(s *Session, in dialog.Input) (Outcome, error) {
	v, ok := pick(m.Prompt(s), in)
	if !ok {
		return m.reject(s, "Please choose a service from the list.", invalid(s.State, "unknown service %q", in.Value))
	}
	if v == ChoiceBack {
		s.State, s.Draft = Idle, Draft{}
		return Outcome{Done: true}, nil
	}
	s.Draft.ServiceRef = v
	return m.advance(s, SelectingDate)
}

func (m *Machine) selectDate(s *Session, in dialog.Input) (Outcome, error) {
	v, ok := pick(m.Prompt(s), in)
	if !ok {
		return m.reject(s, "Please choose one of the offered dates.", invalid(s.State, "date %q not offered", in.Value))
	}
	if v == ChoiceBack {
		return m.advance(s, SelectingService)
	}
	// The window is re-evaluated here in case the day changed since the prompt.
	if !utils.InBookingWindow(v, m.now(), constants.BookingWindowDays) {
		return m.reject(s, "That date is no longer available. Please choose another date.", invalid(s.State, "date %q outside window", v))
	}
	s.Draft.Date = v
	return m.advance(s, SelectingTime)
}

func (m *Machine) selectTime(s *Session, in dialog.Input) (Outcome, error) {
	v, ok := pick(m.Prompt(s), in)
	if !ok {
		return m.reject(s, "Please choose one of the offered times.", invalid(s.State, "time %q not offered", in.Value))
	}
	if v == ChoiceBack {
		return m.advance(s, SelectingDate)
	}
	s.Draft.Time = v
	if s.Draft.contactComplete() {
		return m.advance(s, Confirming)
	}
	return m.advance(s, EnteringName)
}

func (m *Machine) enterName(s *Session, in dialog.Input) (Outcome, error) {
	name := strings.TrimSpace(in.Value)
	if in.Kind != dialog.KindText || name == "" {
		return m.reject(s, "Name cannot be empty.", invalid(s.State, "empty name"))
	}
	s.Draft.ClientName = name
	return m.advance(s, EnteringPhone)
}

func (m *Machine) enterPhone(s *Session, in dialog.Input) (Outcome, error) {
	if (in.Kind != dialog.KindContact && in.Kind != dialog.KindText) || strings.TrimSpace(in.Value) == "" {
		return m.reject(s, "Please enter a phone number or share your contact.", invalid(s.State, "no phone"))
	}
	s.Draft.ClientPhone = in.Value
	return m.advance(s, EnteringComment)
}

func (m *Machine) enterComment(s *Session, in dialog.Input) (Outcome, error) {
	switch {
	case in.IsCommand(dialog.CmdSkip), in.Kind == dialog.KindChoice && in.Value == ChoiceSkip:
		s.Draft.Comment = constants.CommentNone
	case in.Kind == dialog.KindText && strings.TrimSpace(in.Value) != "":
		s.Draft.Comment = strings.TrimSpace(in.Value)
	default:
		return m.reject(s, "Please type a comment or send /skip.", invalid(s.State, "empty comment"))
	}
	return m.advance(s, Confirming)
}

func (m *Machine) confirm(ctx context.Context, s *Session, in dialog.Input) (Outcome, error) {
	v, ok := pick(m.Prompt(s), in)
	if !ok {
		return m.reject(s, "Please press Confirm or Cancel.", invalid(s.State, "expected confirm or cancel"))
	}
	if v == ChoiceCancel {
		s.State, s.Draft = Abandoned, Draft{}
		return Outcome{Done: true, Prompt: dialog.Prompt{Text: "Appointment cancelled."}}, nil
	}

	appt, err := m.reserver.Reserve(ctx, s.newAppointment())
	if err != nil {
		return m.reserveFailed(s, err)
	}

	s.State, s.Draft, s.committedID = Committed, Draft{}, appt.ID
	text := fmt.Sprintf("🎉 Appointment #%d created!\n\n%s", appt.ID, m.Summary(appt))
	return Outcome{Done: true, Prompt: dialog.Prompt{Text: text}, Appointment: &appt}, nil
}

func (m *Machine) reserveFailed(s *Session, err error) (Outcome, error) {
	var ce *allocator.ConflictError
	if errors.As(err, &ce) {
		var notice string
		switch {
		case errors.Is(err, allocator.ErrSlotFull):
			notice = "That time is already booked. Please choose another time."
		case errors.Is(err, allocator.ErrSlotPassed):
			notice = "That time has already passed today. Please choose a later time."
		case ce.Field == allocator.FieldDate:
			notice = "That date is no longer available. Please choose another date."
		default:
			notice = "That time is not available. Please choose another time."
		}

		if ce.Field == allocator.FieldDate {
			s.Draft.Date, s.Draft.Time = "", ""
			s.State = SelectingDate
		} else {
			s.Draft.Time = ""
			s.State = SelectingTime
		}
		return Outcome{Prompt: m.Prompt(s).WithNotice(notice)}, err
	}

	notice := apperrors.UserMessage(err)
	if storage.IsPersistence(err) {
		logger.Error("Failed to save appointment", "client", s.ClientID, "error", err)
		notice = "Your appointment was not saved. Please try again."
	}
	return Outcome{Prompt: m.Prompt(s).WithNotice(notice)}, err
}

func (s *Session) newAppointment() models.NewAppointment {
	return models.NewAppointment{
		ClientID:    s.ClientID,
		ServiceRef:  s.Draft.ServiceRef,
		Date:        s.Draft.Date,
		Time:        s.Draft.Time,
		ClientName:  s.Draft.ClientName,
		ClientPhone: s.Draft.ClientPhone,
		Comment:     s.Draft.Comment,
	}
}
