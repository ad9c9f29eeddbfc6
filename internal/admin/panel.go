package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/dialog"
	"github.com/julianstephens/salonbot/internal/logger"
	"github.com/julianstephens/salonbot/internal/models"
	"github.com/julianstephens/salonbot/internal/storage"
	"github.com/julianstephens/salonbot/internal/utils"
)

type Step int

const (
	StepList Step = iota
	StepActions
	StepReschedule
	StepComment
)

// Panel is one administrator's position in the panel dialogue.
type Panel struct {
	Admin    string
	Step     Step
	Selected int64
}

// Outcome mirrors booking.Outcome: Done hands control back to the main menu.
type Outcome struct {
	Prompt dialog.Prompt
	Done   bool
}

const (
	ChoiceClose      = "close"
	ChoiceBack       = "back"
	ActionReschedule = "reschedule"
	ActionComment    = "comment"
	ActionCancel     = "cancel"

	selectPrefix = "appt:"
)

// Open authorizes the caller and shows the recent appointments.
func (c *Controller) Open(ctx context.Context, p *Panel) (dialog.Prompt, error) {
	if err := c.Authorize(p.Admin); err != nil {
		return dialog.Prompt{}, err
	}
	p.Step, p.Selected = StepList, 0
	return c.listPrompt(ctx), nil
}

// HandlePanel applies one input to the panel dialogue.
func (c *Controller) HandlePanel(ctx context.Context, p *Panel, in dialog.Input) (Outcome, error) {
	if err := c.Authorize(p.Admin); err != nil {
		return Outcome{Done: true}, err
	}
	// Commands never mutate: /cancel and /restart leave the panel.
	if in.IsCommand(dialog.CmdCancel) || in.IsCommand(dialog.CmdRestart) {
		p.Step, p.Selected = StepList, 0
		return Outcome{Done: true, Prompt: dialog.Prompt{Text: "Admin panel closed."}}, nil
	}

	switch p.Step {
	case StepActions:
		return c.handleAction(ctx, p, in)
	case StepReschedule, StepComment:
		return c.handleValue(ctx, p, in)
	default:
		return c.handleList(ctx, p, in)
	}
}

func (c *Controller) handleList(ctx context.Context, p *Panel, in dialog.Input) (Outcome, error) {
	if in.Value == ChoiceClose || in.Value == ChoiceBack {
		return Outcome{Done: true}, nil
	}
	id, ok := parseSelection(in)
	if !ok {
		return Outcome{Prompt: c.listPrompt(ctx).WithNotice("Choose an appointment from the list.")}, nil
	}

	appt, err := c.store.Get(ctx, id)
	if err != nil {
		return c.backToList(ctx, p, c.failureNotice(id, err)), err
	}
	p.Step, p.Selected = StepActions, id
	return Outcome{Prompt: c.actionsPrompt(appt)}, nil
}

func (c *Controller) handleAction(ctx context.Context, p *Panel, in dialog.Input) (Outcome, error) {
	action := ""
	if in.Kind == dialog.KindChoice {
		action = in.Value
	}
	switch action {
	case ChoiceBack:
		return c.backToList(ctx, p, ""), nil
	case ActionReschedule:
		p.Step = StepReschedule
		return Outcome{Prompt: c.valuePrompt(p)}, nil
	case ActionComment:
		p.Step = StepComment
		return Outcome{Prompt: c.valuePrompt(p)}, nil
	case ActionCancel:
		id := p.Selected
		if _, err := c.Cancel(ctx, p.Admin, id); err != nil {
			return c.afterFailure(ctx, p, id, err)
		}
		return c.backToList(ctx, p, fmt.Sprintf("❌ Appointment #%d cancelled.", id)), nil
	}

	appt, err := c.store.Get(ctx, p.Selected)
	if err != nil {
		return c.backToList(ctx, p, c.failureNotice(p.Selected, err)), err
	}
	return Outcome{Prompt: c.actionsPrompt(appt).WithNotice("Choose an action.")}, nil
}

func (c *Controller) handleValue(ctx context.Context, p *Panel, in dialog.Input) (Outcome, error) {
	if in.Kind == dialog.KindChoice && in.Value == ChoiceBack {
		appt, err := c.store.Get(ctx, p.Selected)
		if err != nil {
			return c.backToList(ctx, p, c.failureNotice(p.Selected, err)), err
		}
		p.Step = StepActions
		return Outcome{Prompt: c.actionsPrompt(appt)}, nil
	}
	if in.Kind != dialog.KindText {
		return Outcome{Prompt: c.valuePrompt(p).WithNotice("Please type the new value.")}, nil
	}

	id := p.Selected
	var (
		appt   models.Appointment
		err    error
		result string
	)
	if p.Step == StepReschedule {
		appt, err = c.Reschedule(ctx, p.Admin, id, in.Value)
		result = fmt.Sprintf("✅ Appointment #%d moved to %s.", id, appt.Time)
	} else {
		appt, err = c.EditComment(ctx, p.Admin, id, in.Value)
		result = fmt.Sprintf("✅ Comment for appointment #%d updated.", id)
	}
	if err != nil {
		return c.afterFailure(ctx, p, id, err)
	}
	return c.backToList(ctx, p, result), nil
}

// afterFailure keeps the admin on the current step when a retry makes sense
// and returns to the list otherwise.
func (c *Controller) afterFailure(ctx context.Context, p *Panel, id int64, err error) (Outcome, error) {
	notice := c.failureNotice(id, err)
	switch {
	case errors.Is(err, ErrEmptyValue):
		return Outcome{Prompt: c.valuePrompt(p).WithNotice(notice)}, err
	case storage.IsPersistence(err):
		logger.Error("Admin change was not saved", "admin", p.Admin, "appointment", id, "error", err)
		if p.Step == StepActions {
			if appt, gerr := c.store.Get(ctx, id); gerr == nil {
				return Outcome{Prompt: c.actionsPrompt(appt).WithNotice(notice)}, err
			}
		} else {
			return Outcome{Prompt: c.valuePrompt(p).WithNotice(notice)}, err
		}
	}
	return c.backToList(ctx, p, notice), err
}

func (c *Controller) failureNotice(id int64, err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Sprintf("Appointment #%d not found.", id)
	case errors.Is(err, storage.ErrAlreadyCancelled):
		return fmt.Sprintf("Appointment #%d is already cancelled.", id)
	case errors.Is(err, ErrEmptyValue):
		return "The value cannot be empty."
	case storage.IsPersistence(err):
		return "The change was not saved. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

func (c *Controller) backToList(ctx context.Context, p *Panel, notice string) Outcome {
	p.Step, p.Selected = StepList, 0
	return Outcome{Prompt: c.listPrompt(ctx).WithNotice(notice)}
}

func (c *Controller) listPrompt(ctx context.Context) dialog.Prompt {
	closeChoice := dialog.Choice{Label: "🔙 Back", Value: ChoiceClose}

	list, err := c.store.ListRecent(ctx, constants.AdminPageSize)
	if err != nil {
		logger.Error("Failed to list appointments", "error", err)
		return dialog.Prompt{
			Text:    "👑 Admin panel\n\nAppointments could not be loaded right now.",
			Choices: []dialog.Choice{closeChoice},
		}
	}
	if len(list) == 0 {
		return dialog.Prompt{
			Text:    "👑 Admin panel\n\nNo appointments yet.",
			Choices: []dialog.Choice{closeChoice},
		}
	}

	choices := make([]dialog.Choice, 0, len(list)+1)
	for _, a := range list {
		label := fmt.Sprintf("#%d %s %s", a.ID, a.Date, a.Time)
		if !a.IsActive() {
			label += " ❌"
		}
		choices = append(choices, dialog.Choice{Label: label, Value: selectPrefix + strconv.FormatInt(a.ID, 10)})
	}
	return dialog.Prompt{
		Text:    "👑 Admin panel\n\nRecent appointments:",
		Choices: append(choices, closeChoice),
		Columns: 1,
	}
}

func (c *Controller) actionsPrompt(a models.Appointment) dialog.Prompt {
	return dialog.Prompt{
		Text: c.Describe(a),
		Choices: []dialog.Choice{
			{Label: "⏰ Reschedule", Value: ActionReschedule},
			{Label: "💬 Edit comment", Value: ActionComment},
			{Label: "❌ Cancel appointment", Value: ActionCancel},
			{Label: "🔙 Back", Value: ChoiceBack},
		},
		Columns: 1,
	}
}

func (c *Controller) valuePrompt(p *Panel) dialog.Prompt {
	text := fmt.Sprintf("Enter the new comment for appointment #%d:", p.Selected)
	if p.Step == StepReschedule {
		text = fmt.Sprintf("Enter the new time for appointment #%d (for example 14:00):", p.Selected)
	}
	return dialog.Prompt{
		Text:    text,
		Choices: []dialog.Choice{{Label: "🔙 Back", Value: ChoiceBack}},
	}
}

// Describe renders every stored field of a.
func (c *Controller) Describe(a models.Appointment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Appointment #%d (%s)\n\n", a.ID, a.Status)
	fmt.Fprintf(&b, "Service: %s\n", c.catalog.ServiceName(a.ServiceRef))
	fmt.Fprintf(&b, "Date: %s\n", utils.DisplayDate(a.Date))
	fmt.Fprintf(&b, "Time: %s\n", a.Time)
	fmt.Fprintf(&b, "Name: %s\n", a.ClientName)
	fmt.Fprintf(&b, "Phone: %s\n", a.ClientPhone)
	fmt.Fprintf(&b, "Comment: %s\n", a.Comment)
	fmt.Fprintf(&b, "Client id: %s", a.ClientID)
	if a.CancelledBy != nil {
		fmt.Fprintf(&b, "\nCancelled by: %s", *a.CancelledBy)
	}
	return b.String()
}

// parseSelection accepts a list button or a typed "#7" / "7".
func parseSelection(in dialog.Input) (int64, bool) {
	v := strings.TrimSpace(in.Value)
	switch in.Kind {
	case dialog.KindChoice:
		if !strings.HasPrefix(v, selectPrefix) {
			return 0, false
		}
		v = strings.TrimPrefix(v, selectPrefix)
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
