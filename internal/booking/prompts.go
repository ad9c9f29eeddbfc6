package booking

import (
	"fmt"
	"strings"

	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/dialog"
	"github.com/julianstephens/salonbot/internal/models"
	"github.com/julianstephens/salonbot/internal/utils"
)

var backChoice = dialog.Choice{Label: "🔙 Back", Value: ChoiceBack}

// Prompt renders the question for the session's current state.
func (m *Machine) Prompt(s *Session) dialog.Prompt {
	switch s.State {
	case SelectingService:
		var choices []dialog.Choice
		for _, svc := range m.catalog.Services() {
			choices = append(choices, dialog.Choice{Label: svc.Name, Value: svc.Key})
		}
		return dialog.Prompt{
			Text:    "🎨 Choose a service:",
			Choices: append(choices, backChoice),
			Columns: 2,
		}
	case SelectingDate:
		var choices []dialog.Choice
		for _, d := range utils.BookingWindow(m.now(), constants.BookingWindowDays) {
			choices = append(choices, dialog.Choice{
				Label: d.Format(constants.DisplayDateFormat),
				Value: d.Format(constants.DateFormat),
			})
		}
		return dialog.Prompt{
			Text:    m.serviceHeader(s.Draft.ServiceRef) + "📅 Choose a date:",
			Choices: append(choices, backChoice),
			Columns: 1,
		}
	case SelectingTime:
		var choices []dialog.Choice
		for _, slot := range m.catalog.Slots() {
			choices = append(choices, dialog.Choice{Label: slot, Value: slot})
		}
		return dialog.Prompt{
			Text:    fmt.Sprintf("📅 %s\n⏰ Choose a time:", utils.DisplayDate(s.Draft.Date)),
			Choices: append(choices, backChoice),
			Columns: 4,
		}
	case EnteringName:
		return dialog.Prompt{Text: "📝 Enter your name:"}
	case EnteringPhone:
		return dialog.Prompt{
			Text:           "📞 Enter your phone number or press the button to share your contact:",
			RequestContact: true,
		}
	case EnteringComment:
		return dialog.Prompt{
			Text:    "💬 Add a comment for the master, or send /skip:",
			Choices: []dialog.Choice{{Label: "⏭ Skip", Value: ChoiceSkip}},
		}
	case Confirming:
		return dialog.Prompt{
			Text: "✅ Please check your booking:\n\n" + m.draftSummary(s.Draft),
			Choices: []dialog.Choice{
				{Label: "✅ Confirm", Value: ChoiceConfirm},
				{Label: "❌ Cancel", Value: ChoiceCancel},
			},
			Columns: 1,
		}
	default:
		return dialog.Prompt{}
	}
}

func (m *Machine) serviceHeader(key string) string {
	svc, ok := m.catalog.Lookup(key)
	if !ok {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", svc.Name)
	if svc.Description != "" {
		fmt.Fprintf(&b, "%s\n", svc.Description)
	}
	fmt.Fprintf(&b, "💰 %s  ⏱ %s\n\n", svc.Price, svc.Duration)
	return b.String()
}

func (m *Machine) draftSummary(d Draft) string {
	return m.summary(d.ServiceRef, d.Date, d.Time, d.ClientName, d.ClientPhone, d.Comment)
}

// Summary describes a stored appointment in the same layout as the confirmation step.
func (m *Machine) Summary(a models.Appointment) string {
	return m.summary(a.ServiceRef, a.Date, a.Time, a.ClientName, a.ClientPhone, a.Comment)
}

func (m *Machine) summary(service, date, slot, name, phone, comment string) string {
	return fmt.Sprintf("Service: %s\nDate: %s\nTime: %s\nName: %s\nPhone: %s\nComment: %s",
		m.catalog.ServiceName(service), utils.DisplayDate(date), slot, name, phone, comment)
}
