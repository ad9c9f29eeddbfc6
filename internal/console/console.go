// Package console is a terminal transport for the conversation router. It
// lets an operator walk the same dialogues a Telegram client sees.
package console

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/salonbot/internal/conversation"
	"github.com/julianstephens/salonbot/internal/dialog"
	"github.com/julianstephens/salonbot/internal/logger"
)

// typeReply is the extra select option that switches to free text.
const typeReply = "\x00type"

// maxTranscript bounds how many rendered messages stay on screen.
const maxTranscript = 12

type Router interface {
	Start(c conversation.Caller) []dialog.Prompt
	Handle(ctx context.Context, c conversation.Caller, in dialog.Input) []dialog.Prompt
}

type Model struct {
	ctx    context.Context
	router Router
	caller conversation.Caller

	keys KeyMap
	help help.Model

	transcript []string
	prompt     dialog.Prompt
	form       *huh.Form
	choice     string
	text       string
	typing     bool
	quitting   bool
}

func NewModel(ctx context.Context, router Router, caller conversation.Caller) *Model {
	m := &Model{
		ctx:    ctx,
		router: router,
		caller: caller,
		keys:   DefaultKeyMap(),
		help:   help.New(),
	}
	m.show(router.Start(caller))
	return m
}

// Run blocks until the operator quits.
func Run(ctx context.Context, router Router, caller conversation.Caller) error {
	logger.Info("Console session started", "client", caller.ID)
	_, err := tea.NewProgram(NewModel(ctx, router, caller), tea.WithContext(ctx)).Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return m.form.Init()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Cancel):
			return m, m.submit(dialog.Command(dialog.CmdCancel), "/cancel")
		case key.Matches(msg, m.keys.Restart):
			return m, m.submit(dialog.Command(dialog.CmdStart), "/start")
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		if !m.typing && m.choice == typeReply {
			m.typing = true
			m.form = m.buildForm()
			return m, m.form.Init()
		}
		in, echo := m.input()
		return m, m.submit(in, echo)
	case huh.StateAborted:
		m.quitting = true
		return m, tea.Quit
	}
	return m, cmd
}

// input converts the completed form into a dialogue input and the text to
// echo in the transcript.
func (m *Model) input() (dialog.Input, string) {
	if !m.typing && len(m.prompt.Choices) > 0 {
		for _, c := range m.prompt.Choices {
			if c.Value == m.choice {
				return dialog.Choose(c.Value), c.Label
			}
		}
		return dialog.Choose(m.choice), m.choice
	}

	in := dialog.ParseText(m.text)
	if m.prompt.RequestContact && in.Kind == dialog.KindText {
		in = dialog.Contact(strings.TrimSpace(m.text))
	}
	return in, m.text
}

func (m *Model) submit(in dialog.Input, echo string) tea.Cmd {
	m.transcript = append(m.transcript, userStyle.Render("› "+echo))
	m.show(m.router.Handle(m.ctx, m.caller, in))
	return m.form.Init()
}

func (m *Model) show(prompts []dialog.Prompt) {
	for _, p := range prompts {
		m.transcript = append(m.transcript, renderPrompt(p))
		m.prompt = p
	}
	if len(m.transcript) > maxTranscript {
		m.transcript = m.transcript[len(m.transcript)-maxTranscript:]
	}
	m.typing = false
	m.choice = ""
	m.text = ""
	m.form = m.buildForm()
}

func (m *Model) buildForm() *huh.Form {
	var field huh.Field
	if len(m.prompt.Choices) > 0 && !m.typing {
		opts := make([]huh.Option[string], 0, len(m.prompt.Choices)+1)
		for _, c := range m.prompt.Choices {
			opts = append(opts, huh.NewOption(c.Label, c.Value))
		}
		opts = append(opts, huh.NewOption("⌨ Type a reply", typeReply))
		field = huh.NewSelect[string]().
			Title("Choose").
			Options(opts...).
			Value(&m.choice)
	} else {
		title := "Reply"
		if m.prompt.RequestContact {
			title = "Phone number"
		}
		field = huh.NewInput().
			Title(title).
			Placeholder("text or /command").
			Value(&m.text)
	}
	return huh.NewForm(huh.NewGroup(field)).WithShowHelp(false)
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("salonbot console · " + m.caller.ID))
	b.WriteString("\n\n")
	for _, line := range m.transcript {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.form.View())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return docStyle.Render(b.String())
}

// Transcript returns the rendered messages currently on screen.
func (m *Model) Transcript() []string {
	out := make([]string, len(m.transcript))
	copy(out, m.transcript)
	return out
}

// Prompt returns the prompt the operator is answering.
func (m *Model) Prompt() dialog.Prompt { return m.prompt }

func renderPrompt(p dialog.Prompt) string {
	body := p.Text
	if p.Notice != "" {
		body = noticeStyle.Render(p.Notice) + "\n\n" + p.Text
	}
	return botStyle.Render(strings.TrimSpace(body))
}
