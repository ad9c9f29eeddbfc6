// Package dialog defines the transport-neutral prompt and input types
// exchanged between the conversation core and the chat transports.
package dialog

import "strings"

type Choice struct {
	Label string
	Value string
}

// Prompt is one message to render. Choices become buttons; Columns is the
// preferred buttons-per-row (0 lets the transport decide).
type Prompt struct {
	Notice         string
	Text           string
	Choices        []Choice
	Columns        int
	RequestContact bool
}

// Body joins the notice line and the text the way every transport renders them.
func (p Prompt) Body() string {
	if p.Notice == "" {
		return p.Text
	}
	if p.Text == "" {
		return p.Notice
	}
	return p.Notice + "\n\n" + p.Text
}

// WithNotice returns a copy of p carrying a notice line above the text.
func (p Prompt) WithNotice(notice string) Prompt {
	p.Notice = notice
	return p
}

// HasChoice reports whether value is one of the offered choices.
func (p Prompt) HasChoice(value string) bool {
	for _, c := range p.Choices {
		if c.Value == value {
			return true
		}
	}
	return false
}

type Kind int

const (
	KindText Kind = iota
	KindChoice
	KindContact
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindChoice:
		return "choice"
	case KindContact:
		return "contact"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

type Input struct {
	Kind  Kind
	Value string
}

const (
	CmdStart   = "start"
	CmdCancel  = "cancel"
	CmdRestart = "restart"
	CmdSkip    = "skip"
	CmdAdmin   = "admin"
)

func Text(s string) Input    { return Input{Kind: KindText, Value: s} }
func Choose(v string) Input  { return Input{Kind: KindChoice, Value: v} }
func Contact(p string) Input { return Input{Kind: KindContact, Value: p} }
func Command(c string) Input { return Input{Kind: KindCommand, Value: c} }

// IsCommand reports whether in is the command name.
func (in Input) IsCommand(name string) bool {
	return in.Kind == KindCommand && in.Value == name
}

// ParseText classifies a typed message. "/cancel" and "/cancel@salon_bot"
// become commands; everything else is text.
func ParseText(s string) Input {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "/") || len(trimmed) < 2 {
		return Text(s)
	}
	name := strings.Fields(trimmed[1:])[0]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return Command(strings.ToLower(name))
}
