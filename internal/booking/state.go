package booking

import "fmt"

type State int

const (
	Idle State = iota
	SelectingService
	SelectingDate
	SelectingTime
	EnteringName
	EnteringPhone
	EnteringComment
	Confirming
	Committed
	Abandoned
)

var stateNames = [...]string{
	Idle:             "idle",
	SelectingService: "selecting_service",
	SelectingDate:    "selecting_date",
	SelectingTime:    "selecting_time",
	EnteringName:     "entering_name",
	EnteringPhone:    "entering_phone",
	EnteringComment:  "entering_comment",
	Confirming:       "confirming",
	Committed:        "committed",
	Abandoned:        "abandoned",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the booking cycle has ended.
func (s State) Terminal() bool {
	return s == Committed || s == Abandoned
}

// Active reports whether the machine is collecting input.
func (s State) Active() bool {
	return s > Idle && s < Committed
}

// Draft is the appointment being assembled. It is never persisted.
type Draft struct {
	ServiceRef  string
	Date        string
	Time        string
	ClientName  string
	ClientPhone string
	Comment     string
}

// contactComplete reports whether the steps after time selection are done,
// which is the case when a conflict sent the user back to re-pick a slot.
func (d Draft) contactComplete() bool {
	return d.ClientName != "" && d.ClientPhone != "" && d.Comment != ""
}

// Session is one client's pass through the booking steps.
type Session struct {
	ClientID    string
	State       State
	Draft       Draft
	committedID int64
}

// CommittedID returns the id of the appointment created by this session, or 0.
func (s *Session) CommittedID() int64 {
	return s.committedID
}

// ValidationError rejects input that does not fit the current state.
type ValidationError struct {
	State  State
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input in %s: %s", e.State, e.Reason)
}

func invalid(s State, format string, args ...any) *ValidationError {
	return &ValidationError{State: s, Reason: fmt.Sprintf(format, args...)}
}
