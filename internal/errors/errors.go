package errors

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/julianstephens/salonbot/internal/logger"
)

// GenericMessage is shown to users when an internal error has no safe description.
const GenericMessage = "Something went wrong. Please try again later."

// UserError carries a message that is safe to show to the person in the dialogue.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *UserError) Unwrap() error { return e.Err }

// User wraps err with a user-facing message.
func User(message string, err error) error {
	return &UserError{Message: message, Err: err}
}

// UserMessage returns the user-facing text for err. Errors without a
// UserError in their chain are logged and replaced by GenericMessage.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ue *UserError
	if stderrors.As(err, &ue) {
		return ue.Message
	}
	logger.Error("Unhandled dialogue error", "error", err)
	return GenericMessage
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintf(os.Stderr, "%s\n", Formatf(format, args...))
	os.Exit(1)
}
