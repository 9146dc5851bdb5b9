package cli

import "fmt"

// ExitError carries a process exit code out of a command's RunE. The eval
// and check commands use it so a denial or a failed file maps to exit 1
// while cobra's own usage errors keep their default handling.
type ExitError struct {
	code    int
	message string
}

// Exitf builds an ExitError with a formatted message.
func Exitf(code int, format string, args ...any) *ExitError {
	return &ExitError{code: code, message: fmt.Sprintf(format, args...)}
}

func (e *ExitError) Error() string {
	if e == nil {
		return ""
	}
	if e.message != "" {
		return e.message
	}
	return fmt.Sprintf("exit %d", e.code)
}

// Code returns the exit code, defaulting to 1 for a nil receiver.
func (e *ExitError) Code() int {
	if e == nil {
		return 1
	}
	return e.code
}

// Message returns the message to print before exiting, if any.
func (e *ExitError) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}
