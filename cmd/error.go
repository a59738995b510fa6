package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Warning prints a warning message to standard error.
func Warning(message string) {
	fmt.Fprintln(color.Error, color.YellowString("Warning:"), message)
}

// Error prints an error message to standard error.
func Error(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
}

// Fatal prints an error message to standard error and then terminates the
// process with an error exit code. If err is (or wraps) an ExitCodeError,
// its Code is used instead of the generic failure code 1.
func Fatal(err error) {
	Error(err)
	code := 1
	var withCode *ExitCodeError
	if errors.As(err, &withCode) {
		code = withCode.Code
	}
	os.Exit(code)
}

// ExitCodeError pairs an error with the specific process exit code it should
// produce, for entry points (like discovery:scan) whose exit codes carry
// meaning beyond "succeeded" or "failed generically".
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string { return e.Err.Error() }
func (e *ExitCodeError) Unwrap() error { return e.Err }
