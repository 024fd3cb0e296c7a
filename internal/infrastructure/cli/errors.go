package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/felixgeelhaar/milestone/pkg/application"
	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
)

// CLIError wraps domain errors with user-facing messages and actionable hints.
type CLIError struct {
	Message  string
	Hint     string
	Err      error
	ExitCode int
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a CLIError with a default exit code of 1.
func NewCLIError(msg, hint string, err error) *CLIError {
	return &CLIError{
		Message:  msg,
		Hint:     hint,
		Err:      err,
		ExitCode: 1,
	}
}

// MapError converts known domain errors into CLIErrors with actionable hints.
// Unmapped errors are returned as-is.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}

	switch {
	case errors.Is(err, application.ErrNotArray):
		return NewCLIError("import file is not a roadmap array", "Export a backup with 'milestone export' to see the expected format", err)
	case errors.Is(err, roadmap.ErrParse):
		return NewCLIError("roadmap data is not valid JSON", "Check the file, or restore it with 'milestone import <backup>'", err)
	case errors.Is(err, roadmap.ErrNotFound):
		return NewCLIError("no roadmap stored remotely yet", "Run 'milestone sync' once to seed it", err)
	case errors.Is(err, roadmap.ErrNetwork):
		return NewCLIError("roadmap store unreachable", "Check remote.base_url and remote.bucket with 'milestone config show'; local changes are kept", err)
	}

	var valErr *roadmap.ValidationError
	if errors.As(err, &valErr) {
		return NewCLIError("roadmap has structural problems", "Fix the duplicate ids or priorities listed above", err)
	}

	return err
}

func printError(w io.Writer, err error) {
	err = MapError(err)
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		fmt.Fprintf(w, "Error: %s\n", cliErr.Error())
		if cliErr.Hint != "" {
			fmt.Fprintf(w, "Hint: %s\n", cliErr.Hint)
		}
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
