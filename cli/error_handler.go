package cli

import (
	"fmt"
	"io"

	"github.com/grovetools/livesync/errors"
	"github.com/grovetools/livesync/tui/theme"
)

// ErrorHandler turns errors into user-facing messages.
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates an error handler writing to out.
func NewErrorHandler(out io.Writer, verbose bool) *ErrorHandler {
	return &ErrorHandler{Verbose: verbose, Out: out}
}

// Handle prints a message for err and returns it unchanged.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	t := theme.DefaultTheme
	prefix := t.Error.Render(theme.IconError)

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(h.Out, "%s Configuration not found. Pass --config or create livesync.toml.\n", prefix)
	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		fmt.Fprintf(h.Out, "%s Invalid configuration: %v\n", prefix, err)
	case errors.ErrCodeTransientNetwork:
		fmt.Fprintf(h.Out, "%s Could not reach the dashboard server. Is it running?\n", prefix)
	case errors.ErrCodeHTTPStatus:
		fmt.Fprintf(h.Out, "%s Server error: %v\n", prefix, err)
	case errors.ErrCodeActionFailed:
		fmt.Fprintf(h.Out, "%s %v\n", prefix, err)
	default:
		fmt.Fprintf(h.Out, "%s Error: %v\n", prefix, err)
	}

	if h.Verbose {
		if syncErr, ok := err.(*errors.SyncError); ok {
			fmt.Fprintf(h.Out, "\nError details:\n%s\n", syncErr.ToJSON())
		}
	}
	return err
}
