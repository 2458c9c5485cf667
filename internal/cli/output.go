package cli

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"worklog/internal/actions"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Action rejected by the backend
	ExitCommandError = 2 // Command error (bad flags, missing config, ...)
)

// ExitError carries a specific exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// GetExitCode extracts the exit code from an error. Non-ExitError failures
// map to ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// PrinterAlerts renders action alerts to the terminal through a localized
// printer.
type PrinterAlerts struct {
	mu      sync.Mutex
	printer *message.Printer
	out     io.Writer
	failed  bool
}

// NewPrinterAlerts creates an alert sink writing to out.
func NewPrinterAlerts(out io.Writer) *PrinterAlerts {
	return &PrinterAlerts{
		printer: message.NewPrinter(language.English),
		out:     out,
	}
}

func (p *PrinterAlerts) Error(alert actions.Alert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = true
	p.printer.Fprintf(p.out, "Rejected: %s\n", alert.ActionDescription)
	for _, msg := range alert.Messages {
		p.printer.Fprintf(p.out, "  - %s\n", msg)
	}
	if alert.ProposeRefresh {
		p.printer.Fprintf(p.out, "  Your local data looks out of date; run %q.\n", "worklog sync")
	}
}

func (p *PrinterAlerts) Success(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printer.Fprintf(p.out, "%s\n", msg)
}

// Failed reports whether any error alert was rendered.
func (p *PrinterAlerts) Failed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}
