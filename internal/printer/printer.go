// Package printer renders CLI output with colors.
package printer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// NO_COLOR disables colors; otherwise keep them even when piped.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
	faint  = color.New(color.Faint)
)

// Printer writes regular output to Out and errors to Err.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// New returns a printer over the given writers.
func New(out, errw io.Writer) *Printer {
	return &Printer{Out: out, Err: errw}
}

// Stdio returns a printer over stdout and stderr.
func Stdio() *Printer {
	return New(os.Stdout, os.Stderr)
}

// Success prints a message in green with a checkmark prefix.
func (p *Printer) Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(p.Out, msg)
}

// Info prints an informational message in the default color.
func (p *Printer) Info(format string, a ...any) {
	fmt.Fprintf(p.Out, format, a...)
}

// Warning prints a message in yellow with a warning prefix.
func (p *Printer) Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(p.Out, msg)
}

// Step prints an emphasized progress line.
func (p *Printer) Step(format string, a ...any) {
	cyan.Fprintf(p.Out, "→ %s", fmt.Sprintf(format, a...))
}

// Error prints title, explanation and suggestions to Err and returns an
// error carrying only the title, so the caller does not print it twice.
func (p *Printer) Error(title, explanation string, suggestions []string) error {
	red.Fprintf(p.Err, "%s\n", title)
	if explanation != "" {
		fmt.Fprintf(p.Err, "\n%s\n", explanation)
	}
	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(p.Err, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(p.Err, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(p.Err, "  %d. %s\n", i+1, s)
		}
	}
	return fmt.Errorf("%s", title)
}
