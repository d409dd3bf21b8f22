package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is human-readable output (default).
	FormatText OutputFormat = "text"
	// FormatJSON is indented JSON output.
	FormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (use text or json)", s)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// Printer writes colored, aligned command output.
type Printer struct {
	w       io.Writer
	heading *color.Color
	ok      *color.Color
	warn    *color.Color
	fail    *color.Color
	label   *color.Color
}

// NewPrinter creates a Printer writing to w, or stdout when w is nil.
// Colors follow fatih/color's terminal detection unless noColor is set.
func NewPrinter(w io.Writer, noColor bool) *Printer {
	if w == nil {
		w = os.Stdout
	}
	p := &Printer{
		w:       w,
		heading: color.New(color.FgBlue, color.Bold),
		ok:      color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		fail:    color.New(color.FgRed),
		label:   color.New(color.FgCyan),
	}
	if noColor {
		for _, c := range []*color.Color{p.heading, p.ok, p.warn, p.fail, p.label} {
			c.DisableColor()
		}
	}
	return p
}

// Heading prints a section title.
func (p *Printer) Heading(format string, args ...any) {
	p.heading.Fprintf(p.w, format+"\n", args...)
}

// Success prints a line prefixed with a check mark.
func (p *Printer) Success(format string, args ...any) {
	p.ok.Fprint(p.w, "✓ ")
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Warn prints a line prefixed with an exclamation mark.
func (p *Printer) Warn(format string, args ...any) {
	p.warn.Fprint(p.w, "! ")
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Fail prints a line prefixed with a cross.
func (p *Printer) Fail(format string, args ...any) {
	p.fail.Fprint(p.w, "✗ ")
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Field prints an indented "label: value" line.
func (p *Printer) Field(label string, value any) {
	p.label.Fprintf(p.w, "  %-18s", label+":")
	fmt.Fprintf(p.w, " %v\n", value)
}

// Line prints plain text.
func (p *Printer) Line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}
