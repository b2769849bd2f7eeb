// Package console renders the colored, human-facing side of a session.
package console

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Printer writes prompts, talk text and notices.
type Printer struct {
	out    io.Writer
	green  *color.Color
	blue   *color.Color
	yellow *color.Color
	red    *color.Color
}

// New builds a Printer on out. A nil writer discards output.
func New(out io.Writer) *Printer {
	if out == nil {
		out = io.Discard
	}
	return &Printer{
		out:    out,
		green:  color.New(color.FgGreen),
		blue:   color.New(color.FgBlue),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed),
	}
}

// Banner prints the welcome text shown once at startup.
func (p *Printer) Banner() {
	_, _ = p.green.Fprintln(p.out, "Terminal174 - AI-powered terminal")
	_, _ = fmt.Fprintln(p.out, "Type 'exit' to quit. Press Ctrl+C to interrupt AI or command execution.")
	_, _ = fmt.Fprintln(p.out, "Commands: /help, /history")
	_, _ = fmt.Fprintln(p.out)
}

// Prompt prints the input marker without a trailing newline.
func (p *Printer) Prompt() {
	_, _ = fmt.Fprintf(p.out, "%s ", p.blue.Sprint(">"))
}

// Talk prints one talk segment.
func (p *Printer) Talk(text string) {
	_, _ = p.yellow.Fprintln(p.out, text)
}

// Running announces a command before it starts.
func (p *Printer) Running(command string) {
	_, _ = fmt.Fprintf(p.out, "%s %s\n", p.green.Sprint("Running:"), command)
}

// Error prints msg in red.
func (p *Printer) Error(msg string) {
	_, _ = p.red.Fprintln(p.out, msg)
}

// Info prints plain text.
func (p *Printer) Info(msg string) {
	_, _ = fmt.Fprintln(p.out, msg)
}

// Writer exposes the underlying writer for bulk output.
func (p *Printer) Writer() io.Writer {
	return p.out
}
