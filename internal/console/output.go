package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Output prints console results. In redirected mode informational lines are
// suppressed and notifications print bare values, so scripts can consume
// stdout directly. It is safe for concurrent use.
type Output struct {
	mu         sync.Mutex
	stdout     io.Writer
	stderr     io.Writer
	redirected bool

	errColor  *color.Color
	noteColor *color.Color
}

// NewOutput creates an Output writing to stdout and stderr.
func NewOutput(stdout, stderr io.Writer, redirected bool) *Output {
	return &Output{
		stdout:     stdout,
		stderr:     stderr,
		redirected: redirected,
		errColor:   color.New(color.FgRed),
		noteColor:  color.New(color.FgCyan),
	}
}

// Redirected reports whether the console runs a script.
func (o *Output) Redirected() bool { return o.redirected }

// Infof prints an informational line unless redirected.
func (o *Output) Infof(format string, args ...any) {
	if o.redirected {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	_, _ = fmt.Fprintf(o.stdout, format+"\n", args...)
}

// Value prints a characteristic value.
func (o *Output) Value(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, _ = fmt.Fprintln(o.stdout, text)
}

// Notify prints a notification.
func (o *Output) Notify(uuid, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.redirected {
		_, _ = fmt.Fprint(o.stdout, text)
		return
	}
	_, _ = o.noteColor.Fprintf(o.stdout, "Value changed for %s: %s\n", uuid, text)
}

// Text prints text produced by "print". Redirected output gets no trailing
// newline; scripts add their own with \n.
func (o *Output) Text(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.redirected {
		_, _ = fmt.Fprint(o.stdout, text)
		return
	}
	_, _ = fmt.Fprintln(o.stdout, text)
}

// Line prints a line regardless of mode.
func (o *Output) Line(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, _ = fmt.Fprintf(o.stdout, format+"\n", args...)
}

// Error prints a failed command to stderr.
func (o *Output) Error(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, _ = o.errColor.Fprintf(o.stderr, "%s\n", FormatError(err))
}
