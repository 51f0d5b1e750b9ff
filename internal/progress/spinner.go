// Package progress provides terminal progress indicators for ki's longer
// operations (a whole clone, push or pull). It wraps
// pterm's spinner printer rather than hand-rolling an animation loop; pterm
// was previously an unwired dependency, so ki's clone/push/pull commands are
// the first callers to exercise it.
package progress

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"

	"github.com/kiproject/ki/internal/termcolor"
)

// Spinner displays an animated spinner on stderr while a long-running
// operation is in progress. It is only displayed when stderr is a TTY;
// in non-interactive environments (piped output, CI, E2E tests) it is silent.
type Spinner struct {
	msg     string
	printer *pterm.SpinnerPrinter
}

// New creates a Spinner that will display msg alongside the animation.
func New(msg string) *Spinner {
	return &Spinner{msg: msg}
}

// Start begins the spinner animation. It writes to stderr so it never
// pollutes stdout, and is a no-op when stderr isn't a terminal.
func (s *Spinner) Start() {
	if !termcolor.IsTerminal(os.Stderr.Fd()) {
		return
	}
	sp := pterm.DefaultSpinner.WithWriter(os.Stderr)
	printer, err := sp.Start(s.msg)
	if err != nil {
		return
	}
	s.printer = printer
}

// Stop halts the spinner animation and clears the line.
func (s *Spinner) Stop() {
	if s.printer == nil {
		return
	}
	_ = s.printer.Stop()
	s.printer = nil
}

// Fail halts the spinner, marking it as failed with msg instead of clearing
// it silently.
func (s *Spinner) Fail(msg string) {
	if s.printer == nil {
		fmt.Fprintln(os.Stderr, msg)
		return
	}
	s.printer.Fail(msg)
	s.printer = nil
}
