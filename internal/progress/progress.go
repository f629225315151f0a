// Package progress shows progress for long-running CLI commands such as a
// bucket sweep.
//
// On a terminal (and with TFAPI_NO_SPINNER unset) the Spinner animates on
// one line. Elsewhere every message becomes a timestamped line:
//
//	[12:34:56] Deleting 3 buckets...
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// NoSpinnerEnv disables animation when set to "1".
const NoSpinnerEnv = "TFAPI_NO_SPINNER"

// Frames are the animation frames used on a terminal.
var Frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const tick = 80 * time.Millisecond

// Spinner reports progress. Start, Update, Stop and Fail may be called in
// any order; Stop or Fail without Start just prints the message.
type Spinner struct {
	// Interactive selects animation over plain lines. Tests set it directly.
	Interactive bool
	Writer      io.Writer

	mu    sync.Mutex
	msg   string
	stop  chan struct{}
	done  chan struct{}
	frame int
}

// New returns a Spinner writing to w, or os.Stdout when w is nil.
// Animation is enabled when stdout is a terminal.
func New(w io.Writer) *Spinner {
	if w == nil {
		w = os.Stdout
	}
	return &Spinner{
		Interactive: os.Getenv(NoSpinnerEnv) != "1" && term.IsTerminal(int(os.Stdout.Fd())),
		Writer:      w,
	}
}

// ForCommand returns a Spinner for command output. A quiet spinner (JSON
// mode) discards everything.
func ForCommand(w io.Writer, quiet bool) *Spinner {
	if quiet {
		return &Spinner{Writer: io.Discard}
	}
	return New(w)
}

// Start shows msg. A second Start acts like Update.
func (s *Spinner) Start(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msg = msg
	switch {
	case s.stop != nil:
	case s.Interactive:
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.animate(s.stop, s.done)
	default:
		s.line(msg)
	}
}

// Update replaces the message.
func (s *Spinner) Update(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msg = msg
	if !s.Interactive {
		s.line(msg)
	}
}

// Stop ends the spinner with a success message.
func (s *Spinner) Stop(msg string) { s.finish(msg) }

// Fail ends the spinner with a failure message.
func (s *Spinner) Fail(msg string) { s.finish(msg) }

func (s *Spinner) finish(msg string) {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
		s.mu.Lock()
		fmt.Fprint(s.Writer, "\r\033[K")
		fmt.Fprintln(s.Writer, msg)
		s.mu.Unlock()
		return
	}
	if msg == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Interactive {
		fmt.Fprintln(s.Writer, msg)
		return
	}
	s.line(msg)
}

func (s *Spinner) animate(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.mu.Lock()
			fmt.Fprintf(s.Writer, "\r%s %s", Frames[s.frame%len(Frames)], s.msg)
			s.frame++
			s.mu.Unlock()
		}
	}
}

// line writes a timestamped line. Callers hold mu.
func (s *Spinner) line(msg string) {
	fmt.Fprintf(s.Writer, "[%s] %s\n", time.Now().Format("15:04:05"), msg)
}
