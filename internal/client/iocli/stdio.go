package iocli

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Stdio пишет в os.Stdout или в переданный writer
type Stdio struct {
	out io.Writer
	tty bool
}

// NewStdio returns IO bound to the process stdout.
func NewStdio() IO {
	return &Stdio{
		out: os.Stdout,
		tty: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// NewWriter returns IO writing to w. w is a terminal only if it is an
// *os.File attached to one.
func NewWriter(w io.Writer) IO {
	s := &Stdio{out: w}
	if f, ok := w.(*os.File); ok {
		s.tty = term.IsTerminal(int(f.Fd()))
	}
	return s
}

func (s *Stdio) Println(a ...any) {
	_, _ = fmt.Fprintln(s.out, a...)
}

func (s *Stdio) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(s.out, format, a...)
}

func (s *Stdio) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *Stdio) IsTerminal() bool {
	return s.tty
}
