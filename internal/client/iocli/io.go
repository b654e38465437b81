// Package iocli abstracts terminal output so commands can be tested.
package iocli

//go:generate moq -out io_mock.go . IO

// IO вывод команд CLI
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	Write(p []byte) (n int, err error)
	// IsTerminal reports whether output goes to an interactive terminal.
	IsTerminal() bool
}
