// Package prompt collects column selections from a terminal.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
)

// ErrAborted is returned when the user interrupts the selection with Ctrl-C.
var ErrAborted = errors.New("selection aborted")

// Prompter reads single lines of input. ReadLine returns io.EOF when input
// ends and ErrAborted on interrupt.
type Prompter interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// ReadlinePrompter is an interactive Prompter with line editing and history.
type ReadlinePrompter struct {
	rl *readline.Instance
}

// NewReadline creates a TTY prompter. History is kept in historyFile when set.
func NewReadline(historyFile string) (*ReadlinePrompter, error) {
	if historyFile != "" {
		os.MkdirAll(filepath.Dir(historyFile), 0755)
	}

	completer := readline.NewPrefixCompleter(
		readline.PcItem("all"),
		readline.PcItem("none"),
		readline.PcItem("done"),
	)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "done",
	})
	if err != nil {
		return nil, fmt.Errorf("could not start interactive prompt: %w", err)
	}
	return &ReadlinePrompter{rl: rl}, nil
}

// ReadLine implements Prompter.
func (p *ReadlinePrompter) ReadLine(prompt string) (string, error) {
	p.rl.SetPrompt(prompt)
	line, err := p.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrAborted
	}
	return line, err
}

// Close implements Prompter.
func (p *ReadlinePrompter) Close() error {
	return p.rl.Close()
}

// ScannerPrompter reads lines from any reader; used for pipes and tests.
type ScannerPrompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewScanner creates a Prompter over r that echoes prompts to out.
func NewScanner(r io.Reader, out io.Writer) *ScannerPrompter {
	return &ScannerPrompter{scanner: bufio.NewScanner(r), out: out}
}

// ReadLine implements Prompter.
func (p *ScannerPrompter) ReadLine(prompt string) (string, error) {
	if p.out != nil {
		fmt.Fprint(p.out, prompt)
	}
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

// Close implements Prompter.
func (p *ScannerPrompter) Close() error { return nil }

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return readline.IsTerminal(int(f.Fd()))
}
