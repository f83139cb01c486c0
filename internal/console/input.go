package console

import (
	"bufio"
	"fmt"
	"io"

	"github.com/chzyer/readline"
)

// Prompt is shown before each interactive command.
const Prompt = "BLE: "

// LineReader supplies command lines. Readline returns io.EOF at the end of
// input and readline.ErrInterrupt when the user presses Ctrl+C at the prompt.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// NewPrompt creates the interactive line editor.
func NewPrompt() (*readline.Instance, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          Prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return rl, nil
}

// ScriptReader reads command lines from redirected input.
type ScriptReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

// NewScriptReader reads lines from r. If r is an io.Closer it is closed by
// Close.
func NewScriptReader(r io.Reader) *ScriptReader {
	s := &ScriptReader{scanner: bufio.NewScanner(r)}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *ScriptReader) Readline() (string, error) {
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *ScriptReader) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
