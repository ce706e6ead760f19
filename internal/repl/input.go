package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

// ErrInterrupted is returned by a LineReader when the user pressed Ctrl-C at the prompt
var ErrInterrupted = errors.New("interrupted")

// LineReader shows a prompt and reads one line of input.
// It returns io.EOF when input is exhausted.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// scannerReader reads lines from any io.Reader, for pipes and tests
type scannerReader struct {
	in  *bufio.Reader
	out io.Writer
}

// NewScannerReader reads lines from in, echoing prompts to out
func NewScannerReader(in io.Reader, out io.Writer) LineReader {
	return &scannerReader{in: bufio.NewReader(in), out: out}
}

func (r *scannerReader) ReadLine(prompt string) (string, error) {
	if _, err := fmt.Fprint(r.out, prompt); err != nil {
		return "", err
	}
	line, err := r.in.ReadString('\n')
	if err != nil {
		// A last line without a trailing newline still counts
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (r *scannerReader) Close() error {
	return nil
}

// linerReader provides line editing and history on a terminal
type linerReader struct {
	state       *liner.State
	historyPath string
}

// NewTerminalReader creates a line editor on the controlling terminal.
// When historyPath is set, history is loaded from it and written back on Close.
func NewTerminalReader(historyPath string) LineReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)

	r := &linerReader{state: state, historyPath: historyPath}
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}
	}
	return r
}

func (r *linerReader) ReadLine(prompt string) (string, error) {
	line, err := r.state.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", ErrInterrupted
		}
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		r.state.AppendHistory(line)
	}
	return line, nil
}

func (r *linerReader) Close() error {
	if r.historyPath != "" {
		if err := r.writeHistory(); err != nil {
			_ = r.state.Close()
			return err
		}
	}
	return r.state.Close()
}

func (r *linerReader) writeHistory() error {
	if err := os.MkdirAll(filepath.Dir(r.historyPath), 0700); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	f, err := os.OpenFile(r.historyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	if _, err := r.state.WriteHistory(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	return f.Close()
}

// DefaultHistoryPath returns the history file under the user's config directory
func DefaultHistoryPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "askgpt", "history"), nil
}
