package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/lamim/askgpt/internal/api"
)

const (
	// Prompt is shown before every question
	Prompt = "Type your question: "
	// QuitCommand ends the session
	QuitCommand = "q"
	// Farewell is printed when the session ends
	Farewell = "bye"
)

// Asker answers a single question
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Session runs the read-ask-print loop
type Session struct {
	asker  Asker
	in     LineReader
	out    io.Writer
	logger *slog.Logger

	spinner       io.Writer
	interruptible bool
}

// New creates a session reading questions from in and printing answers to out
func New(asker Asker, in LineReader, out io.Writer, logger *slog.Logger) *Session {
	return &Session{
		asker:  asker,
		in:     in,
		out:    out,
		logger: logger,
	}
}

// SetSpinner draws a spinner on w while a question is in flight. nil disables it.
func (s *Session) SetSpinner(w io.Writer) {
	s.spinner = w
}

// SetInterruptible lets Ctrl-C cancel an in-flight question instead of
// killing the process
func (s *Session) SetInterruptible(enabled bool) {
	s.interruptible = enabled
}

// Run loops until the user types q, input ends, or ctx is done.
// Failed questions are reported and the loop continues.
func (s *Session) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			break
		}

		line, err := s.in.ReadLine(Prompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrInterrupted) {
				// Keep the farewell off the prompt line
				fmt.Fprintln(s.out)
				break
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		question := strings.TrimSpace(line)
		if question == QuitCommand {
			break
		}
		if question == "" {
			continue
		}

		answer, err := s.ask(ctx, question)
		if err != nil {
			s.logger.Debug("Question failed", "kind", api.KindOf(err).Label(), "error", err)
			fmt.Fprintln(s.out, Describe(err))
			continue
		}
		fmt.Fprintln(s.out, answer)
	}

	fmt.Fprintln(s.out, Farewell)
	return nil
}

func (s *Session) ask(ctx context.Context, question string) (string, error) {
	if s.interruptible {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
	}

	if s.spinner != nil {
		stopSpinner := startSpinner(s.spinner, "thinking")
		defer stopSpinner()
	}

	return s.asker.Ask(ctx, question)
}

// Describe renders an Ask failure as a single line for the user
func Describe(err error) string {
	var chatErr *api.ChatError
	if !errors.As(err, &chatErr) {
		return "error: " + err.Error()
	}

	switch {
	case chatErr.Kind == api.KindConfigNotFound:
		return fmt.Sprintf("error: %v (create it with api_key and model entries)", chatErr)
	case chatErr.Timeout():
		return "error: network error: request timed out"
	case chatErr.Kind == api.KindNetwork && errors.Is(chatErr, context.Canceled):
		return "error: request canceled"
	default:
		return "error: " + oneLine(chatErr.Error())
	}
}

// oneLine folds multi-line provider bodies so an error stays on its own line
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
