package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"umbilicus/pkg/collector"
)

// Prompter reads one line of operator input. *liner.State satisfies it.
type Prompter interface {
	Prompt(prompt string) (string, error)
}

// NewLiner returns a line editor whose Ctrl-C ends the prompt with
// liner.ErrPromptAborted. The caller must Close it to restore the terminal.
func NewLiner() *liner.State {
	l := liner.NewLiner()
	l.SetCtrlCAborts(true)
	return l
}

// Terminal is a collector.Renderer that writes each slice to PreviewPath and
// asks for the umbilicus position on the prompt.
//
// Accepted answers are "x y" or "x,y" in preview pixel coordinates, an empty
// line to skip the slice, and "q" to end the session.
type Terminal struct {
	Prompter    Prompter
	PreviewPath string
	Out         io.Writer
	Logger      *slog.Logger
}

// NewTerminal returns a Terminal printing to out.
func NewTerminal(p Prompter, previewPath string, out io.Writer, logger *slog.Logger) *Terminal {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Terminal{Prompter: p, PreviewPath: previewPath, Out: out, Logger: logger}
}

// Select implements collector.Renderer.
func (t *Terminal) Select(ctx context.Context, v collector.View) (collector.Selection, error) {
	if err := ctx.Err(); err != nil {
		return collector.Selection{}, err
	}
	rows, cols := v.Slice.Dims()

	if t.PreviewPath != "" {
		if err := SavePreview(Image(v.Slice), t.PreviewPath); err != nil {
			return collector.Selection{}, fmt.Errorf("write preview: %w", err)
		}
	}
	mean, std := Summary(v.Slice)
	t.Logger.Debug("slice ready", "z", v.Index, "rows", rows, "cols", cols, "mean", mean, "std", std)

	fmt.Fprintf(t.Out, "%s (%dx%d)", v.Title, cols, rows)
	if t.PreviewPath != "" {
		fmt.Fprintf(t.Out, " -> %s", t.PreviewPath)
	}
	fmt.Fprintln(t.Out)

	for {
		line, err := t.Prompter.Prompt("x y> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return collector.Selection{}, collector.ErrAborted
		}
		if err != nil {
			return collector.Selection{}, err
		}

		sel, err := ParseSelection(line, rows, cols)
		if errors.Is(err, collector.ErrAborted) {
			return collector.Selection{}, err
		}
		if err != nil {
			fmt.Fprintf(t.Out, "  %v\n", err)
			continue
		}
		return sel, nil
	}
}

// ParseSelection interprets one answer for a rows x cols slice.
// It returns collector.ErrAborted for "q" and an unselected Selection for an
// empty line.
func ParseSelection(line string, rows, cols int) (collector.Selection, error) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return collector.Selection{}, nil
	case "q", "quit":
		return collector.Selection{}, collector.ErrAborted
	}

	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) != 2 {
		return collector.Selection{}, fmt.Errorf("expected \"x y\", got %q", line)
	}
	x, err := strconv.Atoi(fields[0])
	if err != nil {
		return collector.Selection{}, fmt.Errorf("invalid x %q", fields[0])
	}
	y, err := strconv.Atoi(fields[1])
	if err != nil {
		return collector.Selection{}, fmt.Errorf("invalid y %q", fields[1])
	}
	if x < 0 || x >= cols || y < 0 || y >= rows {
		return collector.Selection{}, fmt.Errorf("point (%d, %d) outside slice %dx%d", x, y, cols, rows)
	}
	return collector.Selection{X: x, Y: y, OK: true}, nil
}
