package sinks

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/aquilax/truncate"
	"github.com/fatih/color"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

const (
	defaultWidth  = 80
	defaultHeight = 24

	clearScreen = "\x1b[H\x1b[2J"
	hideCursor  = "\x1b[?25l"
	showCursor  = "\x1b[?25h"
)

type fdFile interface {
	Fd() uintptr
}

// IsTerminal reports whether w is backed by a terminal.
func IsTerminal(w any) bool {
	f, ok := w.(fdFile)
	return ok && isatty.IsTerminal(f.Fd())
}

var _ Screen = (*TerminalScreen)(nil)

// TerminalScreen paints frames on an ANSI terminal. When in is a terminal it is put
// into raw mode and read for navigation keys.
type TerminalScreen struct {
	out      io.Writer
	outFd    int
	outTTY   bool
	inFd     int
	oldState *term.State
	keys     chan rune
	heading  *color.Color
	buf      bytes.Buffer
}

func NewTerminalScreen(in io.Reader, out io.Writer) (*TerminalScreen, error) {
	s := &TerminalScreen{
		out:     out,
		outFd:   -1,
		inFd:    -1,
		heading: color.New(color.FgCyan, color.Bold),
	}

	if IsTerminal(out) {
		s.outFd = int(out.(fdFile).Fd())
		s.outTTY = true
	}

	if IsTerminal(in) {
		s.inFd = int(in.(fdFile).Fd())
		state, err := term.MakeRaw(s.inFd)
		if err != nil {
			return nil, err
		}
		s.oldState = state
		s.keys = make(chan rune, 16)
		go s.readKeys(in)
	}

	if s.outTTY {
		_, _ = io.WriteString(out, hideCursor)
	}
	return s, nil
}

func (s *TerminalScreen) readKeys(in io.Reader) {
	defer close(s.keys)
	r := bufio.NewReader(in)
	for {
		key, _, err := r.ReadRune()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.L().Debug("TerminalScreen - stopped reading keys", helpers.Error(err))
			}
			return
		}
		select {
		case s.keys <- key:
		default:
		}
	}
}

func (s *TerminalScreen) Size() (int, int) {
	if s.outTTY {
		if w, h, err := term.GetSize(s.outFd); err == nil && w > 0 && h > 0 {
			return w, h
		}
	}
	return defaultWidth, defaultHeight
}

// Keys returns nil when input is not a terminal.
func (s *TerminalScreen) Keys() <-chan rune {
	if s.keys == nil {
		return nil
	}
	return s.keys
}

func (s *TerminalScreen) Render(frame Frame) error {
	width, _ := s.Size()

	s.buf.Reset()
	if s.outTTY {
		s.buf.WriteString(clearScreen)
	}
	s.buf.WriteString(s.heading.Sprint(fitLine(frame.Heading, width)))
	s.buf.WriteString("\r\n")
	s.buf.WriteString(fitLine(frame.Status, width))
	s.buf.WriteString("\r\n\r\n")
	for _, line := range frame.Body {
		s.buf.WriteString(fitLine(line, width))
		s.buf.WriteString("\r\n")
	}

	_, err := s.out.Write(s.buf.Bytes())
	return err
}

func (s *TerminalScreen) Close() error {
	if s.outTTY {
		_, _ = io.WriteString(s.out, showCursor)
	}
	if s.oldState != nil {
		err := term.Restore(s.inFd, s.oldState)
		s.oldState = nil
		return err
	}
	return nil
}

// fitLine cuts line to width runes, marking the cut with an ellipsis.
func fitLine(line string, width int) string {
	if width <= 0 {
		return line
	}
	return truncate.Truncate(line, width, "…", truncate.PositionEnd)
}
