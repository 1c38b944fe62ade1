package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kubescape/process-monitor/pkg/handoff"
	"github.com/kubescape/process-monitor/pkg/metricsmanager"
	"github.com/kubescape/process-monitor/pkg/processevent"
)

const (
	liveViewSinkName       = "liveview"
	liveViewHeading        = "Process Monitor"
	defaultRefreshInterval = 100 * time.Millisecond
	// heading, status and a blank line
	headerLines = 3
)

// Frame is one full repaint of the live view.
type Frame struct {
	Heading string
	Status  string
	Body    []string
}

// Screen is where the live view paints. Keys may return nil when there is no input.
type Screen interface {
	Size() (width, height int)
	Render(frame Frame) error
	Keys() <-chan rune
	Close() error
}

var _ Sink = (*LiveViewSink)(nil)

// LiveViewSink keeps every observed event in arrival order and repaints the whole
// view on a fixed interval. It follows the tail until scrolled away from it.
type LiveViewSink struct {
	screen      Screen
	interval    time.Duration
	placeholder string
	metrics     metricsmanager.MetricsManager

	records []processevent.ProcessEvent
	body    []string
	offset  int
	follow  bool
}

func NewLiveViewSink(screen Screen, refreshInterval time.Duration, parentPlaceholder string, metrics metricsmanager.MetricsManager) *LiveViewSink {
	if refreshInterval <= 0 {
		refreshInterval = defaultRefreshInterval
	}
	return &LiveViewSink{
		screen:      screen,
		interval:    refreshInterval,
		placeholder: parentPlaceholder,
		metrics:     metrics,
		follow:      true,
	}
}

func (s *LiveViewSink) Name() string {
	return liveViewSinkName
}

func (s *LiveViewSink) Run(ctx context.Context, in *handoff.Channel[processevent.ProcessEvent]) error {
	defer in.Close()
	defer s.screen.Close()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.Tick(in); err != nil {
		return err
	}

	keys := s.screen.Keys()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Tick(in); err != nil {
				return err
			}
		case key, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			if s.HandleKey(key) {
				return nil
			}
			if err := s.render(); err != nil {
				return err
			}
		}
	}
}

// Tick drains whatever is queued without waiting, appends it and repaints.
func (s *LiveViewSink) Tick(in *handoff.Channel[processevent.ProcessEvent]) error {
	for _, event := range in.Drain() {
		s.records = append(s.records, event)
		s.body = append(s.body, s.recordLines(event)...)
		s.metrics.ReportRendered(liveViewSinkName)
	}
	return s.render()
}

// HandleKey applies a navigation key and reports whether the view should close.
func (s *LiveViewSink) HandleKey(key rune) bool {
	switch key {
	case 'q', 'Q', 3: // ctrl-c arrives as a byte in raw mode
		return true
	case 'j':
		s.ScrollBy(1)
	case 'k':
		s.ScrollBy(-1)
	case ' ':
		s.ScrollBy(s.viewHeight())
	case 'b':
		s.ScrollBy(-s.viewHeight())
	case 'g':
		s.ScrollToTop()
	case 'G':
		s.ScrollToBottom()
	}
	return false
}

func (s *LiveViewSink) ScrollBy(lines int) {
	s.offset = min(max(s.offset+lines, 0), s.maxOffset())
	s.follow = s.offset == s.maxOffset()
}

func (s *LiveViewSink) ScrollToTop() {
	s.offset = 0
	s.follow = s.maxOffset() == 0
}

func (s *LiveViewSink) ScrollToBottom() {
	s.offset = s.maxOffset()
	s.follow = true
}

// Records returns the observed events in arrival order.
func (s *LiveViewSink) Records() []processevent.ProcessEvent {
	return append([]processevent.ProcessEvent(nil), s.records...)
}

func (s *LiveViewSink) Offset() int {
	return s.offset
}

func (s *LiveViewSink) Following() bool {
	return s.follow
}

func (s *LiveViewSink) viewHeight() int {
	_, height := s.screen.Size()
	return max(height-headerLines, 1)
}

func (s *LiveViewSink) maxOffset() int {
	return max(len(s.body)-s.viewHeight(), 0)
}

func (s *LiveViewSink) render() error {
	if s.follow {
		s.offset = s.maxOffset()
	} else {
		s.offset = min(s.offset, s.maxOffset())
	}
	end := min(s.offset+s.viewHeight(), len(s.body))

	frame := Frame{
		Heading: liveViewHeading,
		Status:  fmt.Sprintf("%s processes observed  (j/k scroll, g/G top/bottom, q quit)", humanize.Comma(int64(len(s.records)))),
		Body:    s.body[s.offset:end],
	}
	if err := s.screen.Render(frame); err != nil {
		return fmt.Errorf("render live view: %w", err)
	}
	return nil
}

func (s *LiveViewSink) recordLines(e processevent.ProcessEvent) []string {
	return []string{
		fmt.Sprintf("PID: %d", e.PID()),
		fmt.Sprintf("  Name: %s", e.Name()),
		fmt.Sprintf("  Executable: %s", executableValue(e)),
		fmt.Sprintf("  Parent PID: %s", parentValue(e, s.placeholder)),
		fmt.Sprintf("  Command Line: %s", commandLineValue(e)),
		fmt.Sprintf("  Created: %s", createdValue(e)),
		"",
	}
}
