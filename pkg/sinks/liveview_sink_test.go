package sinks

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kubescape/process-monitor/pkg/handoff"
	"github.com/kubescape/process-monitor/pkg/metricsmanager"
	"github.com/kubescape/process-monitor/pkg/processevent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScreen struct {
	height int
	keys   chan rune

	mu     sync.Mutex
	frames []Frame
	closed bool
}

func newFakeScreen(height int) *fakeScreen {
	return &fakeScreen{height: height, keys: make(chan rune, 4)}
}

func (f *fakeScreen) Size() (int, int) {
	return 80, f.height
}

func (f *fakeScreen) Render(frame Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	frame.Body = append([]string(nil), frame.Body...)
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeScreen) Keys() <-chan rune {
	return f.keys
}

func (f *fakeScreen) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeScreen) last() Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames[len(f.frames)-1]
}

func (f *fakeScreen) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func pidLines(frame Frame) []string {
	var pids []string
	for _, line := range frame.Body {
		if strings.HasPrefix(line, "PID: ") {
			pids = append(pids, line)
		}
	}
	return pids
}

func TestLiveViewSink_AccumulatesAcrossTicks(t *testing.T) {
	screen := newFakeScreen(100)
	metrics := metricsmanager.NewMetricsMock()
	sink := NewLiveViewSink(screen, time.Second, "0", metrics)
	in := handoff.New[processevent.ProcessEvent]()

	e1 := processevent.New(1, "one")
	e2 := processevent.New(2, "two")
	e3 := processevent.New(3, "three")

	require.NoError(t, in.Push(e1))
	require.NoError(t, in.Push(e2))
	require.NoError(t, sink.Tick(in))
	assert.Equal(t, []processevent.ProcessEvent{e1, e2}, sink.Records())

	require.NoError(t, in.Push(e3))
	require.NoError(t, sink.Tick(in))
	assert.Equal(t, []processevent.ProcessEvent{e1, e2, e3}, sink.Records())

	frame := screen.last()
	assert.Equal(t, "Process Monitor", frame.Heading)
	assert.True(t, strings.HasPrefix(frame.Status, "3 processes observed"))
	assert.Equal(t, []string{"PID: 1", "PID: 2", "PID: 3"}, pidLines(frame))
	assert.Equal(t, 3, metrics.RenderedCounter.Get("liveview"))
}

func TestLiveViewSink_RepaintsWithoutNewData(t *testing.T) {
	screen := newFakeScreen(100)
	sink := NewLiveViewSink(screen, time.Second, "0", metricsmanager.NewMetricsMock())
	in := handoff.New[processevent.ProcessEvent]()

	require.NoError(t, in.Push(processevent.New(1, "one")))
	require.NoError(t, sink.Tick(in))
	require.NoError(t, sink.Tick(in))

	assert.Equal(t, 2, screen.frameCount())
	assert.Equal(t, []string{"PID: 1"}, pidLines(screen.last()))
	assert.Len(t, sink.Records(), 1)
}

func TestLiveViewSink_RecordGroup(t *testing.T) {
	screen := newFakeScreen(100)
	sink := NewLiveViewSink(screen, time.Second, "0", metricsmanager.NewMetricsMock())
	in := handoff.New[processevent.ProcessEvent]()

	require.NoError(t, in.Push(processevent.New(4321, "notepad.exe",
		processevent.WithExecutablePath(`C:\Windows\notepad.exe`))))
	require.NoError(t, sink.Tick(in))

	assert.Equal(t, []string{
		"PID: 4321",
		"  Name: notepad.exe",
		`  Executable: "C:\\Windows\\notepad.exe"`,
		"  Parent PID: 0",
		`  Command Line: "None"`,
		"  Created: N/A",
		"",
	}, screen.last().Body)
}

func TestLiveViewSink_Scrolling(t *testing.T) {
	// 7 lines per record, 10 visible body lines
	screen := newFakeScreen(13)
	sink := NewLiveViewSink(screen, time.Second, "0", metricsmanager.NewMetricsMock())
	in := handoff.New[processevent.ProcessEvent]()

	for pid := uint32(1); pid <= 4; pid++ {
		require.NoError(t, in.Push(processevent.New(pid, "p")))
	}
	require.NoError(t, sink.Tick(in))

	// 28 body lines, window of 10 follows the tail
	assert.True(t, sink.Following())
	assert.Equal(t, 18, sink.Offset())
	assert.Len(t, screen.last().Body, 10)

	sink.ScrollBy(-5)
	assert.Equal(t, 13, sink.Offset())
	assert.False(t, sink.Following())

	require.NoError(t, in.Push(processevent.New(5, "p")))
	require.NoError(t, sink.Tick(in))
	assert.Equal(t, 13, sink.Offset(), "scrolled view stays put when new records arrive")

	sink.ScrollBy(-100)
	assert.Equal(t, 0, sink.Offset())
	sink.ScrollBy(1000)
	assert.Equal(t, 25, sink.Offset())
	assert.True(t, sink.Following())

	sink.ScrollToTop()
	assert.Equal(t, 0, sink.Offset())
	assert.False(t, sink.Following())
	require.NoError(t, sink.Tick(in))
	assert.Equal(t, "PID: 1", screen.last().Body[0])

	sink.ScrollToBottom()
	require.NoError(t, in.Push(processevent.New(6, "p")))
	require.NoError(t, sink.Tick(in))
	assert.Equal(t, 32, sink.Offset())
	assert.Equal(t, "", screen.last().Body[9])
}

func TestLiveViewSink_HandleKey(t *testing.T) {
	screen := newFakeScreen(13)
	sink := NewLiveViewSink(screen, time.Second, "0", metricsmanager.NewMetricsMock())
	in := handoff.New[processevent.ProcessEvent]()
	for pid := uint32(1); pid <= 4; pid++ {
		require.NoError(t, in.Push(processevent.New(pid, "p")))
	}
	require.NoError(t, sink.Tick(in))

	assert.False(t, sink.HandleKey('k'))
	assert.Equal(t, 17, sink.Offset())
	assert.False(t, sink.HandleKey('g'))
	assert.Equal(t, 0, sink.Offset())
	assert.False(t, sink.HandleKey('j'))
	assert.Equal(t, 1, sink.Offset())
	assert.False(t, sink.HandleKey('G'))
	assert.Equal(t, 18, sink.Offset())
	assert.False(t, sink.HandleKey('x'))
	assert.True(t, sink.HandleKey('q'))
}

func TestLiveViewSink_RunQuitKey(t *testing.T) {
	screen := newFakeScreen(40)
	sink := NewLiveViewSink(screen, 10*time.Millisecond, "0", metricsmanager.NewMetricsMock())
	in := handoff.New[processevent.ProcessEvent]()
	require.NoError(t, in.Push(processevent.New(1, "one")))

	result := make(chan error, 1)
	go func() { result <- sink.Run(context.Background(), in) }()

	require.Eventually(t, func() bool { return screen.frameCount() >= 3 }, 5*time.Second, 5*time.Millisecond)
	screen.keys <- 'q'

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("live view did not quit")
	}
	assert.True(t, in.Closed())
	assert.True(t, screen.closed)
	assert.Equal(t, []string{"PID: 1"}, pidLines(screen.last()))
}

func TestLiveViewSink_RunStopsOnCancel(t *testing.T) {
	screen := newFakeScreen(40)
	sink := NewLiveViewSink(screen, 10*time.Millisecond, "0", metricsmanager.NewMetricsMock())
	in := handoff.New[processevent.ProcessEvent]()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- sink.Run(ctx, in) }()

	require.NoError(t, in.Push(processevent.New(9, "late")))
	require.Eventually(t, func() bool {
		return screen.frameCount() > 0 && len(pidLines(screen.last())) == 1
	}, 5*time.Second, 5*time.Millisecond)
	cancel()

	require.NoError(t, <-result)
	assert.True(t, in.Closed())
}
