package eventsource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kubescape/process-monitor/pkg/processevent"
)

var _ EventSource = (*EventSourceMock)(nil)

// EventSourceMock is a scriptable EventSource. The first ConnectFailures connects and the
// first SubscribeFailures subscribes fail; after that each stream serves Records in order
// and then StreamErr, or blocks until closed when StreamErr is nil.
type EventSourceMock struct {
	ConnectFailures   int
	SubscribeFailures int
	Records           []processevent.RawRecord
	StreamErr         error

	connectAttempts   atomic.Int32
	subscribeAttempts atomic.Int32

	mu      sync.Mutex
	streams []*StreamMock
	conns   []*ConnectionMock
}

func (m *EventSourceMock) Connect(_ context.Context) (Connection, error) {
	n := int(m.connectAttempts.Add(1))
	if n <= m.ConnectFailures {
		return nil, &ConnectError{Err: fmt.Errorf("mock connect failure %d", n)}
	}

	conn := &ConnectionMock{id: fmt.Sprintf("mock-%d", n)}
	m.mu.Lock()
	m.conns = append(m.conns, conn)
	m.mu.Unlock()
	return conn, nil
}

func (m *EventSourceMock) Subscribe(_ context.Context, _ Connection, filter Filter) (EventStream, error) {
	if filter != FilterProcessCreation {
		return nil, &SubscribeError{Filter: filter, Err: errors.New("unsupported filter")}
	}
	n := int(m.subscribeAttempts.Add(1))
	if n <= m.SubscribeFailures {
		return nil, &SubscribeError{Filter: filter, Err: fmt.Errorf("mock subscribe failure %d", n)}
	}

	stream := NewStreamMock(m.Records, m.StreamErr)
	m.mu.Lock()
	m.streams = append(m.streams, stream)
	m.mu.Unlock()
	return stream, nil
}

// Attempts returns the number of Connect calls made so far.
func (m *EventSourceMock) Attempts() int {
	return int(m.connectAttempts.Load())
}

func (m *EventSourceMock) SubscribeAttempts() int {
	return int(m.subscribeAttempts.Load())
}

func (m *EventSourceMock) Streams() []*StreamMock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*StreamMock(nil), m.streams...)
}

func (m *EventSourceMock) Connections() []*ConnectionMock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ConnectionMock(nil), m.conns...)
}

var _ Connection = (*ConnectionMock)(nil)

type ConnectionMock struct {
	id     string
	closed atomic.Bool
}

func (c *ConnectionMock) ID() string {
	return c.id
}

func (c *ConnectionMock) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *ConnectionMock) Closed() bool {
	return c.closed.Load()
}

var _ EventStream = (*StreamMock)(nil)

type StreamMock struct {
	records   chan processevent.RawRecord
	err       error
	done      chan struct{}
	closeOnce sync.Once
}

func NewStreamMock(records []processevent.RawRecord, err error) *StreamMock {
	ch := make(chan processevent.RawRecord, len(records))
	for _, r := range records {
		ch <- r
	}
	close(ch)
	return &StreamMock{
		records: ch,
		err:     err,
		done:    make(chan struct{}),
	}
}

func (s *StreamMock) Next() (processevent.RawRecord, error) {
	select {
	case <-s.done:
		return nil, ErrStreamClosed
	default:
	}

	select {
	case r, ok := <-s.records:
		if ok {
			return r, nil
		}
	case <-s.done:
		return nil, ErrStreamClosed
	}

	if s.err != nil {
		return nil, s.err
	}
	<-s.done
	return nil, ErrStreamClosed
}

func (s *StreamMock) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

func (s *StreamMock) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
