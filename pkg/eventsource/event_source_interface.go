package eventsource

import (
	"context"
	"errors"
	"fmt"

	"github.com/kubescape/process-monitor/pkg/processevent"
)

// Filter selects which notifications a subscription delivers.
type Filter string

// FilterProcessCreation matches instance creation of the process object, with no further predicate.
const FilterProcessCreation Filter = "process-creation"

// ErrStreamClosed is returned by EventStream.Next after Close.
var ErrStreamClosed = errors.New("event stream closed")

// EventSource is a session factory for the OS notification facility.
type EventSource interface {
	// Connect acquires a session with the notification facility.
	Connect(ctx context.Context) (Connection, error)
	// Subscribe registers interest in the events matched by filter on conn.
	Subscribe(ctx context.Context, conn Connection, filter Filter) (EventStream, error)
}

type Connection interface {
	ID() string
	Close() error
}

// EventStream is a lazy, unbounded, non-restartable sequence of raw records.
type EventStream interface {
	// Next blocks until the next record. Any error other than ErrStreamClosed
	// means the stream was lost.
	Next() (processevent.RawRecord, error)
	// Close releases the stream and unblocks a pending Next. It is safe to call more than once.
	Close() error
}

type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to notification facility: %v", e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

type SubscribeError struct {
	Filter Filter
	Err    error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("subscribe to %s notifications: %v", e.Filter, e.Err)
}

func (e *SubscribeError) Unwrap() error {
	return e.Err
}
