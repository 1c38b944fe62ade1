package subscriptionmanager

import (
	"context"
	"errors"
	"fmt"
)

// State is the position of the connect/subscribe state machine.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var ErrExhaustedRetries = errors.New("exhausted subscription retries")

// ExhaustedRetriesError is the terminal result when no attempt produced a subscription.
type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrExhaustedRetries, e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Last
}

func (e *ExhaustedRetriesError) Is(target error) bool {
	return target == ErrExhaustedRetries
}

// SubscriptionManagerClient produces process events into a hand-off channel and
// exposes a run handle to the host process.
type SubscriptionManagerClient interface {
	// Start launches the manager goroutine. Calls after the first are no-ops.
	Start(ctx context.Context)
	// Stop cancels the manager and waits for it to finish.
	Stop()
	// Done is closed when the manager goroutine has returned.
	Done() <-chan struct{}
	// Err is the terminal result, valid once Done is closed. Nil means a clean shutdown.
	Err() error
	State() State
	Ready() bool
}
