package subscriptionmanager

import (
	"context"
	"sync"
	"sync/atomic"
)

var _ SubscriptionManagerClient = (*SubscriptionManagerMock)(nil)

// SubscriptionManagerMock runs until stopped or until Finish is called.
type SubscriptionManagerMock struct {
	state     atomic.Int32
	done      chan struct{}
	doneOnce  sync.Once
	mu        sync.Mutex
	err       error
	startOnce sync.Once
}

func CreateSubscriptionManagerMock() *SubscriptionManagerMock {
	return &SubscriptionManagerMock{done: make(chan struct{})}
}

func (m *SubscriptionManagerMock) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.SetState(StateSubscribed)
		go func() {
			select {
			case <-ctx.Done():
				m.Finish(nil)
			case <-m.done:
			}
		}()
	})
}

func (m *SubscriptionManagerMock) Stop() {
	m.Finish(nil)
}

// Finish ends the mock with err as its terminal result.
func (m *SubscriptionManagerMock) Finish(err error) {
	m.doneOnce.Do(func() {
		m.mu.Lock()
		m.err = err
		m.mu.Unlock()
		m.SetState(StateDisconnected)
		close(m.done)
	})
}

func (m *SubscriptionManagerMock) Done() <-chan struct{} {
	return m.done
}

func (m *SubscriptionManagerMock) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *SubscriptionManagerMock) SetState(s State) {
	m.state.Store(int32(s))
}

func (m *SubscriptionManagerMock) State() State {
	return State(m.state.Load())
}

func (m *SubscriptionManagerMock) Ready() bool {
	return m.State() == StateSubscribed
}
