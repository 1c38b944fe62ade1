package subscriptionmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/eventsource"
	"github.com/kubescape/process-monitor/pkg/handoff"
	"github.com/kubescape/process-monitor/pkg/metricsmanager"
	"github.com/kubescape/process-monitor/pkg/processevent"
	"github.com/kubescape/process-monitor/pkg/subscriptionmanager"
	"go.uber.org/multierr"
)

const (
	DefaultMaxAttempts = 1000
	DefaultRetryDelay  = time.Second
)

type Config struct {
	MaxAttempts           int
	RetryDelay            time.Duration
	ReconnectOnDisconnect bool
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

var _ subscriptionmanager.SubscriptionManagerClient = (*SubscriptionManager)(nil)

// SubscriptionManager owns the session with the notification facility and is the
// single producer of the hand-off channel.
type SubscriptionManager struct {
	cfg     Config
	source  eventsource.EventSource
	out     *handoff.Channel[processevent.ProcessEvent]
	metrics metricsmanager.MetricsManager
	// timer drives the retry wait; nil uses a real timer
	timer backoff.Timer

	state atomic.Int32

	startOnce sync.Once
	cancelMu  sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
}

func CreateSubscriptionManager(cfg Config, source eventsource.EventSource, out *handoff.Channel[processevent.ProcessEvent], metrics metricsmanager.MetricsManager) *SubscriptionManager {
	return &SubscriptionManager{
		cfg:     cfg.withDefaults(),
		source:  source,
		out:     out,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

func (m *SubscriptionManager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		m.cancelMu.Lock()
		m.cancel = cancel
		m.cancelMu.Unlock()

		go func() {
			defer close(m.done)
			defer cancel()
			m.err = m.run(runCtx)
		}()
	})
}

func (m *SubscriptionManager) Stop() {
	// a manager that was never started is finished as is
	m.startOnce.Do(func() {
		close(m.done)
	})

	m.cancelMu.Lock()
	cancel := m.cancel
	m.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-m.done
}

func (m *SubscriptionManager) Done() <-chan struct{} {
	return m.done
}

func (m *SubscriptionManager) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

func (m *SubscriptionManager) State() subscriptionmanager.State {
	return subscriptionmanager.State(m.state.Load())
}

func (m *SubscriptionManager) Ready() bool {
	return m.State() == subscriptionmanager.StateSubscribed
}

func (m *SubscriptionManager) setState(s subscriptionmanager.State) {
	if old := subscriptionmanager.State(m.state.Swap(int32(s))); old != s {
		logger.L().Debug("SubscriptionManager - state changed", helpers.String("from", old.String()), helpers.String("to", s.String()))
	}
}

func (m *SubscriptionManager) run(ctx context.Context) error {
	for {
		stream, err := m.Establish(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		// cancellation unblocks a pending Next
		stopClose := context.AfterFunc(ctx, func() {
			_ = stream.Close()
		})
		err = m.receive(ctx, stream)
		stopClose()
		if closeErr := stream.Close(); closeErr != nil {
			logger.L().Warning("SubscriptionManager - failed to release subscription", helpers.Error(closeErr))
		}
		m.setState(subscriptionmanager.StateDisconnected)

		if err == nil {
			return nil
		}

		m.metrics.ReportDisconnect()
		logger.L().Warning("SubscriptionManager - disconnected from notification facility", helpers.Error(err))
		if !m.cfg.ReconnectOnDisconnect {
			return err
		}
		if !m.wait(ctx, m.cfg.RetryDelay) {
			return nil
		}
		logger.L().Info("SubscriptionManager - reconnecting")
	}
}

// wait sleeps for d on the retry timer. It reports false when ctx ends first.
func (m *SubscriptionManager) wait(ctx context.Context, d time.Duration) bool {
	timer := m.timer
	if timer == nil {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	}

	timer.Start(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C():
		return true
	}
}

// Establish connects and subscribes to process creation, retrying with a constant
// delay. It returns an *ExhaustedRetriesError once every attempt has failed, or the
// context error when cancelled.
func (m *SubscriptionManager) Establish(ctx context.Context) (eventsource.EventStream, error) {
	m.setState(subscriptionmanager.StateConnecting)

	attempts := 0
	var stream eventsource.EventStream
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		m.metrics.ReportConnectAttempt()

		s, err := m.subscribe(ctx)
		if err != nil {
			m.metrics.ReportConnectFailure()
			logger.L().Warning("SubscriptionManager - subscription attempt failed",
				helpers.Int("attempt", attempts),
				helpers.Int("maxAttempts", m.cfg.MaxAttempts),
				helpers.Error(err))
			return err
		}
		stream = s
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.cfg.RetryDelay), uint64(m.cfg.MaxAttempts-1)),
		ctx)

	if err := backoff.RetryNotifyWithTimer(operation, policy, nil, m.timer); err != nil {
		m.setState(subscriptionmanager.StateDisconnected)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		exhausted := &subscriptionmanager.ExhaustedRetriesError{Attempts: attempts, Last: err}
		logger.L().Error("SubscriptionManager - giving up", helpers.Int("attempts", attempts), helpers.Error(err))
		return nil, exhausted
	}

	m.setState(subscriptionmanager.StateSubscribed)
	m.metrics.ReportSubscribed()
	return stream, nil
}

func (m *SubscriptionManager) subscribe(ctx context.Context) (eventsource.EventStream, error) {
	conn, err := m.source.Connect(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := m.source.Subscribe(ctx, conn, eventsource.FilterProcessCreation)
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("close connection: %w", closeErr))
		}
		return nil, err
	}

	logger.L().Info("SubscriptionManager - subscribed to process creation", helpers.String("connection", conn.ID()))
	return &session{EventStream: stream, conn: conn}, nil
}

// receive pumps records until the stream ends. A nil result is a clean shutdown:
// the context was cancelled or the consumer closed the channel.
func (m *SubscriptionManager) receive(ctx context.Context, stream eventsource.EventStream) error {
	for {
		raw, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, eventsource.ErrStreamClosed) {
				return fmt.Errorf("event stream ended: %w", err)
			}
			return fmt.Errorf("event stream lost: %w", err)
		}

		event, err := processevent.Normalize(raw)
		if err != nil {
			m.metrics.ReportFailedEvent()
			logger.L().Warning("SubscriptionManager - dropping malformed record", helpers.Error(err))
			continue
		}

		if err := m.out.Push(event); err != nil {
			if errors.Is(err, handoff.ErrClosed) {
				logger.L().Debug("SubscriptionManager - consumer closed the channel, stopping")
				return nil
			}
			return fmt.Errorf("hand off event: %w", err)
		}
		m.metrics.ReportEvent()
	}
}

// session ties a stream to the connection it was subscribed on.
type session struct {
	eventsource.EventStream
	conn      eventsource.Connection
	closeOnce sync.Once
	closeErr  error
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = multierr.Combine(s.EventStream.Close(), s.conn.Close())
	})
	return s.closeErr
}
