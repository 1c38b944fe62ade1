package metricsmanager

import (
	"sync/atomic"

	"github.com/goradd/maps"
)

var _ MetricsManager = (*MetricsMock)(nil)

type MetricsMock struct {
	ConnectAttemptCounter atomic.Int32
	ConnectFailureCounter atomic.Int32
	SubscribedCounter     atomic.Int32
	DisconnectCounter     atomic.Int32
	EventCounter          atomic.Int32
	FailedEventCounter    atomic.Int32
	RenderedCounter       maps.SafeMap[string, int]
}

func NewMetricsMock() *MetricsMock {
	return &MetricsMock{}
}

func (m *MetricsMock) Start() {
}

func (m *MetricsMock) Destroy() {
	m.ConnectAttemptCounter.Store(0)
	m.ConnectFailureCounter.Store(0)
	m.SubscribedCounter.Store(0)
	m.DisconnectCounter.Store(0)
	m.EventCounter.Store(0)
	m.FailedEventCounter.Store(0)
	m.RenderedCounter.Clear()
}

func (m *MetricsMock) ReportConnectAttempt() {
	m.ConnectAttemptCounter.Add(1)
}

func (m *MetricsMock) ReportConnectFailure() {
	m.ConnectFailureCounter.Add(1)
}

func (m *MetricsMock) ReportSubscribed() {
	m.SubscribedCounter.Add(1)
}

func (m *MetricsMock) ReportDisconnect() {
	m.DisconnectCounter.Add(1)
}

func (m *MetricsMock) ReportEvent() {
	m.EventCounter.Add(1)
}

func (m *MetricsMock) ReportFailedEvent() {
	m.FailedEventCounter.Add(1)
}

func (m *MetricsMock) ReportRendered(sink string) {
	m.RenderedCounter.Set(sink, m.RenderedCounter.Get(sink)+1)
}
