package metricsmanager

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/metricsmanager"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const sinkLabel = "sink"

var _ metricsmanager.MetricsManager = (*PrometheusMetric)(nil)

type PrometheusMetric struct {
	port int

	connectAttemptCounter prometheus.Counter
	connectFailureCounter prometheus.Counter
	subscribedCounter     prometheus.Counter
	disconnectCounter     prometheus.Counter
	eventCounter          prometheus.Counter
	failedEventCounter    prometheus.Counter
	renderedCounter       *prometheus.CounterVec

	// Cache to avoid allocating Labels maps on every call
	renderedCounterCache map[string]prometheus.Counter
	counterCacheMutex    sync.RWMutex
}

func NewPrometheusMetric(port int) *PrometheusMetric {
	return &PrometheusMetric{
		port: port,
		connectAttemptCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: "procmon_connect_attempts_total",
			Help: "The total number of connect and subscribe attempts",
		}),
		connectFailureCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: "procmon_connect_failures_total",
			Help: "The total number of failed connect or subscribe attempts",
		}),
		subscribedCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: "procmon_subscriptions_total",
			Help: "The total number of subscriptions established",
		}),
		disconnectCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: "procmon_disconnects_total",
			Help: "The total number of event streams lost after subscribing",
		}),
		eventCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: "procmon_events_total",
			Help: "The total number of process creation events handed to the sink",
		}),
		failedEventCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: "procmon_event_parse_failures_total",
			Help: "The total number of raw records dropped because they could not be parsed",
		}),
		renderedCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "procmon_rendered_events_total",
			Help: "The total number of events rendered by each sink",
		}, []string{sinkLabel}),
		renderedCounterCache: make(map[string]prometheus.Counter),
	}
}

func (p *PrometheusMetric) Start() {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.L().Info("prometheus metrics server started", helpers.Int("port", p.port), helpers.String("path", "/metrics"))
		if err := http.ListenAndServe(fmt.Sprintf(":%d", p.port), mux); err != nil {
			logger.L().Error("prometheus metrics server stopped", helpers.Error(err))
		}
	}()
}

func (p *PrometheusMetric) Destroy() {
	prometheus.Unregister(p.connectAttemptCounter)
	prometheus.Unregister(p.connectFailureCounter)
	prometheus.Unregister(p.subscribedCounter)
	prometheus.Unregister(p.disconnectCounter)
	prometheus.Unregister(p.eventCounter)
	prometheus.Unregister(p.failedEventCounter)
	prometheus.Unregister(p.renderedCounter)
}

func (p *PrometheusMetric) ReportConnectAttempt() {
	p.connectAttemptCounter.Inc()
}

func (p *PrometheusMetric) ReportConnectFailure() {
	p.connectFailureCounter.Inc()
}

func (p *PrometheusMetric) ReportSubscribed() {
	p.subscribedCounter.Inc()
}

func (p *PrometheusMetric) ReportDisconnect() {
	p.disconnectCounter.Inc()
}

func (p *PrometheusMetric) ReportEvent() {
	p.eventCounter.Inc()
}

func (p *PrometheusMetric) ReportFailedEvent() {
	p.failedEventCounter.Inc()
}

// getCachedRenderedCounter returns the counter for sink, creating it on first use
func (p *PrometheusMetric) getCachedRenderedCounter(sink string) prometheus.Counter {
	p.counterCacheMutex.RLock()
	counter, exists := p.renderedCounterCache[sink]
	p.counterCacheMutex.RUnlock()

	if exists {
		return counter
	}

	p.counterCacheMutex.Lock()
	defer p.counterCacheMutex.Unlock()

	if counter, exists := p.renderedCounterCache[sink]; exists {
		return counter
	}

	counter = p.renderedCounter.With(prometheus.Labels{sinkLabel: sink})
	p.renderedCounterCache[sink] = counter
	return counter
}

func (p *PrometheusMetric) ReportRendered(sink string) {
	p.getCachedRenderedCounter(sink).Inc()
}
