package metricsmanager

// MetricsManager is an interface for reporting pipeline metrics
type MetricsManager interface {
	Start()
	Destroy()
	ReportConnectAttempt()
	ReportConnectFailure()
	ReportSubscribed()
	ReportDisconnect()
	// ReportEvent counts an event handed to the sink.
	ReportEvent()
	// ReportFailedEvent counts a raw record dropped by normalization.
	ReportFailedEvent()
	ReportRendered(sink string)
}
