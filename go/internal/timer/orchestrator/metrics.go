package orchestrator

// MetricsCollector defines the interface for collecting scheduler metrics
type MetricsCollector interface {
	RecordTick()
	RecordExpiry()
	RecordRemainingSeconds(seconds int64)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordTick()                  {}
func (NoOpMetricsCollector) RecordExpiry()                {}
func (NoOpMetricsCollector) RecordRemainingSeconds(int64) {}
