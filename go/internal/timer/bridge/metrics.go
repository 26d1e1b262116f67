package bridge

import "time"

// MetricsCollector defines the interface for collecting bridge metrics
type MetricsCollector interface {
	RecordPublish(success bool, duration time.Duration)
	RecordRemoteSnapshot(applied bool)
	RecordEchoDropped()
	RecordDecodeFailure()
	RecordConnected(connected bool)
	RecordPending(pending bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordPublish(success bool, duration time.Duration) {}
func (NoOpMetricsCollector) RecordRemoteSnapshot(applied bool)                  {}
func (NoOpMetricsCollector) RecordEchoDropped()                                 {}
func (NoOpMetricsCollector) RecordDecodeFailure()                               {}
func (NoOpMetricsCollector) RecordConnected(connected bool)                     {}
func (NoOpMetricsCollector) RecordPending(pending bool)                         {}
