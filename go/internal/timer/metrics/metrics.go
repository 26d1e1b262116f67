// Package metrics exposes the bridge and scheduler hooks as Prometheus
// metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "synctimer"

// Collector implements bridge.MetricsCollector and
// orchestrator.MetricsCollector.
type Collector struct {
	published       prometheus.Counter
	publishFailures prometheus.Counter
	publishLatency  prometheus.Histogram
	remoteApplied   prometheus.Counter
	remoteStale     prometheus.Counter
	echoesDropped   prometheus.Counter
	decodeFailures  prometheus.Counter
	ticks           prometheus.Counter
	expiries        prometheus.Counter

	connected        prometheus.Gauge
	pending          prometheus.Gauge
	remainingSeconds prometheus.Gauge
}

// NewCollector creates the timer metrics and registers them with reg. A nil
// reg registers with prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Total number of snapshots published to the channel",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Total number of failed snapshot publishes",
		}),
		publishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_latency_seconds",
			Help:      "Snapshot publish latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		remoteApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_snapshots_applied_total",
			Help:      "Total number of remote snapshots merged into local state",
		}),
		remoteStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_snapshots_stale_total",
			Help:      "Total number of remote snapshots ignored as not newer",
		}),
		echoesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "echoes_dropped_total",
			Help:      "Total number of own messages dropped on receipt",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Total number of channel messages that could not be decoded",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Total number of scheduler recomputations",
		}),
		expiries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiries_total",
			Help:      "Total number of runs expired by the scheduler",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_connected",
			Help:      "1 while the channel is connected",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending",
			Help:      "1 while a local snapshot waits to be published",
		}),
		remainingSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remaining_seconds",
			Help:      "Displayed remaining seconds at the last recomputation",
		}),
	}

	reg.MustRegister(
		c.published,
		c.publishFailures,
		c.publishLatency,
		c.remoteApplied,
		c.remoteStale,
		c.echoesDropped,
		c.decodeFailures,
		c.ticks,
		c.expiries,
		c.connected,
		c.pending,
		c.remainingSeconds,
	)

	return c
}

// Handler serves the metrics gathered by g. A nil g serves the default
// gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (c *Collector) RecordPublish(success bool, duration time.Duration) {
	if !success {
		c.publishFailures.Inc()
		return
	}
	c.published.Inc()
	c.publishLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordRemoteSnapshot(applied bool) {
	if applied {
		c.remoteApplied.Inc()
		return
	}
	c.remoteStale.Inc()
}

func (c *Collector) RecordEchoDropped()   { c.echoesDropped.Inc() }
func (c *Collector) RecordDecodeFailure() { c.decodeFailures.Inc() }

func (c *Collector) RecordConnected(connected bool) { c.connected.Set(boolToFloat(connected)) }
func (c *Collector) RecordPending(pending bool)     { c.pending.Set(boolToFloat(pending)) }

func (c *Collector) RecordTick()   { c.ticks.Inc() }
func (c *Collector) RecordExpiry() { c.expiries.Inc() }

func (c *Collector) RecordRemainingSeconds(seconds int64) {
	c.remainingSeconds.Set(float64(seconds))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
