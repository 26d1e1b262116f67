package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/synctimer/go/internal/timer/bridge"
	"github.com/mcdev12/synctimer/go/internal/timer/orchestrator"
)

var (
	_ bridge.MetricsCollector       = (*Collector)(nil)
	_ orchestrator.MetricsCollector = (*Collector)(nil)
)

func TestCollectorRecordsBridgeEvents(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordPublish(true, 20*time.Millisecond)
	c.RecordPublish(false, time.Second)
	c.RecordRemoteSnapshot(true)
	c.RecordRemoteSnapshot(false)
	c.RecordRemoteSnapshot(false)
	c.RecordEchoDropped()
	c.RecordDecodeFailure()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.published))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.publishFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.remoteApplied))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.remoteStale))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.echoesDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decodeFailures))
}

func TestCollectorGauges(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordConnected(true)
	c.RecordPending(true)
	c.RecordRemainingSeconds(42)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connected))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pending))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.remainingSeconds))

	c.RecordConnected(false)
	c.RecordPending(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.connected))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.pending))
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordTick()
	c.RecordExpiry()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "synctimer_scheduler_ticks_total 1")
	assert.Contains(t, string(body), "synctimer_expiries_total 1")
}

func TestNewCollectorPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}
