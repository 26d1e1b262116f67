package bridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/synctimer/go/internal/timer/channel"
)

// DefaultStaleThreshold is how long a snapshot may wait in the outbox before
// the bridge reports itself unhealthy.
const DefaultStaleThreshold = 30 * time.Second

type HealthStatus struct {
	Healthy      bool           `json:"healthy"`
	Status       channel.Status `json:"status"`
	Ready        bool           `json:"ready"`
	Pending      bool           `json:"pending"`
	PendingSince *time.Time     `json:"pendingSince,omitempty"`
	Errors       []string       `json:"errors"`
}

// Health reports whether this client is in sync with the channel. A client
// is unhealthy while disconnected, before its initial sync, or when a local
// change has waited longer than threshold to be published.
func (b *Bridge) Health(threshold time.Duration) HealthStatus {
	b.mu.Lock()
	status := HealthStatus{
		Healthy: true,
		Status:  b.status,
		Ready:   b.ready,
		Pending: b.pending != nil,
		Errors:  []string{},
	}
	since := b.pendingSince
	b.mu.Unlock()

	if status.Status != channel.StatusConnected {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("channel %s", status.Status))
	}
	if !status.Ready {
		status.Healthy = false
		status.Errors = append(status.Errors, "initial sync not complete")
	}
	if status.Pending {
		status.PendingSince = &since
		if waited := b.clock.Since(since); waited > threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("local change unpublished for %s", waited.Round(time.Second)))
		}
	}
	return status
}

// HealthHandler serves the bridge health as JSON, answering 503 when
// unhealthy.
func HealthHandler(b *Bridge, threshold time.Duration) http.Handler {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := b.Health(threshold)

		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Error().Err(err).Msg("failed to write health response")
		}
	})
}
