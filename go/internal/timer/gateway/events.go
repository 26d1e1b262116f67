package gateway

import (
	"github.com/mcdev12/synctimer/go/internal/timer"
	"github.com/mcdev12/synctimer/go/internal/timer/channel"
)

// FrameType identifies a server-to-client WebSocket frame.
type FrameType string

const (
	FrameProjection FrameType = "projection"
	FrameError      FrameType = "error"
)

// Frame is the envelope of every message pushed to a WebSocket client.
type Frame struct {
	Type  FrameType  `json:"type"`
	Data  *TimerView `json:"data,omitempty"`
	Error string     `json:"error,omitempty"`
}

// TimerView is the read-only view handed to the presentation layer.
type TimerView struct {
	timer.Projection
	Status channel.Status `json:"status"`
}

// TimerStateResponse is the body of GET /api/timer.
type TimerStateResponse struct {
	View     TimerView      `json:"view"`
	Snapshot timer.Snapshot `json:"snapshot"`
}

// CommandResponse is the body returned for an accepted command.
type CommandResponse struct {
	Changed bool      `json:"changed"`
	View    TimerView `json:"view"`
}
