// Package channel defines the named publish/subscribe channel the timer
// clients share, and an in-process implementation of it.
package channel

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed channel.
	ErrClosed = errors.New("channel closed")
	// ErrDisconnected is returned when the transport is not connected.
	ErrDisconnected = errors.New("channel disconnected")
)

// Status is the connection status of a channel as seen by one client.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Message is one payload on the channel.
type Message struct {
	// ID identifies the message for transports that deduplicate retries.
	ID string
	// Publisher is the client identity of the sender.
	Publisher   string
	Data        []byte
	PublishedAt time.Time
}

// Listener receives live messages and connection status changes. Callbacks
// may arrive on transport goroutines and must not block.
type Listener interface {
	OnMessage(Message)
	OnStatus(Status)
}

// Subscription is a live registration of a Listener.
type Subscription interface {
	Unsubscribe() error
}

// Channel is a named message channel with short per-channel history.
type Channel interface {
	Name() string
	// Publish delivers msg to every subscriber and appends it to the
	// history.
	Publish(ctx context.Context, msg Message) error
	// History returns up to count of the most recent messages, oldest first.
	History(ctx context.Context, count int) ([]Message, error)
	// Subscribe registers l for live messages and status changes.
	Subscribe(ctx context.Context, l Listener) (Subscription, error)
	Close() error
}
