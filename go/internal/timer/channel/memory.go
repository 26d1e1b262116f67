package channel

import (
	"context"
	"sync"
)

// DefaultHistoryDepth is the number of messages a channel retains.
const DefaultHistoryDepth = 10

// Memory is an in-process Channel. Subscribers share one history, which lets
// several clients in one process, or in a test, talk to each other.
// Deliveries are synchronous and include the publisher's own subscription.
type Memory struct {
	name  string
	depth int

	mu        sync.Mutex
	history   []Message
	listeners map[int]Listener
	nextID    int
	connected bool
	closed    bool
}

// NewMemory creates a connected in-memory channel retaining depth messages.
func NewMemory(name string, depth int) *Memory {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &Memory{
		name:      name,
		depth:     depth,
		listeners: make(map[int]Listener),
		connected: true,
	}
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.usableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	msg.Data = append([]byte(nil), msg.Data...)
	m.history = append(m.history, msg)
	if len(m.history) > m.depth {
		m.history = append([]Message(nil), m.history[len(m.history)-m.depth:]...)
	}
	listeners := m.snapshotListenersLocked()
	m.mu.Unlock()

	for _, l := range listeners {
		l.OnMessage(msg)
	}
	return nil
}

func (m *Memory) History(ctx context.Context, count int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.usableLocked(); err != nil {
		return nil, err
	}
	if count <= 0 || len(m.history) == 0 {
		return nil, nil
	}
	start := max(len(m.history)-count, 0)
	return append([]Message(nil), m.history[start:]...), nil
}

func (m *Memory) Subscribe(ctx context.Context, l Listener) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	connected := m.connected
	m.mu.Unlock()

	if connected {
		l.OnStatus(StatusConnected)
	} else {
		l.OnStatus(StatusDisconnected)
	}
	return &memorySubscription{m: m, id: id}, nil
}

// SetConnected simulates the transport going down or coming back. While
// disconnected, Publish and History fail with ErrDisconnected.
func (m *Memory) SetConnected(connected bool) {
	m.mu.Lock()
	if m.connected == connected || m.closed {
		m.mu.Unlock()
		return
	}
	m.connected = connected
	listeners := m.snapshotListenersLocked()
	m.mu.Unlock()

	status := StatusDisconnected
	if connected {
		status = StatusConnected
	}
	for _, l := range listeners {
		l.OnStatus(status)
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.listeners = make(map[int]Listener)
	return nil
}

func (m *Memory) usableLocked() error {
	if m.closed {
		return ErrClosed
	}
	if !m.connected {
		return ErrDisconnected
	}
	return nil
}

func (m *Memory) snapshotListenersLocked() []Listener {
	out := make([]Listener, 0, len(m.listeners))
	for i := 0; i < m.nextID; i++ {
		if l, ok := m.listeners[i]; ok {
			out = append(out, l)
		}
	}
	return out
}

type memorySubscription struct {
	m    *Memory
	id   int
	once sync.Once
}

func (s *memorySubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.m.mu.Lock()
		delete(s.m.listeners, s.id)
		s.m.mu.Unlock()
	})
	return nil
}
