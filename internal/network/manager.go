package network

import (
	"log"
	"sync/atomic"
	"time"
)

// Action is what the loop should do with the web server after a Step.
type Action int

const (
	ActionNone Action = iota
	ActionStartServer
	ActionStopServer
)

func (a Action) String() string {
	switch a {
	case ActionStartServer:
		return "start"
	case ActionStopServer:
		return "stop"
	}
	return "none"
}

// Manager probes connectivity at a fixed interval and reports edges.
// It is driven by the poll loop and not safe for concurrent use. The
// reconnector runs on its own goroutine, one attempt at a time.
type Manager struct {
	probe          Probe
	reconnector    Reconnector
	probeEvery     time.Duration
	reconnectEvery time.Duration

	online        bool
	serving       bool
	probed        bool
	lastProbe     time.Time
	lastReconnect time.Time

	reconnecting atomic.Bool
	done         chan struct{}
}

// NewManager creates a manager. reconnector may be nil.
func NewManager(probe Probe, reconnector Reconnector, probeEvery, reconnectEvery time.Duration) *Manager {
	return &Manager{
		probe:          probe,
		reconnector:    reconnector,
		probeEvery:     probeEvery,
		reconnectEvery: reconnectEvery,
	}
}

// Step probes if the interval has passed and returns the server edge, if
// any. While offline, the reconnector runs at most once per reconnect
// interval.
func (m *Manager) Step(now time.Time) Action {
	if m.probed && now.Sub(m.lastProbe) < m.probeEvery {
		return ActionNone
	}
	m.probed = true
	m.lastProbe = now

	online, err := m.probe.Connected()
	if err != nil {
		log.Printf("network: probe: %v", err)
		online = false
	}
	if online != m.online {
		log.Printf("network: online=%v", online)
	}
	m.online = online

	if !online && m.reconnector != nil && !m.reconnecting.Load() &&
		(m.lastReconnect.IsZero() || now.Sub(m.lastReconnect) >= m.reconnectEvery) {
		m.lastReconnect = now
		m.startReconnect()
	}

	switch {
	case online && !m.serving:
		m.serving = true
		return ActionStartServer
	case !online && m.serving:
		m.serving = false
		return ActionStopServer
	}
	return ActionNone
}

func (m *Manager) startReconnect() {
	m.reconnecting.Store(true)
	done := make(chan struct{})
	m.done = done
	go func() {
		defer close(done)
		defer m.reconnecting.Store(false)
		if err := m.reconnector.Reconnect(); err != nil {
			log.Printf("network: reconnect: %v", err)
		}
	}()
}

// Reconnecting reports whether a reconnect attempt is in flight.
func (m *Manager) Reconnecting() bool {
	return m.reconnecting.Load()
}

// Wait blocks until the current reconnect attempt, if any, has returned.
func (m *Manager) Wait() {
	if m.done != nil {
		<-m.done
	}
}

// Online returns the result of the last probe.
func (m *Manager) Online() bool {
	return m.online
}

// Serving reports whether the server should currently be running.
func (m *Manager) Serving() bool {
	return m.serving
}
