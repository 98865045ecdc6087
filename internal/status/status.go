// Package status provides a thread-safe snapshot of the controller for
// HTTP handlers, metrics and MQTT system events. The poll loop is the only
// writer.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// NetworkInfo is the host network state provided by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains controller configuration for display.
type Config struct {
	TickMs      int64
	DebounceMs  int64
	LongPressMs int64
	HeartbeatMs int64
	MinMl       int
	MaxMl       int
	IncrementMl int
	FlowMlPerS  float64
	Broker      string
	HTTPAddr    string
	WSBroker    string // websocket broker URL for the live page (empty = disabled)
	Schedules   []string
}

// Snapshot is a point-in-time view of the controller.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Controller    logic.State
	Display       [2]string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Online        bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds the latest snapshot behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Controller: logic.State{
				Selected: logic.ModeNone,
				EditMode: logic.ModeNone,
				PumpMode: logic.ModeNone,
				Pump:     logic.PumpIdle,
			},
		},
	}
}

// Update records the controller state and the lines on the display.
// Called from the poll loop on every tick.
func (t *Tracker) Update(state logic.State, display [2]string) {
	t.mu.Lock()
	t.snap.Controller = state
	t.snap.Display = display
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetOnline records the result of the last connectivity probe.
func (t *Tracker) SetOnline(online bool) {
	t.mu.Lock()
	t.snap.Online = online
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
