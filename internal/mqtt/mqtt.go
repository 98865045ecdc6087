// Package mqtt publishes controller events and receives remote commands.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// Topics
const (
	TopicEvents  = "irrigation/controller/events"
	TopicSystem  = "irrigation/controller/system"
	TopicCommand = "irrigation/controller/cmd"
)

// System event names
const (
	SystemStartup     = "STARTUP"
	SystemShutdown    = "SHUTDOWN"
	SystemHeartbeat   = "HEARTBEAT"
	SystemReconnected = "RECONNECTED"
	SystemOffline     = "OFFLINE"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a controller event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandHandler receives commands parsed from the command topic.
// It is called on a paho goroutine.
type CommandHandler func(logic.Command)

// SystemEvent is a lifecycle event (startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // shutdown only, e.g. "SIGTERM"
	RawPayload []byte // pre-formatted payload, sent as is when set
	Retained   bool
}

// Payload is the event message body.
type Payload struct {
	Irrigation EventPayload `json:"irrigation"`
}

// EventPayload contains the event details. Modes are numbered 1..4.
type EventPayload struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	Source     string `json:"source,omitempty"`
	Mode       int    `json:"mode,omitempty"`
	VolumeMl   int    `json:"volume_ml,omitempty"`
	Button     string `json:"button,omitempty"`
	Press      string `json:"press,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for a controller event.
func FormatPayload(event logic.Event) ([]byte, error) {
	p := EventPayload{
		Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
		Event:      string(event.Type),
		Source:     string(event.Source),
		Mode:       event.Mode.Number(),
		VolumeMl:   event.VolumeMl,
		DurationMs: event.Duration.Milliseconds(),
	}
	if event.Type == logic.EventButtonPress {
		p.Button = event.Button.String()
		p.Press = string(event.Press)
	}
	if event.Err != nil {
		p.Error = event.Err.Error()
	}
	return json.Marshal(Payload{Irrigation: p})
}

// SystemPayload is the body of simple system events (LWT, RECONNECTED).
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// CommandMessage is the body accepted on the command topic.
type CommandMessage struct {
	Command string `json:"command"`
	Mode    int    `json:"mode,omitempty"`
}

// ParseCommand decodes a command message. The mode is checked only for
// commands that need one; activate accepts an optional mode.
func ParseCommand(payload []byte) (logic.Command, error) {
	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return logic.Command{}, fmt.Errorf("decode command: %w", err)
	}
	kind, ok := logic.ParseCommandKind(msg.Command)
	if !ok {
		return logic.Command{}, fmt.Errorf("unknown command %q", msg.Command)
	}

	mode := logic.ModeNone
	if msg.Mode != 0 {
		m, ok := logic.ParseMode(msg.Mode)
		if !ok {
			return logic.Command{}, fmt.Errorf("invalid mode %d", msg.Mode)
		}
		mode = m
	}
	if kind.NeedsMode() && mode == logic.ModeNone {
		return logic.Command{}, errors.New("missing mode")
	}
	return logic.Command{Kind: kind, Mode: mode, Source: logic.SourceNetwork}, nil
}
