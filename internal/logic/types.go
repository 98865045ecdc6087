// Package logic contains the input/timing core of the irrigation controller:
// debounced buttons, the mode/edit state machine, the pump timer and the
// per-tick orchestration that ties them together.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// Mode identifies one of the irrigation profiles. Modes are zero-based inside
// the core; ModeNone means no mode is selected.
type Mode int

const ModeNone Mode = -1

const (
	Mode1 Mode = iota
	Mode2
	Mode3
	Mode4
)

// NumModes is the number of irrigation profiles.
const NumModes = 4

// ParseMode converts the 1-based mode number used by the display and the
// network surfaces. It reports false for anything outside 1..NumModes.
func ParseMode(n int) (Mode, bool) {
	if n < 1 || n > NumModes {
		return ModeNone, false
	}
	return Mode(n - 1), true
}

// Valid reports whether m names a real mode.
func (m Mode) Valid() bool {
	return m >= Mode1 && m < NumModes
}

// Number returns the 1-based mode number, or 0 for ModeNone.
func (m Mode) Number() int {
	if !m.Valid() {
		return 0
	}
	return int(m) + 1
}

// String returns the mode label shown to users.
func (m Mode) String() string {
	if !m.Valid() {
		return "none"
	}
	return fmt.Sprintf("Mode %d", m.Number())
}

// ButtonID identifies a physical button.
type ButtonID int

const (
	ButtonMode1 ButtonID = iota
	ButtonMode2
	ButtonMode3
	ButtonMode4
	ButtonAction
)

// NumButtons is the number of physical buttons (4 mode + 1 action).
const NumButtons = 5

// ButtonForMode returns the mode button for m.
func ButtonForMode(m Mode) ButtonID {
	return ButtonID(m)
}

// Mode returns the mode a mode button selects, or ModeNone for the action button.
func (b ButtonID) Mode() Mode {
	if b >= ButtonMode1 && b <= ButtonMode4 {
		return Mode(b)
	}
	return ModeNone
}

func (b ButtonID) String() string {
	if b == ButtonAction {
		return "action"
	}
	if m := b.Mode(); m.Valid() {
		return fmt.Sprintf("mode%d", m.Number())
	}
	return "unknown"
}

// PressKind classifies a completed press by how long it was held.
type PressKind string

const (
	PressShort PressKind = "SHORT"
	PressLong  PressKind = "LONG"
)

// PressEvent is emitted once per completed press, at the debounced release.
type PressEvent struct {
	Kind     PressKind
	Duration time.Duration
}

// Source records where a state change originated.
type Source string

const (
	SourceButton   Source = "button"
	SourceNetwork  Source = "network"
	SourceSchedule Source = "schedule"
)

// EventType names a state change reported by the core.
type EventType string

const (
	EventButtonPress  EventType = "BUTTON_PRESS"
	EventModeSelected EventType = "MODE_SELECTED"
	EventEditEntered  EventType = "EDIT_ENTERED"
	EventVolumeChange EventType = "VOLUME_CHANGED"
	EventEditSaved    EventType = "EDIT_SAVED"
	EventSaveFailed   EventType = "SAVE_FAILED"
	EventPumpStarted  EventType = "PUMP_STARTED"
	EventPumpFinished EventType = "PUMP_FINISHED"
	EventPumpError    EventType = "PUMP_ERROR"
)

// Event is a state change to be logged, counted and published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Source    Source
	Mode      Mode
	VolumeMl  int
	Button    ButtonID
	Press     PressKind
	// Duration is the held time for BUTTON_PRESS and the run time for pump events.
	Duration time.Duration
	Err      error
}

// Input represents a single sample of logical button levels (true = pressed).
type Input struct {
	Pressed [NumButtons]bool
	Time    time.Time
}

// CommandKind names a network-originated request.
type CommandKind string

const (
	CommandSelect   CommandKind = "select"
	CommandIncrease CommandKind = "increase"
	CommandDecrease CommandKind = "decrease"
	CommandActivate CommandKind = "activate"
)

// Command is a request from the HTTP surface, MQTT or the scheduler.
// Mode is ignored for CommandActivate unless it is valid, in which case the
// mode is selected first.
type Command struct {
	Kind   CommandKind
	Mode   Mode
	Source Source
}

// ParseCommandKind validates a command name.
func ParseCommandKind(s string) (CommandKind, bool) {
	switch k := CommandKind(s); k {
	case CommandSelect, CommandIncrease, CommandDecrease, CommandActivate:
		return k, true
	}
	return "", false
}

// NeedsMode reports whether the command is meaningless without a valid mode.
func (k CommandKind) NeedsMode() bool {
	return k == CommandSelect || k == CommandIncrease || k == CommandDecrease
}

// Settings holds the tunables of the core.
type Settings struct {
	Debounce       time.Duration
	LongPress      time.Duration
	MinVolume      int
	MaxVolume      int
	Increment      int
	FlowRateMlPerS float64
	FinishPause    time.Duration
	// Defaults replace unusable stored volumes. Zero means DefaultVolumes.
	Defaults [NumModes]int
	// FinishBlocking stalls the loop for FinishPause after a run instead of
	// holding the "Done" screen as a timed sub-state.
	FinishBlocking bool
}

// Per-mode fallback volumes (ml), used when stored values are unusable.
var DefaultVolumes = [NumModes]int{700, 1500, 3000, 5000}

// DefaultSettings returns the factory tunables.
func DefaultSettings() Settings {
	return Settings{
		Debounce:       50 * time.Millisecond,
		LongPress:      time.Second,
		MinVolume:      100,
		MaxVolume:      6000,
		Increment:      100,
		FlowRateMlPerS: 250,
		FinishPause:    1200 * time.Millisecond,
		Defaults:       DefaultVolumes,
	}
}

// DefaultVolumes returns the configured fallback volumes.
func (s Settings) DefaultVolumes() [NumModes]int {
	if s.Defaults == ([NumModes]int{}) {
		return DefaultVolumes
	}
	return s.Defaults
}

// EventCounts tracks the number of notable events since startup.
type EventCounts struct {
	Presses    int
	PumpRuns   int
	Saves      int
	SaveErrors int
}

// State is a point-in-time copy of the core's state for readers outside the loop.
type State struct {
	Selected   Mode
	Editing    bool
	EditMode   Mode
	Volumes    [NumModes]int
	Pump       PumpState
	PumpMode   Mode
	PumpVolume int
	Remaining  time.Duration
	LastRun    time.Time
	Counts     EventCounts
}
