package logic

import (
	"fmt"
	"time"
)

// Deps are the collaborators the core drives.
type Deps struct {
	Persistence Persistence
	Display     Display
	Actuator    Actuator
	// Sleep is used only for the blocking finish pause (Settings.FinishBlocking).
	Sleep func(time.Duration)
}

// Core owns every piece of controller state: the buttons, the volumes, the
// mode/edit state and the pump run. It is driven from a single loop
// goroutine through Tick and Apply; it is not safe for concurrent use.
type Core struct {
	settings Settings
	buttons  [NumButtons]*Button
	vols     *Volumes
	pump     *Pump
	ctrl     *Controller
	display  Display

	// Modes whose stored volume was replaced by a default at boot
	replaced []Mode
	loadErr  error
}

// NewCore loads the volumes and shows the home screen. A load failure is
// not fatal: the defaults are used and the error is kept for LoadError.
func NewCore(s Settings, deps Deps) *Core {
	fallback := s.DefaultVolumes()
	stored, err := deps.Persistence.LoadVolumes()
	if err != nil {
		stored = fallback
	}
	initial, replaced := ReplaceOutOfRange(stored, fallback, s.MinVolume, s.MaxVolume)

	vols := NewVolumes(s, initial)
	pump := NewPump(s, deps.Actuator, deps.Display, deps.Sleep)

	c := &Core{
		settings: s,
		vols:     vols,
		pump:     pump,
		ctrl:     NewController(vols, deps.Persistence, deps.Display, pump),
		display:  deps.Display,
		replaced: replaced,
		loadErr:  err,
	}
	for i := range c.buttons {
		c.buttons[i] = NewButton(s.Debounce, s.LongPress)
	}

	deps.Display.ShowHome()
	return c
}

// Tick runs one loop iteration: mode buttons, then the action button, then
// the pump timer. It returns the events produced, in order.
func (c *Core) Tick(in Input) []Event {
	now := in.Time

	for b := ButtonMode1; b < NumButtons; b++ {
		press, ok := c.buttons[b].Poll(in.Pressed[b], now)
		if !ok {
			continue
		}
		c.ctrl.counts.Presses++
		c.ctrl.emit(Event{
			Timestamp: now,
			Type:      EventButtonPress,
			Source:    SourceButton,
			Mode:      b.Mode(),
			Button:    b,
			Press:     press.Kind,
			Duration:  press.Duration,
		})
		c.ctrl.HandlePress(b, press, now)
	}

	c.tickPump(now)
	return c.ctrl.drain()
}

// TickTimer runs only the pump timer. The loop calls it when the buttons
// could not be read, so a running pump still stops on time.
func (c *Core) TickTimer(now time.Time) []Event {
	c.tickPump(now)
	return c.ctrl.drain()
}

func (c *Core) tickPump(now time.Time) {
	st := c.pump.Tick(now)
	switch st.Result {
	case TimerRunning:
		c.display.ShowCountdown(st.Remaining)
	case TimerJustFinished:
		m, v := c.pump.Run()
		c.ctrl.emit(Event{
			Timestamp: now,
			Type:      EventPumpFinished,
			Mode:      m,
			VolumeMl:  v,
			Duration:  c.pump.Duration(),
		})
		if st.Err != nil {
			c.ctrl.emit(Event{Timestamp: now, Type: EventPumpError, Mode: m, Err: st.Err})
		}
	}
}

// Apply executes a queued network command on the loop goroutine.
func (c *Core) Apply(cmd Command, now time.Time) []Event {
	c.ctrl.Apply(cmd, now)
	return c.ctrl.drain()
}

// Shutdown switches the pump off.
func (c *Core) Shutdown() error {
	if err := c.pump.Stop(); err != nil {
		return fmt.Errorf("stop pump: %w", err)
	}
	return nil
}

// State returns a copy of the current state.
func (c *Core) State(now time.Time) State {
	editing, editMode := c.ctrl.Editing()
	pm, pv := c.pump.Run()
	return State{
		Selected:   c.ctrl.Selected(),
		Editing:    editing,
		EditMode:   editMode,
		Volumes:    c.vols.All(),
		Pump:       c.pump.State(),
		PumpMode:   pm,
		PumpVolume: pv,
		Remaining:  c.pump.Remaining(now),
		LastRun:    c.ctrl.lastRun,
		Counts:     c.ctrl.counts,
	}
}

// Settings returns the tunables the core was built with.
func (c *Core) Settings() Settings {
	return c.settings
}

// ReplacedAtBoot lists the modes whose stored volume was unusable.
func (c *Core) ReplacedAtBoot() []Mode {
	return c.replaced
}

// LoadError returns the persistence error seen at boot, if any.
func (c *Core) LoadError() error {
	return c.loadErr
}

// PumpRunning reports whether a run is in progress.
func (c *Core) PumpRunning() bool {
	return c.pump.Running()
}
