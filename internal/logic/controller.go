package logic

import "time"

// Controller is the mode-select / edit-mode state machine. Buttons and
// network commands go through the same operations so both input paths share
// the wrap, persistence and activation rules.
type Controller struct {
	vols    *Volumes
	persist Persistence
	display Display
	pump    *Pump

	selected Mode
	editing  bool
	editMode Mode

	counts  EventCounts
	lastRun time.Time
	pending []Event
}

// NewController creates a controller in IDLE_SELECT with no mode selected.
func NewController(vols *Volumes, persist Persistence, display Display, pump *Pump) *Controller {
	return &Controller{
		vols:     vols,
		persist:  persist,
		display:  display,
		pump:     pump,
		selected: ModeNone,
		editMode: ModeNone,
	}
}

// HandlePress applies a completed button press.
func (c *Controller) HandlePress(b ButtonID, press PressEvent, now time.Time) {
	if b == ButtonAction {
		c.handleAction(press.Kind, now)
		return
	}
	if m := b.Mode(); m.Valid() {
		c.handleMode(m, press.Kind, now)
	}
}

func (c *Controller) handleMode(m Mode, kind PressKind, now time.Time) {
	if c.editing {
		// Only the mode being edited reacts, and only to short presses
		if kind == PressShort && m == c.editMode {
			c.adjust(m, c.vols.Increase, false, SourceButton, now)
		}
		return
	}

	if kind == PressShort {
		c.selectMode(m, SourceButton, now)
		return
	}
	c.enterEdit(m, now)
}

func (c *Controller) handleAction(kind PressKind, now time.Time) {
	if c.editing {
		if kind == PressShort {
			c.adjust(c.editMode, c.vols.Decrease, false, SourceButton, now)
			return
		}
		c.exitEdit(now)
		return
	}

	// Long action press outside edit mode is reserved
	if kind == PressShort {
		c.activate(SourceButton, now)
	}
}

// Apply executes a network-originated command. Commands that need a mode
// and carry an invalid one are ignored.
func (c *Controller) Apply(cmd Command, now time.Time) {
	if cmd.Kind.NeedsMode() && !cmd.Mode.Valid() {
		return
	}
	switch cmd.Kind {
	case CommandSelect:
		if !c.editing {
			c.selectMode(cmd.Mode, cmd.Source, now)
		}
	case CommandIncrease:
		c.adjust(cmd.Mode, c.vols.Increase, true, cmd.Source, now)
	case CommandDecrease:
		c.adjust(cmd.Mode, c.vols.Decrease, true, cmd.Source, now)
	case CommandActivate:
		if c.editing {
			return
		}
		if cmd.Mode.Valid() && cmd.Mode != c.selected {
			c.selectMode(cmd.Mode, cmd.Source, now)
		}
		c.activate(cmd.Source, now)
	}
}

func (c *Controller) selectMode(m Mode, src Source, now time.Time) {
	c.selected = m
	c.takeDisplay()
	c.display.ShowMode(m, c.vols.Get(m))
	c.emit(Event{Timestamp: now, Type: EventModeSelected, Source: src, Mode: m, VolumeMl: c.vols.Get(m)})
}

func (c *Controller) enterEdit(m Mode, now time.Time) {
	c.editing = true
	c.editMode = m
	c.takeDisplay()
	c.display.ShowEdit(m, c.vols.Get(m))
	c.emit(Event{Timestamp: now, Type: EventEditEntered, Source: SourceButton, Mode: m, VolumeMl: c.vols.Get(m)})
}

func (c *Controller) exitEdit(now time.Time) {
	m := c.editMode
	c.save(SourceButton, now)
	c.editing = false
	c.editMode = ModeNone
	c.takeDisplay()
	c.display.ShowHome()
	c.emit(Event{Timestamp: now, Type: EventEditSaved, Source: SourceButton, Mode: m, VolumeMl: c.vols.Get(m)})
}

// adjust moves one volume by step. Button edits are saved when edit mode
// exits; network edits are saved immediately.
func (c *Controller) adjust(m Mode, step func(Mode) int, save bool, src Source, now time.Time) {
	v := step(m)

	switch {
	case c.editing && c.editMode == m:
		c.takeDisplay()
		c.display.ShowEdit(m, v)
	case !c.editing:
		c.takeDisplay()
		c.display.ShowMode(m, v)
	}

	c.emit(Event{Timestamp: now, Type: EventVolumeChange, Source: src, Mode: m, VolumeMl: v})
	if save {
		c.save(src, now)
	}
}

func (c *Controller) activate(src Source, now time.Time) {
	if !c.selected.Valid() || c.pump.Running() {
		return
	}
	m := c.selected
	v := c.vols.Get(m)

	err := c.pump.Activate(m, v, now)
	c.counts.PumpRuns++
	c.lastRun = now
	c.display.ShowRunning(m, v)
	c.emit(Event{Timestamp: now, Type: EventPumpStarted, Source: src, Mode: m, VolumeMl: v, Duration: c.pump.Duration()})
	if err != nil {
		c.emit(Event{Timestamp: now, Type: EventPumpError, Source: src, Mode: m, Err: err})
	}
}

func (c *Controller) save(src Source, now time.Time) {
	if err := c.persist.SaveVolumes(c.vols.All()); err != nil {
		c.counts.SaveErrors++
		c.emit(Event{Timestamp: now, Type: EventSaveFailed, Source: src, Mode: ModeNone, Err: err})
		return
	}
	c.counts.Saves++
}

// takeDisplay is called before any screen change so a pending return to
// the home screen after a run does not overwrite it.
func (c *Controller) takeDisplay() {
	c.pump.CancelFinishDisplay()
}

func (c *Controller) emit(e Event) {
	c.pending = append(c.pending, e)
}

func (c *Controller) drain() []Event {
	events := c.pending
	c.pending = nil
	return events
}

// Selected returns the selected mode, or ModeNone.
func (c *Controller) Selected() Mode {
	return c.selected
}

// Editing returns whether edit mode is active and which mode is being edited.
func (c *Controller) Editing() (bool, Mode) {
	return c.editing, c.editMode
}
