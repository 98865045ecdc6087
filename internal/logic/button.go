package logic

import "time"

// Button debounces one raw input line and reports completed presses.
type Button struct {
	debounce  time.Duration
	longPress time.Duration

	// Last raw level seen, and when it last changed
	rawPrev    bool
	lastChange time.Time
	// Debounced level (true = pressed)
	stable bool
	// Time the stable level became pressed; zero while released
	pressStart time.Time
}

// NewButton creates a released button with the given debounce and
// long-press thresholds.
func NewButton(debounce, longPress time.Duration) *Button {
	return &Button{
		debounce:  debounce,
		longPress: longPress,
	}
}

// Poll takes the current raw level and returns a press event when a press
// completes. The stable level only follows the raw level once it has been
// unchanged for longer than the debounce duration. A press is reported at the
// debounced release, never while the button is still held.
func (b *Button) Poll(pressed bool, now time.Time) (PressEvent, bool) {
	if pressed != b.rawPrev {
		// Raw level moved, restart the debounce window
		b.rawPrev = pressed
		b.lastChange = now
		return PressEvent{}, false
	}

	if pressed == b.stable {
		return PressEvent{}, false
	}

	if now.Sub(b.lastChange) <= b.debounce {
		return PressEvent{}, false
	}

	b.stable = pressed
	if pressed {
		b.pressStart = now
		return PressEvent{}, false
	}

	held := now.Sub(b.pressStart)
	b.pressStart = time.Time{}
	return PressEvent{Kind: Classify(held, b.longPress), Duration: held}, true
}

// Pressed returns the debounced level.
func (b *Button) Pressed() bool {
	return b.stable
}

// HeldFor returns how long the button has been stably pressed, or 0.
func (b *Button) HeldFor(now time.Time) time.Duration {
	if !b.stable {
		return 0
	}
	return now.Sub(b.pressStart)
}

// Classify returns PressLong for presses held at least longPress.
func Classify(held, longPress time.Duration) PressKind {
	if held < longPress {
		return PressShort
	}
	return PressLong
}
