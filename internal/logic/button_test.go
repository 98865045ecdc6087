package logic

import (
	"testing"
	"time"
)

func newTestButton() *Button {
	return NewButton(50*time.Millisecond, time.Second)
}

func TestNewButton(t *testing.T) {
	b := newTestButton()
	if b == nil {
		t.Fatal("NewButton returned nil")
	}
	if b.debounce != 50*time.Millisecond {
		t.Errorf("expected debounce 50ms, got %v", b.debounce)
	}
	if b.longPress != time.Second {
		t.Errorf("expected long press 1s, got %v", b.longPress)
	}
	if b.Pressed() {
		t.Error("new button should be released")
	}
	if !b.pressStart.IsZero() {
		t.Error("pressStart should be zero while released")
	}
}

func TestShortPress(t *testing.T) {
	b := newTestButton()

	// Raw goes down - starts debounce window
	if _, ok := b.Poll(true, ms(0)); ok {
		t.Error("expected no event on first raw change")
	}

	// Exactly the debounce duration is not enough
	b.Poll(true, ms(50))
	if b.Pressed() {
		t.Error("should not be pressed at exactly the debounce duration")
	}

	// Past debounce - stable pressed, still no event
	if _, ok := b.Poll(true, ms(51)); ok {
		t.Error("expected no event while pressed")
	}
	if !b.Pressed() {
		t.Fatal("should be pressed after debounce")
	}
	if !b.pressStart.Equal(ms(51)) {
		t.Errorf("pressStart: got %v, want %v", b.pressStart, ms(51))
	}

	// Release
	if _, ok := b.Poll(false, ms(300)); ok {
		t.Error("expected no event on raw release")
	}
	ev, ok := b.Poll(false, ms(351))
	if !ok {
		t.Fatal("expected press event after debounced release")
	}
	if ev.Kind != PressShort {
		t.Errorf("expected SHORT, got %s", ev.Kind)
	}
	if ev.Duration != 300*time.Millisecond {
		t.Errorf("expected 300ms, got %v", ev.Duration)
	}
	if b.Pressed() {
		t.Error("should be released after event")
	}
	if !b.pressStart.IsZero() {
		t.Error("pressStart should be cleared after release")
	}
}

func TestPressClassificationBoundary(t *testing.T) {
	tests := []struct {
		name string
		held time.Duration
		want PressKind
	}{
		{"well short", 200 * time.Millisecond, PressShort},
		{"just short", 999 * time.Millisecond, PressShort},
		{"boundary", time.Second, PressLong},
		{"just long", 1001 * time.Millisecond, PressLong},
		{"very long", 10 * time.Second, PressLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestButton()
			b.Poll(true, ms(0))
			b.Poll(true, ms(51)) // stable pressed at 51ms

			release := ms(51).Add(tt.held).Add(-51 * time.Millisecond)
			b.Poll(false, release)
			ev, ok := b.Poll(false, release.Add(51*time.Millisecond))
			if !ok {
				t.Fatal("expected press event")
			}
			if ev.Duration != tt.held {
				t.Errorf("duration: got %v, want %v", ev.Duration, tt.held)
			}
			if ev.Kind != tt.want {
				t.Errorf("kind: got %s, want %s", ev.Kind, tt.want)
			}
		})
	}
}

func TestGlitchRejectedWhileReleased(t *testing.T) {
	b := newTestButton()

	// 40ms glitch, sampled every 10ms
	for i := 0; i <= 40; i += 10 {
		if _, ok := b.Poll(true, ms(i)); ok {
			t.Fatalf("unexpected event at %dms", i)
		}
	}
	for i := 50; i <= 500; i += 10 {
		if _, ok := b.Poll(false, ms(i)); ok {
			t.Fatalf("unexpected event at %dms", i)
		}
		if b.Pressed() {
			t.Fatalf("glitch changed stable level at %dms", i)
		}
	}
}

func TestGlitchRejectedWhileHeld(t *testing.T) {
	b := newTestButton()
	b.Poll(true, ms(0))
	b.Poll(true, ms(60))
	if !b.Pressed() {
		t.Fatal("expected pressed")
	}

	// Contact bounce: 30ms of released in the middle of a hold
	b.Poll(false, ms(200))
	b.Poll(false, ms(230))
	b.Poll(true, ms(231))

	for i := 240; i < 600; i += 10 {
		if _, ok := b.Poll(true, ms(i)); ok {
			t.Fatalf("bounce produced an event at %dms", i)
		}
		if !b.Pressed() {
			t.Fatalf("bounce released the button at %dms", i)
		}
	}
}

func TestBouncyEdgeRestartsDebounce(t *testing.T) {
	b := newTestButton()

	// Bouncing press: the window restarts on every raw change
	b.Poll(true, ms(0))
	b.Poll(false, ms(20))
	b.Poll(true, ms(40))
	b.Poll(true, ms(80))
	if b.Pressed() {
		t.Error("should not be pressed 40ms after last bounce")
	}
	b.Poll(true, ms(91))
	if !b.Pressed() {
		t.Error("should be pressed 51ms after last bounce")
	}
}

func TestStuckButtonNeverEmits(t *testing.T) {
	b := newTestButton()
	start := t0
	for d := time.Duration(0); d < 10*time.Minute; d += 10 * time.Millisecond {
		if _, ok := b.Poll(true, start.Add(d)); ok {
			t.Fatalf("stuck button emitted at %v", d)
		}
	}
	if !b.Pressed() {
		t.Error("stuck button should read pressed")
	}
}

func TestEventEmittedOnce(t *testing.T) {
	b := newTestButton()
	b.Poll(true, ms(0))
	b.Poll(true, ms(60))
	b.Poll(false, ms(200))

	count := 0
	for i := 260; i < 2000; i += 10 {
		if _, ok := b.Poll(false, ms(i)); ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly 1 event, got %d", count)
	}
}

func TestHeldFor(t *testing.T) {
	b := newTestButton()
	if b.HeldFor(ms(0)) != 0 {
		t.Error("released button should report 0")
	}
	b.Poll(true, ms(0))
	b.Poll(true, ms(60))
	if got := b.HeldFor(ms(560)); got != 500*time.Millisecond {
		t.Errorf("HeldFor: got %v, want 500ms", got)
	}
}

func TestClassify(t *testing.T) {
	if Classify(0, time.Second) != PressShort {
		t.Error("0 should be SHORT")
	}
	if Classify(time.Second-time.Nanosecond, time.Second) != PressShort {
		t.Error("just under threshold should be SHORT")
	}
	if Classify(time.Second, time.Second) != PressLong {
		t.Error("threshold should be LONG")
	}
}
