package logic

import (
	"fmt"
	"testing"
	"time"
)

// fakeDisplay records screen changes. Countdown updates are kept apart
// because they happen on every tick of a run.
type fakeDisplay struct {
	calls      []string
	countdowns []time.Duration
}

func (d *fakeDisplay) ShowHome() { d.calls = append(d.calls, "home") }
func (d *fakeDisplay) ShowMode(m Mode, v int) { d.calls = append(d.calls, fmt.Sprintf("mode %d %d", m.Number(), v)) }
func (d *fakeDisplay) ShowEdit(m Mode, v int) { d.calls = append(d.calls, fmt.Sprintf("edit %d %d", m.Number(), v)) }
func (d *fakeDisplay) ShowRunning(m Mode, v int) { d.calls = append(d.calls, fmt.Sprintf("running %d %d", m.Number(), v)) }
func (d *fakeDisplay) ShowCountdown(r time.Duration) { d.countdowns = append(d.countdowns, r) }
func (d *fakeDisplay) ShowDone() { d.calls = append(d.calls, "done") }

func (d *fakeDisplay) last() string {
	if len(d.calls) == 0 {
		return ""
	}
	return d.calls[len(d.calls)-1]
}

type fakeActuator struct {
	on      bool
	history []bool
	err     error
}

func (a *fakeActuator) SetPump(on bool) error {
	a.on = on
	a.history = append(a.history, on)
	return a.err
}

type memStore struct {
	vols    [NumModes]int
	saves   [][NumModes]int
	loadErr error
	saveErr error
}

func (s *memStore) LoadVolumes() ([NumModes]int, error) {
	return s.vols, s.loadErr
}

func (s *memStore) SaveVolumes(v [NumModes]int) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.vols = v
	s.saves = append(s.saves, v)
	return nil
}

const tick = 10 * time.Millisecond

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// rig drives a Core the way the poll loop does, one 10ms tick at a time.
type rig struct {
	t      *testing.T
	core   *Core
	disp   *fakeDisplay
	act    *fakeActuator
	store  *memStore
	now    time.Time
	events []Event
}

func newRig(t *testing.T, vols [NumModes]int) *rig {
	t.Helper()
	return newRigWith(t, DefaultSettings(), &memStore{vols: vols})
}

func newRigWith(t *testing.T, s Settings, store *memStore) *rig {
	t.Helper()
	r := &rig{
		t:     t,
		disp:  &fakeDisplay{},
		act:   &fakeActuator{},
		store: store,
		now:   t0,
	}
	r.core = NewCore(s, Deps{Persistence: store, Display: r.disp, Actuator: r.act})
	return r
}

func (r *rig) step(in [NumButtons]bool) []Event {
	r.now = r.now.Add(tick)
	events := r.core.Tick(Input{Pressed: in, Time: r.now})
	r.events = append(r.events, events...)
	return events
}

func (r *rig) idle(d time.Duration) {
	for i := 0; i < int(d/tick); i++ {
		r.step([NumButtons]bool{})
	}
}

// press holds b for exactly hold (as measured by the debouncer) and then
// idles long enough for the release to be debounced.
func (r *rig) press(b ButtonID, hold time.Duration) {
	var in [NumButtons]bool
	in[b] = true
	for i := 0; i < int(hold/tick); i++ {
		r.step(in)
	}
	r.idle(100 * time.Millisecond)
}

func (r *rig) short(b ButtonID) { r.press(b, 200*time.Millisecond) }
func (r *rig) long(b ButtonID)  { r.press(b, 1500*time.Millisecond) }

func (r *rig) apply(cmd Command) []Event {
	events := r.core.Apply(cmd, r.now)
	r.events = append(r.events, events...)
	return events
}

func (r *rig) state() State {
	return r.core.State(r.now)
}

func (r *rig) countEvents(typ EventType) int {
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func ms(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Millisecond)
}
