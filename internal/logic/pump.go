package logic

import (
	"math"
	"time"
)

// PumpState is the pump timer's state.
type PumpState string

const (
	PumpIdle    PumpState = "IDLE"
	PumpRunning PumpState = "RUNNING"
	// PumpFinishing holds the "Done" screen until the finish pause expires.
	PumpFinishing PumpState = "FINISHED_DISPLAY"
)

// TimerResult is the outcome of one Pump.Tick.
type TimerResult int

const (
	TimerIdle TimerResult = iota
	TimerRunning
	TimerJustFinished
)

// TimerStatus is returned by Pump.Tick.
type TimerStatus struct {
	Result    TimerResult
	Remaining time.Duration
	// Err is the actuator error from switching the pump off, if any.
	Err error
}

// Pump converts a target volume into a timed relay actuation.
type Pump struct {
	flowRate    float64
	finishPause time.Duration
	blocking    bool
	sleep       func(time.Duration)

	actuator Actuator
	display  Display

	state      PumpState
	start      time.Time
	duration   time.Duration
	mode       Mode
	volume     int
	finishedAt time.Time
}

// NewPump creates an idle pump timer. sleep is only used when
// s.FinishBlocking is set; nil falls back to a no-op.
func NewPump(s Settings, a Actuator, d Display, sleep func(time.Duration)) *Pump {
	if sleep == nil {
		sleep = func(time.Duration) {}
	}
	return &Pump{
		flowRate:    s.FlowRateMlPerS,
		finishPause: s.FinishPause,
		blocking:    s.FinishBlocking,
		sleep:       sleep,
		actuator:    a,
		display:     d,
		state:       PumpIdle,
		mode:        ModeNone,
	}
}

// PumpDuration returns the run time for volumeMl at flowRate ml/s,
// rounded to the millisecond.
func PumpDuration(volumeMl int, flowRate float64) time.Duration {
	ms := math.Round(float64(volumeMl) / flowRate * 1000)
	return time.Duration(ms) * time.Millisecond
}

// Activate starts a run. It does not check whether a run is already in
// progress; callers must.
func (p *Pump) Activate(m Mode, volumeMl int, now time.Time) error {
	p.state = PumpRunning
	p.start = now
	p.duration = PumpDuration(volumeMl, p.flowRate)
	p.mode = m
	p.volume = volumeMl
	return p.actuator.SetPump(true)
}

// Tick advances the timer. The stop side effects (relay off, "Done" screen)
// happen exactly once, on the tick that returns TimerJustFinished.
func (p *Pump) Tick(now time.Time) TimerStatus {
	switch p.state {
	case PumpRunning:
		elapsed := now.Sub(p.start)
		if elapsed < p.duration {
			return TimerStatus{Result: TimerRunning, Remaining: p.duration - elapsed}
		}

		err := p.actuator.SetPump(false)
		p.display.ShowDone()
		if p.blocking {
			p.sleep(p.finishPause)
			p.display.ShowHome()
			p.state = PumpIdle
		} else {
			p.state = PumpFinishing
			p.finishedAt = now
		}
		return TimerStatus{Result: TimerJustFinished, Err: err}

	case PumpFinishing:
		if now.Sub(p.finishedAt) >= p.finishPause {
			p.state = PumpIdle
			p.display.ShowHome()
		}
	}

	return TimerStatus{Result: TimerIdle}
}

// CancelFinishDisplay drops a pending return to the home screen. Called when
// something else takes over the display during the finish pause.
func (p *Pump) CancelFinishDisplay() {
	if p.state == PumpFinishing {
		p.state = PumpIdle
	}
}

// Stop switches the relay off and abandons any run. Used at shutdown.
func (p *Pump) Stop() error {
	p.state = PumpIdle
	return p.actuator.SetPump(false)
}

// Running reports whether a run is in progress.
func (p *Pump) Running() bool {
	return p.state == PumpRunning
}

// State returns the timer state.
func (p *Pump) State() PumpState {
	return p.state
}

// Duration returns the run time computed at the last activation.
func (p *Pump) Duration() time.Duration {
	return p.duration
}

// Remaining returns the time left in the current run, or 0.
func (p *Pump) Remaining(now time.Time) time.Duration {
	if p.state != PumpRunning {
		return 0
	}
	if left := p.duration - now.Sub(p.start); left > 0 {
		return left
	}
	return 0
}

// Run returns the mode and volume of the current or last run.
func (p *Pump) Run() (Mode, int) {
	return p.mode, p.volume
}
