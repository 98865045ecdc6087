package logic

import "time"

// Persistence stores the target volumes across power cycles.
type Persistence interface {
	// LoadVolumes returns the stored volumes, substituting defaults for
	// values outside the sanity range.
	LoadVolumes() ([NumModes]int, error)

	// SaveVolumes writes all volumes. Failures are reported, never retried.
	SaveVolumes(vols [NumModes]int) error
}

// Display is the local two-line text surface. Calls are fire-and-forget.
type Display interface {
	ShowHome()
	ShowMode(m Mode, volumeMl int)
	ShowEdit(m Mode, volumeMl int)
	ShowRunning(m Mode, volumeMl int)
	ShowCountdown(remaining time.Duration)
	ShowDone()
}

// Actuator drives the pump relay. Polarity is the implementation's concern.
type Actuator interface {
	SetPump(on bool) error
}
