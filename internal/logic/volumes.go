package logic

// Volumes holds the target volume of every mode, kept within [min, max].
type Volumes struct {
	min, max, inc int
	v             [NumModes]int
}

// NewVolumes creates the store from loaded values. Out-of-range values are
// replaced by the mode's default so the bounds hold from the start.
func NewVolumes(s Settings, initial [NumModes]int) *Volumes {
	vals, _ := ReplaceOutOfRange(initial, s.DefaultVolumes(), s.MinVolume, s.MaxVolume)
	return &Volumes{
		min: s.MinVolume,
		max: s.MaxVolume,
		inc: s.Increment,
		v:   vals,
	}
}

// Get returns the target volume of m.
func (v *Volumes) Get(m Mode) int {
	return v.v[m]
}

// All returns a copy of every target volume.
func (v *Volumes) All() [NumModes]int {
	return v.v
}

// Increase raises m by one increment, wrapping past max to min.
func (v *Volumes) Increase(m Mode) int {
	v.v[m] = WrapIncrease(v.v[m], v.inc, v.min, v.max)
	return v.v[m]
}

// Decrease lowers m by one increment, wrapping below min to max.
func (v *Volumes) Decrease(m Mode) int {
	v.v[m] = WrapDecrease(v.v[m], v.inc, v.min, v.max)
	return v.v[m]
}

// WrapIncrease adds inc; a result above max snaps to min.
func WrapIncrease(v, inc, min, max int) int {
	v += inc
	if v > max {
		v = min
	}
	return v
}

// WrapDecrease subtracts inc; a result below min snaps to max.
func WrapDecrease(v, inc, min, max int) int {
	v -= inc
	if v < min {
		v = max
	}
	return v
}

// SanitizeVolumes replaces every value outside [min, max] with the mode's
// entry in DefaultVolumes and reports which modes were replaced.
func SanitizeVolumes(vals [NumModes]int, min, max int) ([NumModes]int, []Mode) {
	return ReplaceOutOfRange(vals, DefaultVolumes, min, max)
}

// ReplaceOutOfRange is SanitizeVolumes with explicit fallbacks.
func ReplaceOutOfRange(vals, fallback [NumModes]int, min, max int) ([NumModes]int, []Mode) {
	var replaced []Mode
	for i, v := range vals {
		if v < min || v > max {
			vals[i] = fallback[i]
			replaced = append(replaced, Mode(i))
		}
	}
	return vals, replaced
}
