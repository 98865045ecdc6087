//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const chipName = "gpiochip0"

// RealReader reads buttons from actual hardware using the Linux GPIO
// character device.
type RealReader struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// NewRealReader requests every pin as an input with the internal pull-up
// enabled.
func NewRealReader(pins []int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealReader{chip: chip}
	for _, pin := range pins {
		line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request button pin %d: %w", pin, err)
		}
		r.lines = append(r.lines, line)
	}
	return r, nil
}

// Read returns the logical button states.
// Inverts raw GPIO: raw low (0) = pressed, raw high (1) = released.
func (r *RealReader) Read() ([]bool, error) {
	out := make([]bool, len(r.lines))
	for i, line := range r.lines {
		v, err := line.Value()
		if err != nil {
			return nil, fmt.Errorf("read button pin %d: %w", line.Offset(), err)
		}
		out[i] = v == 0
	}
	return out, nil
}

// Close releases GPIO resources.
func (r *RealReader) Close() error {
	var errs []error
	for _, line := range r.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", line.Offset(), err))
		}
	}
	r.lines = nil
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealRelay drives the pump relay through one output line.
type RealRelay struct {
	chip      *gpiocdev.Chip
	line      *gpiocdev.Line
	activeLow bool
}

// NewRealRelay requests pin as an output, initially off.
func NewRealRelay(pin int, activeLow bool) (*RealRelay, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(level(false, activeLow)))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}
	return &RealRelay{chip: chip, line: line, activeLow: activeLow}, nil
}

// SetPump switches the relay.
func (r *RealRelay) SetPump(on bool) error {
	if err := r.line.SetValue(level(on, r.activeLow)); err != nil {
		return fmt.Errorf("set relay pin %d: %w", r.line.Offset(), err)
	}
	return nil
}

// Close switches the relay off and reconfigures the pin as an input so the
// relay module is not driven while the service is down.
func (r *RealRelay) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.SetValue(level(false, r.activeLow)); err != nil {
			errs = append(errs, fmt.Errorf("switch relay off: %w", err))
		}
		if err := r.line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure relay pin: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay pin: %w", err))
		}
		r.line = nil
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
