// Package gpio provides button input and relay output with hardware
// abstraction. The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the button inputs.
type Reader interface {
	// Read returns the logical level of every button, in pin order.
	// Buttons are wired to ground with pull-ups: raw low = pressed.
	Read() ([]bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Relay drives the pump relay.
type Relay interface {
	// SetPump switches the pump. Polarity is handled by the implementation.
	SetPump(on bool) error

	// Close switches the relay off and releases the line.
	Close() error
}

// Default pin assignments (BCM numbering): mode 1-4, then action.
var DefaultButtonPins = []int{5, 6, 13, 19, 26}

// DefaultRelayPin drives the pump relay module.
const DefaultRelayPin = 17

// level converts a logical state to a raw line value.
func level(on, activeLow bool) int {
	if on != activeLow {
		return 1
	}
	return 0
}
