//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(pins []int) (*RealReader, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (r *RealReader) Read() ([]bool, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealReader) Close() error {
	return nil
}

// RealRelay is not available on non-Linux platforms.
type RealRelay struct{}

// NewRealRelay returns an error on non-Linux platforms.
func NewRealRelay(pin int, activeLow bool) (*RealRelay, error) {
	return nil, errUnsupported
}

// SetPump is not implemented on non-Linux platforms.
func (r *RealRelay) SetPump(on bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealRelay) Close() error {
	return nil
}
