package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted button levels.
type FakeReader struct {
	// Samples contains scripted logical levels, one slice per Read.
	// When exhausted, the last sample repeats.
	Samples [][]bool

	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples [][]bool) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeReader) Read() ([]bool, error) {
	if f.ReadError != nil {
		return nil, f.ReadError
	}
	if len(f.Samples) == 0 {
		return nil, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	out := make([]bool, len(sample))
	copy(out, sample)
	return out, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds to the first sample.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeRelay records every relay write.
type FakeRelay struct {
	mu      sync.Mutex
	on      bool
	history []bool

	// SetError, if set, is returned by SetPump after the state is recorded.
	SetError error
	Closed   bool
}

// SetPump records the new state.
func (f *FakeRelay) SetPump(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = on
	f.history = append(f.history, on)
	return f.SetError
}

// On reports the last written state.
func (f *FakeRelay) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// History returns every state written, oldest first.
func (f *FakeRelay) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.history))
	copy(out, f.history)
	return out
}

// Close switches the relay off.
func (f *FakeRelay) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = false
	f.Closed = true
	return nil
}
