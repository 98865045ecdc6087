package display

import (
	"strings"
	"sync"
)

// Buffer is an in-memory Surface. The status page mirrors it.
type Buffer struct {
	mu       sync.RWMutex
	lines    [Rows][Cols]byte
	col, row int
}

// NewBuffer returns a cleared buffer.
func NewBuffer() *Buffer {
	b := &Buffer{}
	b.Clear()
	return b
}

func (b *Buffer) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for r := range b.lines {
		for c := range b.lines[r] {
			b.lines[r][c] = ' '
		}
	}
	b.col, b.row = 0, 0
	return nil
}

func (b *Buffer) SetCursor(col, row int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.col, b.row = col, row
	return nil
}

// Print writes at the cursor. Text past the end of the line is dropped.
func (b *Buffer) Print(s string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.row < 0 || b.row >= Rows {
		return nil
	}
	for i := 0; i < len(s) && b.col < Cols; i++ {
		if b.col >= 0 {
			b.lines[b.row][b.col] = s[i]
		}
		b.col++
	}
	return nil
}

// Lines returns the two lines with trailing spaces trimmed.
func (b *Buffer) Lines() [Rows]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out [Rows]string
	for r := range b.lines {
		out[r] = strings.TrimRight(string(b.lines[r][:]), " ")
	}
	return out
}

// Tee draws on several surfaces. The first error is returned after every
// surface has been written.
type Tee []Surface

func (t Tee) Clear() error {
	return t.each(func(s Surface) error { return s.Clear() })
}

func (t Tee) SetCursor(col, row int) error {
	return t.each(func(s Surface) error { return s.SetCursor(col, row) })
}

func (t Tee) Print(text string) error {
	return t.each(func(s Surface) error { return s.Print(text) })
}

func (t Tee) each(fn func(Surface) error) error {
	var first error
	for _, s := range t {
		if err := fn(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}
