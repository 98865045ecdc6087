// Package display renders the controller screens onto a 16x2 character
// surface.
package display

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// Screen geometry
const (
	Cols = 16
	Rows = 2
)

// Surface is a character display.
type Surface interface {
	Clear() error
	SetCursor(col, row int) error
	Print(s string) error
}

// Screen implements logic.Display on a Surface. Surface errors are logged
// and otherwise ignored.
type Screen struct {
	surface   Surface
	running   bool
	countdown string
}

// NewScreen creates a Screen drawing on s.
func NewScreen(s Surface) *Screen {
	return &Screen{surface: s}
}

func (s *Screen) ShowHome() {
	s.draw("Irrigation", "Select a mode")
}

func (s *Screen) ShowMode(m logic.Mode, vol int) {
	s.draw(fmt.Sprintf("Mode %d", m.Number()), fmt.Sprintf("%d ml", vol))
}

func (s *Screen) ShowEdit(m logic.Mode, vol int) {
	s.draw(fmt.Sprintf("Edit mode %d", m.Number()), fmt.Sprintf("< %d ml >", vol))
}

func (s *Screen) ShowRunning(m logic.Mode, vol int) {
	s.draw(fmt.Sprintf("Pumping %d ml", vol), fmt.Sprintf("Mode %d", m.Number()))
	s.running = true
}

// ShowCountdown rewrites the second line of the running screen, and only
// when the shown text changes. Other screens are left alone.
func (s *Screen) ShowCountdown(remaining time.Duration) {
	if !s.running {
		return
	}
	text := Countdown(remaining)
	if text == s.countdown {
		return
	}
	s.countdown = text
	s.line(1, text)
}

func (s *Screen) ShowDone() {
	s.draw("Done", "")
}

// Countdown formats the remaining run time in tenths of a second, rounded
// up so a running pump never shows zero.
func Countdown(remaining time.Duration) string {
	if remaining < 0 {
		remaining = 0
	}
	tenths := (remaining + 99*time.Millisecond) / (100 * time.Millisecond)
	return fmt.Sprintf("%d.%ds left", tenths/10, tenths%10)
}

// Fit pads or truncates text to one display line.
func Fit(text string) string {
	if len(text) > Cols {
		return text[:Cols]
	}
	return text + strings.Repeat(" ", Cols-len(text))
}

func (s *Screen) draw(top, bottom string) {
	s.running = false
	s.countdown = ""
	if err := s.surface.Clear(); err != nil {
		log.Printf("display: clear: %v", err)
		return
	}
	s.line(0, top)
	s.line(1, bottom)
}

func (s *Screen) line(row int, text string) {
	if err := s.surface.SetCursor(0, row); err != nil {
		log.Printf("display: cursor: %v", err)
		return
	}
	if err := s.surface.Print(Fit(text)); err != nil {
		log.Printf("display: print: %v", err)
	}
}
