package display

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultLCDAddr is the usual address of a PCF8574 LCD backpack.
const DefaultLCDAddr = 0x27

// PCF8574 pin mapping: P0=RS P1=RW P2=EN P3=backlight P4..P7=D4..D7
const (
	pinRS        = 0x01
	pinEN        = 0x04
	pinBacklight = 0x08
)

// HD44780 commands
const (
	cmdClear       = 0x01
	cmdEntryMode   = 0x06 // increment, no shift
	cmdDisplayOn   = 0x0C // display on, cursor off
	cmdFunctionSet = 0x28 // 4-bit, 2 lines, 5x8
	cmdSetDDRAM    = 0x80
)

var rowOffsets = [Rows]byte{0x00, 0x40}

// LCD is an HD44780 character display driven in 4-bit mode through a
// PCF8574 I2C expander.
type LCD struct {
	dev    *i2c.Dev
	closer interface{ Close() error }
	sleep  func(time.Duration)
}

// OpenLCD initialises the host drivers, opens the named I2C bus ("" for
// the first one) and initialises the display at addr.
func OpenLCD(busName string, addr uint16) (*LCD, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	lcd, err := NewLCD(bus, addr, time.Sleep)
	if err != nil {
		bus.Close()
		return nil, err
	}
	lcd.closer = bus
	return lcd, nil
}

// NewLCD runs the HD44780 4-bit initialisation sequence on bus.
func NewLCD(bus i2c.Bus, addr uint16, sleep func(time.Duration)) (*LCD, error) {
	l := &LCD{dev: &i2c.Dev{Bus: bus, Addr: addr}, sleep: sleep}

	l.sleep(50 * time.Millisecond)
	// Three 8-bit function sets, then switch to 4-bit
	for _, n := range []byte{0x30, 0x30, 0x30, 0x20} {
		if err := l.nibble(n); err != nil {
			return nil, fmt.Errorf("lcd init: %w", err)
		}
		l.sleep(5 * time.Millisecond)
	}
	for _, c := range []byte{cmdFunctionSet, cmdDisplayOn, cmdEntryMode} {
		if err := l.command(c); err != nil {
			return nil, fmt.Errorf("lcd init: %w", err)
		}
	}
	if err := l.Clear(); err != nil {
		return nil, fmt.Errorf("lcd init: %w", err)
	}
	return l, nil
}

func (l *LCD) Clear() error {
	if err := l.command(cmdClear); err != nil {
		return err
	}
	l.sleep(2 * time.Millisecond)
	return nil
}

func (l *LCD) SetCursor(col, row int) error {
	if row < 0 || row >= Rows || col < 0 || col >= Cols {
		return fmt.Errorf("cursor %d,%d out of range", col, row)
	}
	return l.command(cmdSetDDRAM | (rowOffsets[row] + byte(col)))
}

func (l *LCD) Print(s string) error {
	for i := 0; i < len(s); i++ {
		if err := l.send(s[i], pinRS); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the bus if OpenLCD opened it. The display keeps its
// contents.
func (l *LCD) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *LCD) command(c byte) error {
	return l.send(c, 0)
}

func (l *LCD) send(b, mode byte) error {
	if err := l.nibble(b&0xF0 | mode); err != nil {
		return err
	}
	return l.nibble(b<<4 | mode)
}

// nibble latches the high four bits of v with a pulse on EN.
func (l *LCD) nibble(v byte) error {
	v |= pinBacklight
	if _, err := l.dev.Write([]byte{v | pinEN, v}); err != nil {
		return fmt.Errorf("i2c write: %w", err)
	}
	return nil
}
