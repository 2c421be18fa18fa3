// Package periphpins implements the gpio.Host/DigitalOut/DigitalIn
// primitives against real Raspberry Pi hardware, using periph.io/x/host's
// bcm283x driver to open GPIO pins, and golang.org/x/sys/unix for a
// CLOCK_MONOTONIC microsecond clock instead of periph's own (coarser)
// time source.
package periphpins

import (
	"fmt"

	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Clock is a golang.org/x/sys/unix CLOCK_MONOTONIC-backed microsecond time
// source, shared by every node on the same board.
type Clock struct{}

// NewClock initialises periph's host drivers (bcm283x among them) and
// returns a Clock. It must be called once per process before OpenOut or
// OpenIn.
func NewClock() (*Clock, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periphpins: host.Init: %w", err)
	}
	return &Clock{}, nil
}

// NowMicros reads CLOCK_MONOTONIC directly rather than through time.Now(),
// since bit-time sampling needs a precision tighter than time.Now()'s
// GC-affected path guarantees on a busy host.
func (*Clock) NowMicros() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint64(ts.Sec)*1_000_000 + uint64(ts.Nsec)/1_000
}

// DelayMicros busy-waits using the same clock, since a blocking
// time.Sleep on Linux is not guaranteed to return with microsecond
// precision at the sub-millisecond bit times this package is used at.
func (c *Clock) DelayMicros(us uint32) {
	deadline := c.NowMicros() + uint64(us)
	for c.NowMicros() < deadline {
	}
}

// Pin wraps a periph.io gpio.PinIO as both a DigitalOut and a DigitalIn,
// since a bit-banged CAN node's TX and RX are logically the same wire
// (open-drain, externally pulled up) even when wired to two separate
// physical GPIOs via a transceiver.
type Pin struct {
	io gpio.PinIO
}

// OpenOut configures name (e.g. "GPIO17") as an open-drain output idled
// recessive (high).
func OpenOut(name string) (*Pin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("periphpins: unknown pin %q", name)
	}
	if err := p.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("periphpins: configure %q as output: %w", name, err)
	}
	return &Pin{io: p}, nil
}

// OpenIn configures name as an input with an internal pull-up, matching
// the CAN RX line's idle-recessive default.
func OpenIn(name string) (*Pin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("periphpins: unknown pin %q", name)
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("periphpins: configure %q as input: %w", name, err)
	}
	return &Pin{io: p}, nil
}

func (p *Pin) SetLow()  { p.io.Out(gpio.Low) }
func (p *Pin) SetHigh() { p.io.Out(gpio.High) }

// Release switches the pin back to a pulled-up input, letting another
// node on the bus drive it dominant during the ACK slot.
func (p *Pin) Release() {
	p.io.In(gpio.PullUp, gpio.NoEdge)
}

// Read reports true for recessive (high), matching gpio.DigitalIn.
func (p *Pin) Read() bool {
	return p.io.Read() == gpio.High
}
