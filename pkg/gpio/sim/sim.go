// Package sim implements an in-memory loopback CAN bus for tests: any
// number of nodes can attach, and the shared line reads dominant as soon
// as one attached node drives it dominant (wired-AND), exactly as a real
// two-wire differential bus does through its transceivers. The clock is
// real wall-clock time (time.Since of the bus's creation), so two Nodes
// attached to the same Bus and run in separate goroutines interleave the
// way two boards on a real bus would, with no manual clock stepping
// needed by the caller.
package sim

import (
	"sync"
	"time"
)

// Bus is a shared simulated CAN bus.
type Bus struct {
	mu       sync.Mutex
	dominant map[int]bool
	next     int
	start    time.Time
}

// NewBus returns an empty bus with its clock epoch starting now.
func NewBus() *Bus {
	return &Bus{dominant: make(map[int]bool), start: time.Now()}
}

// Attach registers a new participant and returns its Pins twice (the same
// value), which serves as the gpio.Host, DigitalOut and DigitalIn wired to
// this bus.
func (b *Bus) Attach() (*Pins, *Pins) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.dominant[id] = false
	b.mu.Unlock()
	p := &Pins{bus: b, id: id}
	return p, p
}

func (b *Bus) drive(id int, dominant bool) {
	b.mu.Lock()
	b.dominant[id] = dominant
	b.mu.Unlock()
}

// level reports the bus level: true = recessive, false = dominant.
func (b *Bus) level() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.dominant {
		if d {
			return false
		}
	}
	return true
}

func (b *Bus) now() uint64 {
	return uint64(time.Since(b.start).Microseconds())
}

// Pins implements gpio.Host, gpio.DigitalOut and gpio.DigitalIn for one
// participant attached to a Bus. TX and RX share the same struct because,
// electrically, they are the same wire on a real bus.
type Pins struct {
	bus *Bus
	id  int
}

func (p *Pins) SetLow()               { p.bus.drive(p.id, true) }
func (p *Pins) SetHigh()              { p.bus.drive(p.id, false) }
func (p *Pins) Release()              { p.bus.drive(p.id, false) }
func (p *Pins) Read() bool            { return p.bus.level() }
func (p *Pins) NowMicros() uint64     { return p.bus.now() }
func (p *Pins) DelayMicros(us uint32) { time.Sleep(time.Duration(us) * time.Microsecond) }

// Force attaches an extra participant that holds the line at the given
// level, bypassing any node's encoder. On the wired-AND bus only
// Force(true) changes what other participants read (dominant); a
// recessive force cannot override another participant's dominant drive.
func (b *Bus) Force(dominant bool) *Pins {
	p, _ := b.Attach()
	p.bus.drive(p.id, dominant)
	return p
}
