// Package record wraps gpio.Host/DigitalOut/DigitalIn with an injected
// *logrus.Entry, logging every line transition at Debug level. It changes
// nothing about the underlying primitives' behavior; it only observes
// them, for protocol-analyzer-style debugging of a bit-banged bus.
package record

import (
	"github.com/sirupsen/logrus"

	"github.com/wiredwave/swcan/pkg/gpio"
)

// Host wraps a gpio.Host, logging nothing itself (the clock and delay
// primitives carry no line state worth recording) but present so one
// Pins value can be passed everywhere a gpio.Host is expected.
type Host struct {
	gpio.Host
}

// NewHost wraps host. Kept symmetric with NewOut/NewIn even though it
// adds no logging of its own.
func NewHost(host gpio.Host) Host {
	return Host{Host: host}
}

// Out wraps a gpio.DigitalOut, logging SetLow/SetHigh/Release as they
// happen.
type Out struct {
	out  gpio.DigitalOut
	log  *logrus.Entry
	name string
}

// NewOut wraps out. name identifies the pin in logged fields (e.g. "tx").
func NewOut(out gpio.DigitalOut, log *logrus.Entry, name string) *Out {
	return &Out{out: out, log: log, name: name}
}

func (o *Out) SetLow() {
	o.out.SetLow()
	o.log.WithField("pin", o.name).Debug("record: dominant")
}

func (o *Out) SetHigh() {
	o.out.SetHigh()
	o.log.WithField("pin", o.name).Debug("record: recessive")
}

func (o *Out) Release() {
	o.out.Release()
	o.log.WithField("pin", o.name).Debug("record: released")
}

// In wraps a gpio.DigitalIn, logging only on a level change so a steady
// idle line doesn't flood the log at the bit rate Read is called.
type In struct {
	in       gpio.DigitalIn
	log      *logrus.Entry
	name     string
	lastSeen bool
	primed   bool
}

// NewIn wraps in. name identifies the pin in logged fields (e.g. "rx").
func NewIn(in gpio.DigitalIn, log *logrus.Entry, name string) *In {
	return &In{in: in, log: log, name: name}
}

func (i *In) Read() bool {
	v := i.in.Read()
	if !i.primed || v != i.lastSeen {
		i.primed = true
		i.lastSeen = v
		level := "dominant"
		if v {
			level = "recessive"
		}
		i.log.WithField("pin", i.name).Debugf("record: sampled %s", level)
	}
	return v
}
