// Package bridge taps a swcan.Node onto a real SocketCAN interface using
// github.com/brutella/can. brutella/can never carries the bit-banged
// protocol itself (that stays on the GPIO lines); it only mirrors decoded
// frames out to candump-style tooling and replays frames injected from
// SocketCAN back onto the bit-banged bus.
package bridge

import (
	"fmt"

	"github.com/brutella/can"
	"github.com/sirupsen/logrus"

	"github.com/wiredwave/swcan/pkg/swcan"
)

// Bridge mirrors frames between a swcan.Node and a SocketCAN interface.
type Bridge struct {
	node *swcan.Node
	bus  *can.Bus
	log  *logrus.Entry
}

// Open attaches to the named SocketCAN interface (e.g. "vcan0") and
// associates it with node. It does not start pumping frames; call Connect
// and PumpOnce.
func Open(node *swcan.Node, ifaceName string, logger *logrus.Logger) (*Bridge, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	bus, err := can.NewBusForInterfaceWithName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("bridge: open %q: %w", ifaceName, err)
	}
	b := &Bridge{
		node: node,
		bus:  bus,
		log:  logger.WithField("component", "bridge"),
	}
	bus.Subscribe(b)
	return b, nil
}

// Handle implements brutella/can's frame-handler interface: frames
// arriving from SocketCAN are replayed onto the bit-banged bus via
// SendFrame, so a standard tool (cansend, a CANopen master) can talk to a
// node that has no CAN controller at all.
func (b *Bridge) Handle(frame can.Frame) {
	if frame.ID > swcan.MaxID {
		b.log.WithField("id", frame.ID).Debug("bridge: dropping extended-ID frame, swcan is standard-only")
		return
	}
	out := swcan.Frame{ID: uint16(frame.ID), DLC: frame.Length}
	copy(out.Data[:], frame.Data[:frame.Length])
	if !b.node.SendFrame(out) {
		b.log.WithField("id", out.ID).Warn("bridge: replay onto bit-banged bus failed")
	}
}

// PumpOnce polls the node once and, on a decoded frame, republishes it onto
// SocketCAN via brutella/can's Publish. It is meant to be called from the
// same tight poll loop that would otherwise call node.ReadFrame directly.
func (b *Bridge) PumpOnce() {
	var f swcan.Frame
	if b.node.ReadFrame(&f) != swcan.MessageOk {
		return
	}
	wire := can.Frame{ID: uint32(f.ID), Length: f.DLC}
	copy(wire.Data[:], f.Data[:f.DLC])
	if err := b.bus.Publish(wire); err != nil {
		b.log.WithError(err).Warn("bridge: publish to SocketCAN failed")
	}
}

// Connect starts brutella/can's read loop; it blocks until the bus is
// closed or Connect errors, so callers run it in its own goroutine.
func (b *Bridge) Connect() error {
	return b.bus.ConnectAndPublish()
}

// Close releases the underlying SocketCAN socket.
func (b *Bridge) Close() error {
	return b.bus.Disconnect()
}
