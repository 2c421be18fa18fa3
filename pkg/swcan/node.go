// Package swcan implements a software-only CAN 2.0A node: bit-level
// NRZ encode/decode with bit stuffing, bit-by-bit transmit arbitration and
// acknowledgement, a non-blocking tick-driven receiver, and a TEC/REC
// fault-confinement state machine. The package bit-bangs two GPIO lines
// through the gpio.Host/DigitalOut/DigitalIn primitives; it never talks to
// a CAN controller or SocketCAN directly — see pkg/bridge for that.
package swcan

import (
	"github.com/sirupsen/logrus"

	"github.com/wiredwave/swcan/internal/bitbuf"
	"github.com/wiredwave/swcan/pkg/gpio"
)

// rxBufferCapacity is the receiver's fixed-capacity logical-bit buffer
// size. The largest legal frame (DLC=8) needs
// controlBitsLen+dlcBitsLen+64+crcBitsLen = 97 logical bits, so 128 leaves
// headroom without risking overflow on a well-formed frame.
const rxBufferCapacity = 128

// Stats is a read-only snapshot of a node's lifetime counters, exposed
// alongside TEC/REC/state for observability — not part of the wire
// protocol and never consulted by it.
type Stats struct {
	FramesSent        uint64
	FramesReceivedOk  uint64
	ArbitrationLosses uint64
	NoAcks            uint64
	CRCMismatches     uint64
	FormErrors        uint64
	StuffErrors        uint64
}

// Node is the single object that owns the line driver, fault-confinement
// counters, and receiver working set for one bit-banged CAN endpoint.
// Counters and state are owned exclusively by the Node; a Frame passed to
// SendFrame/ReadFrame is owned by the caller.
type Node struct {
	line  *lineDriver
	fault *faultConfinement
	log   *logrus.Entry
	stats Stats

	rxState        rxSubState
	rxBuf          *bitbuf.Buffer
	rxStuff        *destuffer
	rxLastSample   uint64
	rxDLC          uint8
	rxStuffableEnd int
	rxTailPos      int
	rxCRCOk        bool
	rxPendingFrame Frame
}

// New constructs a node bound to the given TX/RX pins and host clock. It
// must be configured with Begin before use. A nil logger falls back to
// logrus's standard logger.
func New(host gpio.Host, tx gpio.DigitalOut, rx gpio.DigitalIn, logger *logrus.Logger) *Node {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithField("component", "swcan")
	n := &Node{
		line:  newLineDriver(host, tx, rx),
		fault: newFaultConfinement(entry),
		log:   entry,
		rxBuf: bitbuf.New(rxBufferCapacity),
	}
	n.resetReceiver()
	return n
}

// Begin configures the node for the given baudrate: computes bitTimeUs,
// idles the line recessive, arms the last-sample timestamp to now, and
// resets TEC/REC/state to zero/zero/Error-Active. It may be called again
// to force recovery out of Bus-Off — the core has no automatic recovery.
func (n *Node) Begin(baudrate int) error {
	if err := n.line.begin(baudrate); err != nil {
		return err
	}
	n.fault.reset()
	n.rxLastSample = n.line.now()
	n.resetReceiver()
	n.log.WithField("baudrate", baudrate).Info("swcan: node configured")
	return nil
}

// TEC returns the transmit error counter.
func (n *Node) TEC() int { return n.fault.tec }

// REC returns the receive error counter.
func (n *Node) REC() int { return n.fault.rec }

// State returns the node's fault-confinement state.
func (n *Node) State() NodeState { return n.fault.state }

// Stats returns a snapshot of the node's lifetime counters.
func (n *Node) Stats() Stats { return n.stats }
