package swcan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiredwave/swcan/pkg/gpio/sim"
)

// scriptedPins is a deterministic gpio.Host/DigitalOut/DigitalIn triple
// whose RX.Read() replies are drawn from a pre-built queue, so a transmit
// test can script exactly which of the sampled bits (arbitration checks,
// ACK slot) come back dominant without needing a second live node.
type scriptedPins struct {
	reads  []bool
	pos    int
	driven []int // 0 = SetLow, 1 = SetHigh, 2 = Release
	clock  uint64
}

func (p *scriptedPins) SetLow()           { p.driven = append(p.driven, 0) }
func (p *scriptedPins) SetHigh()          { p.driven = append(p.driven, 1) }
func (p *scriptedPins) Release()          { p.driven = append(p.driven, 2) }
func (p *scriptedPins) NowMicros() uint64 { return p.clock }
func (p *scriptedPins) DelayMicros(us uint32) {
	p.clock += uint64(us)
}
func (p *scriptedPins) Read() bool {
	if p.pos >= len(p.reads) {
		return true // idle bus reads recessive once the script runs out
	}
	v := p.reads[p.pos]
	p.pos++
	return v
}

// arbitrationRecessiveChecks returns the wire-level recessive-bit count
// SendFrame will sample RX against during the arbitration window for f, by
// running the identical encode+stuff loop tx.go uses.
func arbitrationRecessiveChecks(f Frame) int {
	control, dlcClamped := controlBits(f)
	crcVal := computeCRC(control)
	stuffable := appendMSBFirst(append([]int{}, control...), uint32(crcVal), crcBitsLen)
	dataFieldEnd := controlBitsLen + dlcBitsLen + int(dlcClamped)*8

	st := newStuffer(dominant)
	count := 0
	for i, bit := range stuffable {
		for _, wire := range st.push(bit) {
			if i < dataFieldEnd && bitIsRecessive(wire) {
				count++
			}
		}
	}
	return count
}

func newTestNode(pins *scriptedPins) *Node {
	n := New(pins, pins, pins, nil)
	if err := n.Begin(125_000); err != nil {
		panic(err)
	}
	return n
}

func TestSendFrameSucceedsOnAck(t *testing.T) {
	f := Frame{ID: 0x123, DLC: 1, Data: [MaxDataBytes]byte{0x42}}
	n := arbitrationRecessiveChecks(f)
	reads := make([]bool, n)
	for i := range reads {
		reads[i] = true // no competing transmitter: bus reads back what we drove
	}
	reads = append(reads, false) // ACK slot: another node pulls dominant

	pins := &scriptedPins{reads: reads}
	node := newTestNode(pins)

	ok := node.SendFrame(f)
	assert.True(t, ok)
	assert.EqualValues(t, 1, node.Stats().FramesSent)
	assert.Zero(t, node.TEC())
	assert.Equal(t, ErrorActive, node.State())
}

func TestSendFrameFailsOnMissingAck(t *testing.T) {
	f := Frame{ID: 0x123, DLC: 0}
	n := arbitrationRecessiveChecks(f)
	reads := make([]bool, n)
	for i := range reads {
		reads[i] = true
	}
	reads = append(reads, true) // ACK slot stays recessive: nobody acked

	pins := &scriptedPins{reads: reads}
	node := newTestNode(pins)

	ok := node.SendFrame(f)
	assert.False(t, ok)
	assert.EqualValues(t, 1, node.Stats().NoAcks)
	assert.Equal(t, 8, node.TEC())
}

func TestSendFrameLosesArbitrationOnFirstDifferingBit(t *testing.T) {
	// ID 0x200 = 010 0000 0000: its first identifier bit is dominant and its
	// second is recessive, so the first arbitration read happens on the
	// second bit. Scripting that read as dominant simulates a competing
	// lower-ID transmitter (e.g. 0x100 = 001 0000 0000) winning there.
	f := Frame{ID: 0x200, DLC: 0}
	pins := &scriptedPins{reads: []bool{false}}
	node := newTestNode(pins)

	ok := node.SendFrame(f)
	assert.False(t, ok)
	assert.EqualValues(t, 1, node.Stats().ArbitrationLosses)
	// Arbitration loss is never scored as a transmit error.
	assert.Zero(t, node.TEC())
	assert.Equal(t, ErrorActive, node.State())
	// The last recorded drive action after losing arbitration must be a
	// release, not a continued dominant/recessive assertion.
	require.NotEmpty(t, pins.driven)
	assert.Equal(t, 2, pins.driven[len(pins.driven)-1])
}

func TestSendFrameRefusesWhenBusOff(t *testing.T) {
	pins := &scriptedPins{}
	node := newTestNode(pins)
	node.fault.tec = 300
	node.fault.state = BusOff

	ok := node.SendFrame(Frame{ID: 1})
	assert.False(t, ok)
	assert.Zero(t, node.Stats().FramesSent)
}

// feedBits drives n's receiver state machine bit by bit, bypassing the
// ReadFrame timing gate, mirroring spec's described testable property of
// feeding a serialised (stuffed) bit stream straight into the receiver.
func feedBits(n *Node, bits []int) (ReadResult, Frame) {
	var result ReadResult
	var frame Frame
	for _, bit := range bits {
		result, frame = n.rxStep(bit)
	}
	return result, frame
}

// encodeWire returns the full physical (stuffed) bit stream for f,
// including the leading SOF bit, exactly as SendFrame would drive it onto
// the bus — used to feed a receiver directly in white-box tests.
func encodeWire(f Frame) []int {
	control, dlcClamped := controlBits(f)
	crcVal := computeCRC(control)
	stuffable := appendMSBFirst(append([]int{}, control...), uint32(crcVal), crcBitsLen)

	wire := []int{dominant}
	st := newStuffer(dominant)
	for _, bit := range stuffable {
		wire = append(wire, st.push(bit)...)
	}
	return wire
}

func newBareReceiver() *Node {
	pins := &scriptedPins{}
	return newTestNode(pins)
}

func TestReceiverDecodesWellFormedFrame(t *testing.T) {
	f := Frame{ID: 0x321, DLC: 4, Data: [MaxDataBytes]byte{1, 2, 3, 4}}
	wire := encodeWire(f)
	// Tail: CRC delimiter, ACK slot, ACK delimiter, 7 EOF bits, all
	// recessive on an otherwise idle bus.
	tail := make([]int, tailLen)
	for i := range tail {
		tail[i] = recessive
	}
	bits := append(wire, tail...)

	n := newBareReceiver()
	result, frame := feedBits(n, bits)
	assert.Equal(t, MessageOk, result)
	assert.Equal(t, f, frame)
	assert.EqualValues(t, 1, n.Stats().FramesReceivedOk)
	assert.Zero(t, n.REC())
}

func TestReceiverFlagsCRCMismatch(t *testing.T) {
	f := Frame{ID: 0x321, DLC: 1, Data: [MaxDataBytes]byte{0xFF}}
	control, dlcClamped := controlBits(f)
	crcVal := computeCRC(control) ^ 1 // corrupt the transmitted CRC value itself
	stuffable := appendMSBFirst(append([]int{}, control...), uint32(crcVal), crcBitsLen)

	wire := []int{dominant}
	st := newStuffer(dominant)
	for _, bit := range stuffable {
		wire = append(wire, st.push(bit)...)
	}
	require.Equal(t, dlcClamped, uint8(1))

	tail := make([]int, tailLen)
	for i := range tail {
		tail[i] = recessive
	}
	bits := append(wire, tail...)

	n := newBareReceiver()
	result, _ := feedBits(n, bits)
	assert.Equal(t, FrameError, result)
	assert.EqualValues(t, 1, n.Stats().CRCMismatches)
	assert.EqualValues(t, 1, n.REC())
}

func TestReceiverFlagsStuffViolation(t *testing.T) {
	n := newBareReceiver()
	bits := []int{dominant, dominant, dominant, dominant, dominant, dominant}
	result, _ := feedBits(n, bits)
	assert.Equal(t, FrameError, result)
	assert.EqualValues(t, 1, n.Stats().StuffErrors)
}

func TestReadFrameCadenceGatesSampling(t *testing.T) {
	pins := &scriptedPins{reads: []bool{true, true, true}}
	node := newTestNode(pins)

	var out Frame
	// Called immediately after Begin, before one bit time has elapsed.
	result := node.ReadFrame(&out)
	assert.Equal(t, NoMessage, result)
}

func TestReadFrameReturnsNoMessageWhenBusOff(t *testing.T) {
	pins := &scriptedPins{}
	node := newTestNode(pins)
	node.fault.tec = 300
	node.fault.state = BusOff

	var out Frame
	result := node.ReadFrame(&out)
	assert.Equal(t, NoMessage, result)
}

// TestSendFrameRoundTripOverSimBus runs two live nodes on a shared
// wall-clock-timed bus, one transmitting while the other polls ReadFrame
// concurrently, confirming the whole stack (arbitration, ACK, decode)
// behaves correctly under real goroutine interleaving and not just
// white-box bit injection.
func TestSendFrameRoundTripOverSimBus(t *testing.T) {
	bus := sim.NewBus()
	txPins, _ := bus.Attach()
	rxPins, _ := bus.Attach()

	sender := New(txPins, txPins, txPins, nil)
	receiver := New(rxPins, rxPins, rxPins, nil)
	// A 1kHz bit rate gives a 1ms bit time, comfortably larger than typical
	// goroutine-scheduling and time.Sleep jitter, so the receiver's fixed
	// phase-lock (established once, at SOF) stays well inside each bit's
	// stable window for the whole frame.
	require.NoError(t, sender.Begin(1_000))
	require.NoError(t, receiver.Begin(1_000))

	f := Frame{ID: 0x42, DLC: 2, Data: [MaxDataBytes]byte{0xDE, 0xAD}}

	result := make(chan bool, 1)
	go func() {
		result <- sender.SendFrame(f)
	}()

	var got Frame
	var readResult ReadResult
	deadline := 5000
	for i := 0; i < deadline; i++ {
		readResult = receiver.ReadFrame(&got)
		if readResult == MessageOk || readResult == FrameError {
			break
		}
		time.Sleep(100 * time.Microsecond)
	}

	sendOk := <-result
	assert.True(t, sendOk)
	assert.Equal(t, MessageOk, readResult)
	assert.Equal(t, f, got)
}
