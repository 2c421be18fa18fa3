package swcan

// SendFrame drives frame onto the bus and reports whether a dominant bit
// was observed in the ACK slot. It returns false without touching the bus
// if the node is in Bus-Off, and returns false after driving part or all
// of the frame on lost arbitration or if no ACK is observed — never
// panics, never blocks longer than one frame time
// (worst case around 135 bit times).
func (n *Node) SendFrame(frame Frame) bool {
	if n.fault.state == BusOff {
		return false
	}

	control, dlcClamped := controlBits(frame)
	crcVal := computeCRC(control)
	stuffable := appendMSBFirst(append([]int{}, control...), uint32(crcVal), crcBitsLen)
	dataFieldEnd := controlBitsLen + dlcBitsLen + int(dlcClamped)*8

	// Drive SOF; it seeds the stuffing run exactly as it would for a
	// receiver that just detected it.
	n.line.driveBit(dominant)
	stuff := newStuffer(dominant)

	for i, bit := range stuffable {
		arbitrationActive := i < dataFieldEnd
		for _, wire := range stuff.push(bit) {
			n.line.driveBit(wire)
			if arbitrationActive && bitIsRecessive(wire) {
				if !n.line.sampleRX() {
					// Another node is driving dominant over our recessive
					// bit: we lost arbitration. Losing arbitration is
					// normal multi-master behavior, not a fault, so it
					// does not count as a transmit error.
					n.stats.ArbitrationLosses++
					n.log.Debug("swcan: arbitration lost")
					n.line.release()
					return false
				}
			}
		}
	}

	// CRC delimiter: recessive, not stuffed, not arbitration-checked.
	n.line.driveBit(recessive)

	// ACK slot: release TX so another node may pull dominant.
	n.line.release()
	n.line.delayBit()
	acked := !n.line.sampleRX()
	n.line.driveRecessive()

	if !acked {
		n.stats.NoAcks++
		n.fault.onTxFailure()
		return false
	}

	// ACK delimiter + EOF.
	n.line.driveBit(recessive)
	for i := 0; i < eofBitsLen; i++ {
		n.line.driveBit(recessive)
	}

	n.stats.FramesSent++
	n.fault.onTxSuccess()
	return true
}
