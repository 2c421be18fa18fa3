package swcan

import "github.com/sirupsen/logrus"

// faultConfinement is the single authority for TEC/REC/state on a node. It
// is intentionally mutated from both the transmit and receive paths; no
// caller should keep a shadow copy of these counters.
type faultConfinement struct {
	tec   int
	rec   int
	state NodeState
	log   *logrus.Entry
}

func newFaultConfinement(log *logrus.Entry) *faultConfinement {
	return &faultConfinement{log: log}
}

func (f *faultConfinement) reset() {
	f.tec = 0
	f.rec = 0
	f.state = ErrorActive
}

func (f *faultConfinement) reclassify(event FaultEvent) {
	prev := f.state
	f.state = classifyState(f.tec, f.rec)
	if f.state == prev {
		return
	}
	f.log.WithFields(logrus.Fields{
		"event": event.String(),
		"tec":   f.tec,
		"rec":   f.rec,
		"from":  prev.String(),
		"to":    f.state.String(),
	}).Warn("swcan: node state transition")
}

// onTxFailure scores a missing ACK as a transmit error. Arbitration loss is
// explicitly NOT routed here — see sendFrame.
func (f *faultConfinement) onTxFailure() {
	if f.state == BusOff {
		return
	}
	f.tec += 8
	f.reclassify(EventNoAck)
}

// onRxFailure scores a CRC mismatch, form error, or stuff error.
func (f *faultConfinement) onRxFailure(event FaultEvent) {
	if f.state == BusOff {
		return
	}
	f.rec++
	f.reclassify(event)
}

func (f *faultConfinement) onTxSuccess() {
	if f.tec > 0 {
		f.tec--
	}
	f.reclassify(EventTxSuccess)
}

func (f *faultConfinement) onRxSuccess() {
	if f.rec > 0 {
		f.rec--
	}
	f.reclassify(EventRxSuccess)
}
