package swcan

import "github.com/wiredwave/swcan/pkg/gpio"

// lineDriver is the thin abstraction over the two GPIO primitives plus
// timing the bit layer needs. After begin, the line is driven recessive
// (idle).
type lineDriver struct {
	host      gpio.Host
	tx        gpio.DigitalOut
	rx        gpio.DigitalIn
	bitTimeUs uint32
}

func newLineDriver(host gpio.Host, tx gpio.DigitalOut, rx gpio.DigitalIn) *lineDriver {
	return &lineDriver{host: host, tx: tx, rx: rx}
}

// begin computes bitTimeUs for baudrate and idles the line recessive.
func (l *lineDriver) begin(baudrate int) error {
	if baudrate <= 0 {
		return ErrIllegalBaudrate
	}
	l.bitTimeUs = uint32(1_000_000 / baudrate)
	l.driveRecessive()
	return nil
}

func (l *lineDriver) driveDominant()  { l.tx.SetLow() }
func (l *lineDriver) driveRecessive() { l.tx.SetHigh() }
func (l *lineDriver) release()        { l.tx.Release() }
func (l *lineDriver) sampleRX() bool  { return l.rx.Read() }

func (l *lineDriver) delayBit() { l.host.DelayMicros(l.bitTimeUs) }
func (l *lineDriver) now() uint64 { return l.host.NowMicros() }

// driveBit drives a single logical bit (0 = dominant, 1 = recessive) for
// exactly one bit time.
func (l *lineDriver) driveBit(bit int) {
	if bitIsRecessive(bit) {
		l.driveRecessive()
	} else {
		l.driveDominant()
	}
	l.delayBit()
}
