// Package opcr2 drives an Alphasense OPC-R2 optical particle counter over SPI.
//
// The device firmware runs commands asynchronously, so every command is
// preceded by a polling handshake. A handshake that never sees the device
// ready is reported as false, not as an error: the command is still sent and
// it is up to the caller to decide what the result is worth. Errors are only
// returned when the bus itself fails.
package opcr2

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cgxeiji/opcr2/histogram"
)

// ErrClosed is returned when using a device after Close.
var ErrClosed = errors.New("device closed")

// Device defines an OPC-R2 device. A Device serializes its own operations and
// is safe to share, but one physical sensor must only be driven by one Device.
type Device struct {
	mu     sync.Mutex
	closed bool

	bus     Bus
	busName string
	pin     int

	timing Timing
	sleep  Sleeper
	log    *zap.Logger
}

// New returns a new OPC-R2 device. Unless WithBus is given, the periph.io host
// is initialized and the SPI port selected by OnBus is used with the
// chip-select pin selected by CSPin.
//
// The device is not powered on; call Begin.
func New(options ...Option) (*Device, error) {
	d := &Device{
		busName: busDef,
		pin:     csPin,
		timing:  DefaultTiming,
		sleep:   defaultSleeper,
		log:     zap.NewNop(),
	}
	for _, opt := range options {
		opt(d)
	}

	if d.bus == nil {
		bus, err := newPeriphBus(d.busName, d.pin)
		if err != nil {
			return nil, err
		}
		d.bus = bus
	}

	return d, nil
}

// Options applies options to an open device and returns an Option restoring
// the value set by the last one.
func (d *Device) Options(options ...Option) Option {
	d.mu.Lock()
	defer d.mu.Unlock()

	var old Option
	for _, opt := range options {
		old = opt(d)
	}
	return old
}

// Close releases the bus. The device is not powered off; call Off first if
// needed.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.bus.Close()
}

// Begin releases the chip-select line, lets the device settle and powers it
// on. See On for the meaning of the result.
func (d *Device) Begin() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false, fmt.Errorf("opcr2: %w", ErrClosed)
	}

	if err := d.bus.Select(false); err != nil {
		return false, fmt.Errorf("opcr2: could not begin: %w", err)
	}
	d.sleep.Sleep(d.timing.CSSetup)

	return d.on()
}

// On turns on the laser and fan, then waits for the flow to reach operating
// speed. The power command is sent even when the device did not confirm it was
// ready; false only means the handshake timed out, not that the command
// failed.
func (d *Device) On() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false, fmt.Errorf("opcr2: %w", ErrClosed)
	}

	return d.on()
}

func (d *Device) on() (bool, error) {
	ready, err := d.power(powerOn)
	if err != nil {
		return false, fmt.Errorf("opcr2: could not power on: %w", err)
	}
	d.sleep.Sleep(d.timing.PowerOnSettle)

	return ready, nil
}

// Off turns off the laser and fan. As with On, false means the handshake
// timed out before the command was sent.
func (d *Device) Off() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false, fmt.Errorf("opcr2: %w", ErrClosed)
	}

	ready, err := d.power(powerOff)
	if err != nil {
		return false, fmt.Errorf("opcr2: could not power off: %w", err)
	}
	return ready, nil
}

func (d *Device) power(state byte) (bool, error) {
	ready, err := d.awaitReady(CmdPower)
	if err != nil {
		return false, d.abort(err)
	}

	if err := d.bus.Select(true); err != nil {
		return false, d.abort(err)
	}
	if _, err := d.bus.Exchange(state); err != nil {
		return false, d.abort(err)
	}
	if state == powerOn {
		d.sleep.Sleep(d.timing.PollInterval)
	}
	if err := d.release(); err != nil {
		return false, err
	}

	return ready, nil
}

// Histogram reads and decodes one histogram frame. Reading a histogram resets
// the device counters.
//
// The frame is read even when the handshake times out; Frame.Ready records
// the handshake result and the checksum fields tell whether the transfer can
// be trusted.
func (d *Device) Histogram() (histogram.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return histogram.Frame{}, fmt.Errorf("opcr2: %w", ErrClosed)
	}

	raw, ready, err := d.readRaw()
	if err != nil {
		return histogram.Frame{}, fmt.Errorf("opcr2: could not read histogram: %w", err)
	}

	f := histogram.Decode(raw)
	f.Ready = ready
	if !ready {
		d.log.Warn("histogram read without ready confirmation")
	}
	return f, nil
}

func (d *Device) readRaw() (histogram.Raw, bool, error) {
	var raw histogram.Raw

	ready, err := d.awaitReady(CmdHistogram)
	if err != nil {
		return raw, false, d.abort(err)
	}

	if err := d.bus.Select(true); err != nil {
		return raw, false, d.abort(err)
	}
	d.sleep.Sleep(d.timing.ReadSetup)

	for i := range raw {
		b, err := d.bus.Exchange(CmdHistogram)
		if err != nil {
			return histogram.Raw{}, false, d.abort(fmt.Errorf("byte %d: %w", i, err))
		}
		raw[i] = b
		d.sleep.Sleep(d.timing.ByteGap)
	}

	if err := d.release(); err != nil {
		return histogram.Raw{}, false, err
	}
	return raw, ready, nil
}

// release deselects the device and ends the bus session.
func (d *Device) release() error {
	if err := d.bus.Select(false); err != nil {
		d.bus.End()
		return err
	}
	return d.bus.End()
}

// abort releases the bus after a failed transfer and returns err.
func (d *Device) abort(err error) error {
	if e := d.release(); e != nil {
		d.log.Warn("could not release bus", zap.Error(e))
	}
	return err
}
