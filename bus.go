package opcr2

import (
	"errors"
	"fmt"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

// ErrNoPin is returned when the chip-select pin cannot be found on the host.
var ErrNoPin = errors.New("chip-select pin not found")

// Bus is the byte transport to the device: a synchronous SPI session plus the
// chip-select line.
type Bus interface {
	// Begin opens a bus session. Calling Begin on an open session is a no-op.
	Begin() error
	// End closes the bus session. Calling End on a closed session is a no-op.
	End() error
	// Exchange clocks one byte out and returns the byte clocked in.
	Exchange(b byte) (byte, error)
	// Select drives the chip-select line; active pulls it low.
	Select(active bool) error
	// Close releases the bus and the chip-select line.
	Close() error
}

// periphBus drives the device through a spidev port with a GPIO chip-select.
// The kernel chip-select is disabled so the line stays asserted across the
// single byte transfers.
type periphBus struct {
	name string
	cs   gpio.PinOut

	port spi.PortCloser
	conn spi.Conn
}

func newPeriphBus(name string, pin int) (*periphBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("opcr2: could not initialize host: %w", err)
	}

	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if p == nil {
		return nil, fmt.Errorf("opcr2: %w: GPIO%d", ErrNoPin, pin)
	}

	return &periphBus{
		name: name,
		cs:   p,
	}, nil
}

func (b *periphBus) Begin() error {
	if b.port != nil {
		return nil
	}

	port, err := spireg.Open(b.name)
	if err != nil {
		return fmt.Errorf("opcr2: could not open SPI port: %w", err)
	}
	conn, err := port.Connect(busHz*physic.Hertz, spi.Mode1|spi.NoCS, 8)
	if err != nil {
		err = fmt.Errorf("opcr2: could not connect SPI port: %w", err)
		if e := port.Close(); e != nil {
			err = errors.Join(err, fmt.Errorf("opcr2: could not close SPI port: %w", e))
		}
		return err
	}

	b.port = port
	b.conn = conn
	return nil
}

func (b *periphBus) End() error {
	if b.port == nil {
		return nil
	}

	err := b.port.Close()
	b.port = nil
	b.conn = nil
	if err != nil {
		return fmt.Errorf("opcr2: could not close SPI port: %w", err)
	}
	return nil
}

func (b *periphBus) Exchange(w byte) (byte, error) {
	if b.conn == nil {
		if err := b.Begin(); err != nil {
			return 0, err
		}
	}

	r := make([]byte, 1)
	if err := b.conn.Tx([]byte{w}, r); err != nil {
		return 0, fmt.Errorf("opcr2: could not exchange byte: %w", err)
	}
	return r[0], nil
}

func (b *periphBus) Select(active bool) error {
	l := gpio.High
	if active {
		l = gpio.Low
	}
	if err := b.cs.Out(l); err != nil {
		return fmt.Errorf("opcr2: could not drive chip-select: %w", err)
	}
	return nil
}

func (b *periphBus) Close() error {
	err := b.End()
	if e := b.cs.Out(gpio.High); e != nil && err == nil {
		err = fmt.Errorf("opcr2: could not release chip-select: %w", e)
	}
	return err
}
