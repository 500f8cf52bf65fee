package opcr2

import "go.uber.org/zap"

// An Option configures a device and returns an Option that restores the
// previous value.
type Option func(d *Device) Option

// OnBus can be used to specify the SPI port name ("/dev/spidev0.0", "SPI0.0").
// By default, the bus name is "", which selects the first available port.
func OnBus(name string) Option {
	return func(d *Device) Option {
		old := d.busName
		d.busName = name
		return OnBus(old)
	}
}

// CSPin sets the BCM GPIO number driving the chip-select line. By default,
// GPIO8 (CE0) is used.
func CSPin(pin int) Option {
	return func(d *Device) Option {
		old := d.pin
		d.pin = pin
		return CSPin(old)
	}
}

// WithBus makes the device talk through b instead of opening a periph.io SPI
// port. OnBus and CSPin are ignored when a bus is given.
func WithBus(b Bus) Option {
	return func(d *Device) Option {
		old := d.bus
		d.bus = b
		return WithBus(old)
	}
}

// WithTiming replaces the delays used by the protocol.
func WithTiming(t Timing) Option {
	return func(d *Device) Option {
		old := d.timing
		d.timing = t
		return WithTiming(old)
	}
}

// WithSleeper replaces the delay primitive. By default, time.Sleep is used.
func WithSleeper(s Sleeper) Option {
	return func(d *Device) Option {
		old := d.sleep
		if s == nil {
			s = defaultSleeper
		}
		d.sleep = s
		return WithSleeper(old)
	}
}

// WithLogger sets the logger used to trace the handshake. By default, nothing
// is logged.
func WithLogger(l *zap.Logger) Option {
	return func(d *Device) Option {
		old := d.log
		if l == nil {
			l = zap.NewNop()
		}
		d.log = l
		return WithLogger(old)
	}
}
