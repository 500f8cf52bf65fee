package opcr2

import "time"

// Timing holds every delay used when talking to the device. The zero value is
// not useful; start from DefaultTiming and override what is needed.
type Timing struct {
	// FlushGap separates the dummy bytes sent before polling.
	FlushGap time.Duration
	// FlushSettle is waited after the dummy bytes, before selecting the device.
	FlushSettle time.Duration
	// PollInterval separates two command bytes while waiting for Ready.
	PollInterval time.Duration
	// BusyBackoff is waited when the device answers Busy.
	BusyBackoff time.Duration
	// ResetBackoff is waited between closing and reopening the bus when the
	// device answers with an unexpected byte.
	ResetBackoff time.Duration
	// ReadySettle is waited once polling ends, whatever the outcome.
	ReadySettle time.Duration

	// CSSetup is waited after the chip-select line is first released.
	CSSetup time.Duration
	// PowerOnSettle lets the fan and laser reach operating speed.
	PowerOnSettle time.Duration

	// ReadSetup is waited between selecting the device and reading a frame.
	ReadSetup time.Duration
	// ByteGap separates two bytes of a frame.
	ByteGap time.Duration
}

// DefaultTiming follows the OPC-R2 interface manual: >10µs and <100µs between
// bytes, 10ms polling, >2s after an unexpected byte and 5-10s for the fan to
// spin up.
var DefaultTiming = Timing{
	FlushGap:     10 * time.Microsecond,
	FlushSettle:  10 * time.Millisecond,
	PollInterval: 10 * time.Millisecond,
	BusyBackoff:  2 * time.Second,
	ResetBackoff: 3 * time.Second,
	ReadySettle:  10 * time.Millisecond,

	CSSetup:       50 * time.Microsecond,
	PowerOnSettle: 5500 * time.Millisecond,

	ReadSetup: 50 * time.Millisecond,
	ByteGap:   50 * time.Microsecond,
}

// A Sleeper blocks for a duration.
type Sleeper interface {
	Sleep(d time.Duration)
}

type sleepFunc func(time.Duration)

func (f sleepFunc) Sleep(d time.Duration) { f(d) }

var defaultSleeper Sleeper = sleepFunc(time.Sleep)
