package opcr2

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBus = errors.New("bus fault")

// fakeBus records everything the driver does to the bus. respond decides what
// the device clocks back for each byte written.
type fakeBus struct {
	respond func(b *fakeBus, w byte) byte

	open     bool
	selected bool

	begins int
	ends   int
	closes int

	written    []byte
	selWritten []byte

	// failAt makes the n-th exchange (1-based) fail.
	failAt int
}

func (b *fakeBus) Begin() error {
	if !b.open {
		b.begins++
	}
	b.open = true
	return nil
}

func (b *fakeBus) End() error {
	if b.open {
		b.ends++
	}
	b.open = false
	return nil
}

func (b *fakeBus) Exchange(w byte) (byte, error) {
	b.written = append(b.written, w)
	if b.failAt > 0 && len(b.written) == b.failAt {
		return 0, errBus
	}
	if b.selected {
		b.selWritten = append(b.selWritten, w)
	}
	if b.respond == nil {
		return 0, nil
	}
	return b.respond(b, w), nil
}

func (b *fakeBus) Select(active bool) error {
	b.selected = active
	return nil
}

func (b *fakeBus) Close() error {
	b.closes++
	b.open = false
	return nil
}

// always answers the same byte to command polling.
func always(status byte) func(*fakeBus, byte) byte {
	return func(_ *fakeBus, _ byte) byte { return status }
}

type fakeSleeper struct {
	slept []time.Duration
}

func (s *fakeSleeper) Sleep(d time.Duration) {
	s.slept = append(s.slept, d)
}

func (s *fakeSleeper) count(d time.Duration) int {
	n := 0
	for _, v := range s.slept {
		if v == d {
			n++
		}
	}
	return n
}

// testTiming uses distinct values so each delay can be counted.
var testTiming = Timing{
	FlushGap:      1,
	FlushSettle:   2,
	PollInterval:  3,
	BusyBackoff:   4,
	ResetBackoff:  5,
	ReadySettle:   6,
	CSSetup:       7,
	PowerOnSettle: 8,
	ReadSetup:     9,
	ByteGap:       10,
}

func newTestDevice(t *testing.T, bus *fakeBus) (*Device, *fakeSleeper) {
	t.Helper()

	s := &fakeSleeper{}
	d, err := New(WithBus(bus), WithTiming(testTiming), WithSleeper(s))
	require.NoError(t, err)
	return d, s
}
