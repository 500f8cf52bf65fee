package opcr2

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/periph/conn/conntest"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpiotest"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/conn/spi/spitest"
)

const testPort = "OPCR2TEST"

var (
	registerOnce sync.Once

	portMu sync.Mutex
	// newPort returns the port handed out by the next open.
	newPort func() *spitest.Playback
	opens   int
)

// newTestPeriphBus returns a periphBus on a playback SPI port; every open
// plays back ops.
func newTestPeriphBus(t *testing.T, ops ...conntest.IO) (*periphBus, *gpiotest.Pin) {
	t.Helper()

	registerOnce.Do(func() {
		err := spireg.Register(testPort, nil, -1, func() (spi.PortCloser, error) {
			portMu.Lock()
			defer portMu.Unlock()
			opens++
			return newPort(), nil
		})
		require.NoError(t, err)
	})

	setPort(func() *spitest.Playback {
		return &spitest.Playback{
			Playback: conntest.Playback{Ops: append([]conntest.IO(nil), ops...)},
		}
	})

	pin := &gpiotest.Pin{N: "GPIO8", Num: 8}
	return &periphBus{name: testPort, cs: pin}, pin
}

func setPort(f func() *spitest.Playback) {
	portMu.Lock()
	defer portMu.Unlock()
	opens = 0
	newPort = f
}

func openCount() int {
	portMu.Lock()
	defer portMu.Unlock()
	return opens
}

func TestPeriphSelect(t *testing.T) {
	b, pin := newTestPeriphBus(t)

	require.NoError(t, b.Select(true))
	assert.Equal(t, gpio.Low, pin.Read(), "active chip-select is low")

	require.NoError(t, b.Select(false))
	assert.Equal(t, gpio.High, pin.Read())
}

func TestPeriphSession(t *testing.T) {
	b, pin := newTestPeriphBus(t, conntest.IO{W: []byte{CmdHistogram}, R: []byte{Ready}})

	require.NoError(t, b.Begin())
	require.NoError(t, b.Begin())
	assert.Equal(t, 1, openCount(), "Begin on an open session is a no-op")

	in, err := b.Exchange(CmdHistogram)
	require.NoError(t, err)
	assert.Equal(t, byte(Ready), in)

	// a bus reset closes and reopens the port
	require.NoError(t, b.End())
	require.NoError(t, b.End())
	require.NoError(t, b.Begin())
	assert.Equal(t, 2, openCount())

	in, err = b.Exchange(CmdHistogram)
	require.NoError(t, err)
	assert.Equal(t, byte(Ready), in)

	require.NoError(t, b.Select(true))
	require.NoError(t, b.Close())
	assert.Equal(t, gpio.High, pin.Read(), "Close releases chip-select")
	assert.Nil(t, b.port)
}

func TestPeriphExchangeBegins(t *testing.T) {
	b, _ := newTestPeriphBus(t, conntest.IO{W: []byte{dummy}, R: []byte{Busy}})

	in, err := b.Exchange(dummy)
	require.NoError(t, err)
	assert.Equal(t, byte(Busy), in)
	assert.Equal(t, 1, openCount())
	require.NoError(t, b.End())
}

func TestPeriphDevice(t *testing.T) {
	ops := make([]conntest.IO, 0, flushBytes+2)
	for i := 0; i < flushBytes; i++ {
		ops = append(ops, conntest.IO{W: []byte{dummy}, R: []byte{0x00}})
	}
	ops = append(ops,
		conntest.IO{W: []byte{CmdPower}, R: []byte{Ready}},
		conntest.IO{W: []byte{powerOff}, R: []byte{0x00}},
	)
	b, pin := newTestPeriphBus(t, ops...)

	d, err := New(WithBus(b), WithTiming(testTiming), WithSleeper(&fakeSleeper{}))
	require.NoError(t, err)

	ready, err := d.Off()
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, gpio.High, pin.Read())
	assert.Nil(t, b.port, "session ended after the command")
	assert.Equal(t, 1, openCount())
}

func TestPeriphConnectFails(t *testing.T) {
	b, _ := newTestPeriphBus(t)
	setPort(func() *spitest.Playback {
		// already connected, and closing complains about the unplayed op
		return &spitest.Playback{
			Playback:    conntest.Playback{Ops: []conntest.IO{{W: []byte{dummy}, R: []byte{0}}}},
			Initialized: true,
		}
	})

	err := b.Begin()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not connect SPI port")
	assert.Contains(t, err.Error(), "could not close SPI port")
	assert.Nil(t, b.port)
}

func TestNoPin(t *testing.T) {
	_, err := newPeriphBus(testPort, 9999)
	assert.ErrorIs(t, err, ErrNoPin)
	assert.EqualError(t, err, "opcr2: chip-select pin not found: GPIO9999")
}
