package metrics

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/cgxeiji/opcr2/histogram"
)

func validFrame() histogram.Frame {
	var raw histogram.Raw
	binary.LittleEndian.PutUint16(raw[0:], 42)
	binary.LittleEndian.PutUint32(raw[54:], math.Float32bits(2.5))
	raw[48] = 4
	crc := histogram.CRC16(raw[:62])
	binary.LittleEndian.PutUint16(raw[62:], crc)

	f := histogram.Decode(raw)
	f.Ready = true
	return f
}

func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())
	f := validFrame()

	m.Observe(&f)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.NotReady))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ChecksumFails))
	assert.Equal(t, 2.5, testutil.ToFloat64(m.PM.WithLabelValues("pm2.5")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.Bin.WithLabelValues("0")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Rejects.WithLabelValues("glitch")))
	assert.InDelta(t, -45.0, testutil.ToFloat64(m.Temperature), 1e-9)
}

func TestObserveInvalid(t *testing.T) {
	m := New(prometheus.NewRegistry())
	f := validFrame()
	f.Raw[3] ^= 0xFF
	f = histogram.Decode(f.Raw)

	m.Observe(&f)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotReady))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksumFails))
	assert.Equal(t, 0, testutil.CollectAndCount(m.PM), "measurements skipped")
}
