// Package histogram decodes the 64-byte histogram frame returned by an
// Alphasense OPC-R2.
//
// All multi-byte fields are transmitted least significant byte first. Floats
// are IEEE-754 single precision.
package histogram

import (
	"encoding/binary"
	"math"
	"time"

	"periph.io/x/periph/conn/physic"
)

// Raw is a histogram frame as received from the device.
type Raw [Size]byte

// Frame is a decoded histogram frame.
type Frame struct {
	// Bins holds the particle count of bins 0 to 15 over the sampling period.
	Bins [NumBins]uint16
	// TimeOfFlight holds the mean time of flight of bins 1, 3, 5 and 7, in
	// units of 1/3µs.
	TimeOfFlight [NumToF]uint8
	// SampleFlowRate is in mL/s.
	SampleFlowRate float32

	TempSignal uint16
	// Temperature is in degrees Celsius.
	Temperature float64

	HumiditySignal uint16
	// Humidity is in %RH.
	Humidity float64

	// SamplingPeriod is in seconds.
	SamplingPeriod float32

	RejectGlitch uint8
	RejectLong   uint8

	// PM holds the PM1, PM2.5 and PM10 mass concentrations in µg/m³.
	PM [NumPM]float32

	// DeviceChecksum is the checksum sent by the device.
	DeviceChecksum uint16
	// ComputedChecksum is the CRC16 of the whole raw frame, trailer included.
	ComputedChecksum uint16

	// Raw is a copy of the bytes the frame was decoded from.
	Raw Raw

	// Ready is set by the reader when the device confirmed it was ready
	// before the frame was read.
	Ready bool
}

// Decode maps a raw frame to its fields. It never fails; checking the
// checksums is left to the caller.
func Decode(raw Raw) Frame {
	f := Frame{
		SampleFlowRate: float32At(raw, offFlow),
		TempSignal:     uint16At(raw, offTemp),
		HumiditySignal: uint16At(raw, offHumidity),
		SamplingPeriod: float32At(raw, offPeriod),
		RejectGlitch:   raw[offGlitch],
		RejectLong:     raw[offLong],
		DeviceChecksum: uint16At(raw, offChecksum),

		ComputedChecksum: CRC16(raw[:]),
		Raw:              raw,
	}

	for i := range f.Bins {
		f.Bins[i] = uint16At(raw, offBins+2*i)
	}
	copy(f.TimeOfFlight[:], raw[offToF:offToF+NumToF])
	for i := range f.PM {
		f.PM[i] = float32At(raw, offPM+4*i)
	}

	f.Temperature = Celsius(f.TempSignal)
	f.Humidity = RelativeHumidity(f.HumiditySignal)

	return f
}

func uint16At(raw Raw, off int) uint16 {
	return binary.LittleEndian.Uint16(raw[off : off+2])
}

func float32At(raw Raw, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(raw[off : off+4]))
}

// Celsius converts a temperature signal to degrees Celsius.
func Celsius(signal uint16) float64 {
	return -45 + 175*float64(signal)/65535
}

// RelativeHumidity converts a humidity signal to %RH.
func RelativeHumidity(signal uint16) float64 {
	return 100 * float64(signal) / 65535
}

// PM1 returns the PM1 concentration in µg/m³.
func (f *Frame) PM1() float32 { return f.PM[0] }

// PM25 returns the PM2.5 concentration in µg/m³.
func (f *Frame) PM25() float32 { return f.PM[1] }

// PM10 returns the PM10 concentration in µg/m³.
func (f *Frame) PM10() float32 { return f.PM[2] }

// Valid reports whether the checksum sent by the device matches the payload.
func (f *Frame) Valid() bool {
	return CRC16(f.Raw[:offChecksum]) == f.DeviceChecksum
}

// MToF returns the mean time of flight of bin 1, 3, 5 or 7. Any other bin
// returns 0.
func (f *Frame) MToF(bin int) time.Duration {
	if bin < 1 || bin > 2*NumToF-1 || bin%2 == 0 {
		return 0
	}
	return time.Duration(f.TimeOfFlight[bin/2]) * time.Microsecond / 3
}

// Weather returns the on-board temperature and humidity as periph.io units.
func (f *Frame) Weather() (physic.Temperature, physic.RelativeHumidity) {
	t := physic.ZeroCelsius + physic.Temperature(f.Temperature*float64(physic.Celsius))
	h := physic.RelativeHumidity(f.Humidity * float64(physic.PercentRH))
	return t, h
}
