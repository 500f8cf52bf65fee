package histogram

// Size is the length in bytes of a histogram frame.
const Size = 64

// Number of fields in a frame.
const (
	NumBins = 16
	NumToF  = 4
	NumPM   = 3
)

// Byte offsets of each field. 16-bit and 32-bit fields are little-endian.
const (
	offBins     = 0
	offToF      = 32
	offFlow     = 36
	offTemp     = 40
	offHumidity = 42
	offPeriod   = 44
	offGlitch   = 48
	offLong     = 49
	offPM       = 50
	offChecksum = 62
)

// CRC parameters
const (
	CRCInit       = 0xFFFF
	CRCPolynomial = 0xA001
)
