package opcr2

// Status bytes returned while polling with a command byte.
const (
	Ready = 0xF3
	Busy  = 0x31
)

// Command bytes
const (
	CmdPower     = 0x03
	CmdHistogram = 0x30

	powerOn  = 0x03
	powerOff = 0x00

	dummy = 0x01
)

// Handshake bounds
const (
	maxAttempts = 20
	maxPolls    = 20
	flushBytes  = 10
)

// Bus settings
const (
	busHz  = 750000
	csPin  = 8 // BCM CE0
	busDef = ""
)
