package histogram

// CRC16 computes the reflected CRC-16 used by Alphasense OPCs (initial value
// 0xFFFF, polynomial 0xA001, no final XOR).
func CRC16(data []byte) uint16 {
	crc := uint16(CRCInit)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ CRCPolynomial
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
