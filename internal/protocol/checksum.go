package protocol

// XORChecksum is the GT06 wire checksum: the XOR of every byte from the
// length byte through the last serial byte, inclusive. It is the only
// checksum the standard 0x7878 frame actually uses — the CRC16 variants in
// crc.go are never applied on the wire.
func XORChecksum(bytesFromLenThroughSerial []byte) byte {
	var c byte
	for _, b := range bytesFromLenThroughSerial {
		c ^= b
	}
	return c
}
