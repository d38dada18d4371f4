package protocol

// CRC16X25 and CRC16CCITTAlt are two checksum variants that appear across
// the Concox-family source tree, one per near-duplicate client
// implementation. Neither is used to validate a standard GT06 0x7878 frame
// — that uses XORChecksum exclusively — but both are kept as codec
// utilities for callers that need to interoperate with the "data frame"
// style some Concox firmwares expose alongside GT06 proper.

// CRC16X25 implements the right-shift-feedback CRC16 with polynomial
// 0x8408 (X.25 / CCITT-reversed), seeded at 0xFFFF and complemented on
// output. Some GT06 decoders in the wild wire this into their ACK checksum
// field by mistake; it is kept here only as a standalone utility.
func CRC16X25(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return ^crc
}

// CRC16CCITTAlt implements the alternative right-shift-feedback CRC16 with
// polynomial 0xA6BC and a zero seed, uncomplemented, found in an
// alternative "data frame" style some sources ship alongside the GT06
// binary protocol proper.
func CRC16CCITTAlt(data []byte) uint16 {
	crc := uint16(0)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA6BC
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
