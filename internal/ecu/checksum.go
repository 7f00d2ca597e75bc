package ecu

// Checksum computes the single-byte additive checksum used on both
// directions of the DLC link: the arithmetic sum of the input modulo 256,
// folded as 0xFF - (sum - 1).
//
// A frame that carries its own correct checksum as its last byte sums to
// zero, so Checksum over a complete valid frame returns 0x00.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return 0xFF - (sum - 1)
}
