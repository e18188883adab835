package codec

import "encoding/binary"

// Sum returns the folded 16-bit one's-complement sum of data (RFC 1071)
// without the final complement. Words are big-endian; an odd trailing byte is
// the high byte of a zero-padded word.
func Sum(data []byte) uint16 {
	var sum uint32
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	// Fold carries out of bit 16 until none remain.
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint16(sum)
}

// Checksum computes the Internet checksum of data. Callers zero the checksum
// field inside data before calling.
func Checksum(data []byte) uint16 {
	return ^Sum(data)
}

// VerifyChecksum reports whether data, which embeds its own checksum field,
// sums to all ones.
func VerifyChecksum(data []byte) bool {
	return Sum(data) == 0xffff
}
