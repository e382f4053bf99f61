package icmp

// ComputeChecksum returns the internet checksum (RFC 1071) of m. The
// checksum field is treated as zero regardless of its current value, so the
// result is the same before and after SetChecksum. m is not modified.
func ComputeChecksum(m *EchoMessage) uint16 {
	var sum uint64

	sum += uint64(m.Kind)<<8 | uint64(m.Code)
	sum += uint64(m.Identifier)
	sum += uint64(m.Sequence)
	sum = sumWords(sum, m.Payload)

	return ^fold(sum)
}

// Checksum returns the internet checksum of data.
func Checksum(data []byte) uint16 {
	return ^fold(sumWords(0, data))
}

// ValidChecksum reports whether data, with its checksum field filled in,
// sums to 0xFFFF.
func ValidChecksum(data []byte) bool {
	return fold(sumWords(0, data)) == 0xffff
}

// sumWords adds data to sum as big-endian 16-bit words. An odd trailing
// byte is summed as the high byte of a zero-padded word.
func sumWords(sum uint64, data []byte) uint64 {
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint64(data[i])<<8 | uint64(data[i+1])
	}
	if n%2 == 1 {
		sum += uint64(data[n-1]) << 8
	}
	return sum
}

// fold adds the carries above bit 16 back into the low 16 bits until none
// remain.
func fold(sum uint64) uint16 {
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint16(sum)
}
