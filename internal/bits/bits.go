// Package bits reads and writes bit fields packed most significant bit
// first, the way binary audio headers are laid out.
package bits

import "errors"

// ErrRange is returned when a field doesn't fit into the buffer or is
// wider than 64 bits.
var ErrRange = errors.New("bit field out of range")

// Extract returns n bits of data starting at bit bitOffset of byte
// byteOffset. Bits are numbered from the most significant one, so bit 0 is
// 0x80. The field may cross byte boundaries and bitOffset may exceed 7.
func Extract(data []byte, byteOffset, bitOffset, n int) (uint64, error) {
	start, err := bounds(data, byteOffset, bitOffset, n)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := start; i < start+n; i++ {
		bit := (data[i/8] >> (7 - uint(i%8))) & 1
		v = v<<1 | uint64(bit)
	}
	return v, nil
}

// Put writes the n least significant bits of v into data starting at bit
// bitOffset of byte byteOffset. It's the inverse of Extract.
func Put(data []byte, byteOffset, bitOffset, n int, v uint64) error {
	start, err := bounds(data, byteOffset, bitOffset, n)
	if err != nil {
		return err
	}
	for i := start + n - 1; i >= start; i-- {
		mask := byte(1) << (7 - uint(i%8))
		if v&1 == 1 {
			data[i/8] |= mask
		} else {
			data[i/8] &^= mask
		}
		v >>= 1
	}
	return nil
}

// bounds returns absolute bit position of the field.
func bounds(data []byte, byteOffset, bitOffset, n int) (int, error) {
	if n < 0 || n > 64 || byteOffset < 0 || bitOffset < 0 {
		return 0, ErrRange
	}
	start := byteOffset*8 + bitOffset
	if start+n > len(data)*8 {
		return 0, ErrRange
	}
	return start, nil
}
