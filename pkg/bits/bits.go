// Package bits reads and builds single-byte flag fields. Bits are numbered 1 (least
// significant) to 8, the way ISO 7816 and the card documentation number them.
package bits

// Bit returns a byte with only the n-th bit set (1 to 8).
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

// IsSet checks if the n-th bit is set (1 to 8).
func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// Set returns b with bit n set.
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// GetRange extracts bits high..low of b, shifted down.
// Example: GetRange(0b00001100, 4, 3) returns 3 (0b11)
// An inverted or out of range span yields 0.
func GetRange(b byte, high, low uint) byte {
	if low < 1 || high > 8 || high < low {
		return 0
	}
	return (b >> (low - 1)) & byte(1<<(high-low+1)-1)
}

// Pack builds a flag byte: flags[0] is bit 1, flags[1] bit 2 and so on. Flags past
// the eighth are ignored.
func Pack(flags ...bool) byte {
	var b byte
	for i, on := range flags {
		if on && i < 8 {
			b = Set(b, uint(i+1))
		}
	}
	return b
}

// Unpack is the inverse of Pack: out[i] reports bit i+1, for the first n bits.
func Unpack(b byte, n uint) []bool {
	n = min(n, 8)
	out := make([]bool, n)
	for i := range out {
		out[i] = IsSet(b, uint(i+1))
	}
	return out
}
