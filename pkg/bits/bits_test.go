package bits

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBit(t *testing.T) {
	tests := []struct {
		n        uint
		expected byte
	}{
		{1, 0x01}, {5, 0x10}, {8, 0x80}, {0, 0x00},
		{9, 0x00}, // out of range
	}

	for _, tt := range tests {
		if res := Bit(tt.n); res != tt.expected {
			t.Errorf("Bit(%d) = 0x%02X; want 0x%02X", tt.n, res, tt.expected)
		}
	}
}

func TestIsSetAndSet(t *testing.T) {
	val := byte(0b1010_0101)
	if !IsSet(val, 8) || IsSet(val, 7) || !IsSet(val, 1) {
		t.Errorf("IsSet(0b%08b) reports the wrong bits", val)
	}
	if got := Set(val, 5); got != 0b1011_0101 {
		t.Errorf("Set(5) = 0b%08b; want 0b10110101", got)
	}
	if got := Set(val, 9); got != val {
		t.Errorf("Set(9) = 0b%08b; want unchanged", got)
	}
}

func TestGetRange(t *testing.T) {
	tests := []struct {
		name     string
		input    byte
		high     uint
		low      uint
		expected byte
	}{
		{"Secure messaging bits", 0b0000_1100, 4, 3, 3},
		{"Low pair", 0b0000_0011, 2, 1, 3},
		{"Low nibble", 0x6F, 4, 1, 0x0F},
		{"Top pair", 0b0100_0000, 8, 7, 1},
		{"Whole byte", 0xAA, 8, 1, 0xAA},
		{"Inverted span", 0xFF, 1, 4, 0},
		{"Out of range", 0xFF, 9, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := GetRange(tt.input, tt.high, tt.low); res != tt.expected {
				t.Errorf("GetRange(0x%02X, %d, %d) = %d; want %d", tt.input, tt.high, tt.low, res, tt.expected)
			}
		})
	}
}

func TestPackUnpack(t *testing.T) {
	if got := Pack(); got != 0 {
		t.Errorf("Pack() = 0x%02X; want 0", got)
	}
	if got := Pack(true, true, false, true, false, true); got != 0x2B {
		t.Errorf("Pack(status flags) = 0x%02X; want 0x2B", got)
	}
	if got := Pack(true, true, true, true, true, true, true, true, true); got != 0xFF {
		t.Errorf("Pack(9 flags) = 0x%02X; want 0xFF", got)
	}

	flags := []bool{true, false, true, true, false, false}
	if diff := cmp.Diff(flags, Unpack(Pack(flags...), uint(len(flags)))); diff != "" {
		t.Errorf("Unpack(Pack()) mismatch (-want +got):\n%s", diff)
	}
	if got := len(Unpack(0xFF, 12)); got != 8 {
		t.Errorf("len(Unpack(0xFF, 12)) = %d; want 8", got)
	}
}
