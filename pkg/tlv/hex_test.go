package tlv

import (
	"bytes"
	"testing"
)

func TestHex(t *testing.T) {
	tests := []struct {
		name     string
		parts    []string
		expected []byte
	}{
		{"Two parts", []string{"00", "A4"}, []byte{0x00, 0xA4}},
		{"Whitespace", []string{"B0 3C", " 00\t00 "}, []byte{0xB0, 0x3C, 0x00, 0x00}},
		{"Mixed case", []string{"ca", "FE"}, []byte{0xCA, 0xFE}},
		{"Parts may split a byte", []string{"1", "234"}, []byte{0x12, 0x34}},
		{"Nothing", nil, []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Hex(tt.parts...); !bytes.Equal(got, tt.expected) {
				t.Errorf("Hex(%q) = %X; want %X", tt.parts, got, tt.expected)
			}
		})
	}
}

func TestHex_Panics(t *testing.T) {
	for _, in := range []string{"ZZ", "123"} {
		t.Run(in, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("Hex(%q) did not panic", in)
				}
			}()
			Hex(in)
		})
	}
}

func TestPrintable(t *testing.T) {
	tests := []struct {
		in       []byte
		expected string
	}{
		{[]byte("SatoChip"), "SatoChip"},
		{[]byte{0x00, 'A', 0x1F, '~', 0x90}, ".A.~."},
		{nil, ""},
	}

	for _, tt := range tests {
		if got := Printable(tt.in); got != tt.expected {
			t.Errorf("Printable(%X) = %q; want %q", tt.in, got, tt.expected)
		}
	}
}
