package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex joins parts and decodes them, ignoring whitespace. It panics on bad input and
// is meant for fixtures and constants.
func Hex(parts ...string) []byte {
	s := strings.Join(strings.Fields(strings.Join(parts, " ")), "")
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("tlv.Hex(%q): %v", s, err))
	}
	return b
}

// Printable returns b as text with every byte outside printable ASCII shown as '.'.
func Printable(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c < 0x20 || c > 0x7E {
			c = '.'
		}
		out[i] = c
	}
	return string(out)
}
