package iso7816

import (
	"fmt"

	"github.com/gregLibert/satochip/pkg/bits"
)

// Instruction byte (INS) according to ISO/IEC 7816-4, 5.4.2.
//
// The INS byte names the command. Two rules apply across classes:
//
// 1. Data encoding (bit 1):
//    With an interindustry class, an odd INS is the BER-TLV variant of the even one,
//    for example READ BINARY (B0) and READ BINARY (BER-TLV) (B1).
//
// 2. Reserved values:
//    INS 6X and 9X collide with SW1 procedure bytes of the T=0 protocol and are
//    invalid in interindustry classes. Proprietary classes may still use them: the
//    Satochip applet signs with B0 6F, which is why ProprietaryInstruction exists.

// InsCode is an INS byte.
type InsCode byte

// Interindustry instructions (ISO/IEC 7816-4, table 4) this module sends or names in
// traces. Bit 1 set on an even code selects the BER-TLV variant.
const (
	INS_VERIFY                       InsCode = 0x20
	INS_CHANGE_REFERENCE_DATA        InsCode = 0x24
	INS_PERFORM_SECURITY_OPERATION   InsCode = 0x2A
	INS_RESET_RETRY_COUNTER          InsCode = 0x2C
	INS_GENERATE_ASYMMETRIC_KEY_PAIR InsCode = 0x46
	INS_MANAGE_CHANNEL               InsCode = 0x70
	INS_EXTERNAL_AUTHENTICATE        InsCode = 0x82
	INS_GET_CHALLENGE                InsCode = 0x84
	INS_INTERNAL_AUTHENTICATE        InsCode = 0x88
	INS_SELECT                       InsCode = 0xA4
	INS_READ_BINARY                  InsCode = 0xB0
	INS_READ_BINARY_BER              InsCode = 0xB1
	INS_GET_RESPONSE                 InsCode = 0xC0
	INS_ENVELOPE                     InsCode = 0xC2
	INS_GET_DATA                     InsCode = 0xCA
	INS_PUT_DATA                     InsCode = 0xDA
)

var insNames = map[InsCode]string{
	INS_VERIFY:                       "VERIFY",
	INS_CHANGE_REFERENCE_DATA:        "CHANGE REFERENCE DATA",
	INS_PERFORM_SECURITY_OPERATION:   "PERFORM SECURITY OPERATION",
	INS_RESET_RETRY_COUNTER:          "RESET RETRY COUNTER",
	INS_GENERATE_ASYMMETRIC_KEY_PAIR: "GENERATE ASYMMETRIC KEY PAIR",
	INS_MANAGE_CHANNEL:               "MANAGE CHANNEL",
	INS_EXTERNAL_AUTHENTICATE:        "EXTERNAL AUTHENTICATE",
	INS_GET_CHALLENGE:                "GET CHALLENGE",
	INS_INTERNAL_AUTHENTICATE:        "INTERNAL AUTHENTICATE",
	INS_SELECT:                       "SELECT",
	INS_READ_BINARY:                  "READ BINARY",
	INS_READ_BINARY_BER:              "READ BINARY",
	INS_GET_RESPONSE:                 "GET RESPONSE",
	INS_ENVELOPE:                     "ENVELOPE",
	INS_GET_DATA:                     "GET DATA",
	INS_PUT_DATA:                     "PUT DATA",
}

// String returns the ISO name of c, or its hex value.
func (c InsCode) String() string {
	if name, ok := insNames[c]; ok {
		return name
	}
	return fmt.Sprintf("INS %02X", byte(c))
}

// Instruction is a validated INS byte.
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// NewInstruction validates an interindustry INS. 6X and 9X collide with T=0
// procedure bytes and are rejected.
func NewInstruction(ins InsCode) (Instruction, error) {
	if hi := byte(ins) & 0xF0; hi == 0x60 || hi == 0x90 {
		return Instruction{}, fmt.Errorf("iso7816: INS %02X is reserved", byte(ins))
	}
	return Instruction{Raw: ins, IsBERTLV: bits.IsSet(byte(ins), 1)}, nil
}

// ProprietaryInstruction accepts any INS for use under a proprietary CLA, where the
// vendor owns the whole range (Satochip signs with 6F). It is not checked.
func ProprietaryInstruction(ins InsCode) Instruction {
	return Instruction{Raw: ins}
}

// Verbose returns the INS byte with its name, and the BER-TLV flag when set.
func (i Instruction) Verbose() string {
	s := fmt.Sprintf("%02X %s", byte(i.Raw), i.Raw)
	if i.IsBERTLV {
		s += " (BER-TLV)"
	}
	return s
}
