/*
Package satochip implements the command vocabulary of the Satochip applet and the parsers for
the fixed-layout status records it returns.

Every operation of CommandSet is one command/response round trip over an iso7816.Client.
Status words are surfaced untouched: deciding whether a step succeeded is the caller's job,
and CheckStatus turns anything other than 0x9000 into a *ProtocolError.

# Wire Conventions

The applet is selected with the ISO class (CLA 00); every other command uses the
proprietary class B0. Instruction bytes live in the vendor space, which is why some of
them (0x6F) fall in ranges ISO 7816-3 reserves for interindustry classes.

	SELECT          00 A4 04 00 | 08 "SatoChip"
	GET STATUS      B0 3C 00 00
	VERIFY PIN      B0 42 00 00 | Lc PIN
	SIGN MESSAGE    B0 82 00 00 | Lc 00 counter chunk...

# Status Blob

	byte0  flags: bit1 initialized, bit2 authenticated, bit3 master key,
	       bit4 authentication key, bit5 encryption key, bit6 signature key
	byte1  PIN retry counter
	byte2  PUK retry counter

(bits numbered 1..8 from the least significant, as in package bits)
*/
package satochip

import (
	"github.com/gregLibert/satochip/pkg/iso7816"
)

// AppletAID is the application identifier selected before any other command ("SatoChip").
var AppletAID = []byte{0x53, 0x61, 0x74, 0x6F, 0x43, 0x68, 0x69, 0x70}

// CLA_SATOCHIP is the proprietary class byte used by every applet command.
const CLA_SATOCHIP byte = 0xB0

// Applet instruction codes.
const (
	INS_GET_CHANNEL_KEY        iso7816.InsCode = 0x02
	INS_GET_STATUS             iso7816.InsCode = 0x3C
	INS_VERIFY_PIN             iso7816.InsCode = 0x42
	INS_CHANGE_PIN             iso7816.InsCode = 0x44
	INS_UNBLOCK_PIN            iso7816.InsCode = 0x46
	INS_SIGN                   iso7816.InsCode = 0x6F
	INS_GET_AUTHENTIKEY        iso7816.InsCode = 0x73
	INS_INIT_SECURE_CHANNEL    iso7816.InsCode = 0x81
	INS_PROCESS_SECURE_CHANNEL iso7816.InsCode = 0x82
	INS_GET_PUBKEY             iso7816.InsCode = 0xC1
	INS_LOAD_KEY               iso7816.InsCode = 0xD0
	INS_DERIVE_KEY             iso7816.InsCode = 0xD1
	INS_GEN_KEY                iso7816.InsCode = 0xD2
)

// Applet status words. Values not listed here are the ISO ones from package iso7816.
const (
	SW_SUCCESS                       = iso7816.SW_NO_ERROR
	SW_WRONG_PIN                     iso7816.StatusWord = 0x63C0
	SW_PIN_BLOCKED                   iso7816.StatusWord = 0x63C1
	SW_SECURITY_STATUS_NOT_SATISFIED = iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT
	SW_CONDITIONS_NOT_SATISFIED      = iso7816.SW_ERR_COND_OF_USE_NOT_SAT
	SW_WRONG_DATA                    = iso7816.SW_ERR_INCORRECT_PARAMS_DATA
	SW_WRONG_LENGTH                  = iso7816.SW_ERR_WRONG_LENGTH
	SW_INS_NOT_SUPPORTED             = iso7816.SW_ERR_INS_INVALID
	SW_CLA_NOT_SUPPORTED             = iso7816.SW_ERR_CLA_NOT_SUPPORTED
)

// KeyType selects the key slot addressed by key commands (carried in P1).
type KeyType byte

const (
	KeyTypeMaster         KeyType = 0x00
	KeyTypeAuthentication KeyType = 0x01
	KeyTypeEncryption     KeyType = 0x02
	KeyTypeSignature      KeyType = 0x03
)

func (k KeyType) String() string {
	switch k {
	case KeyTypeMaster:
		return "master"
	case KeyTypeAuthentication:
		return "authentication"
	case KeyTypeEncryption:
		return "encryption"
	case KeyTypeSignature:
		return "signature"
	default:
		return "unknown"
	}
}

// ParseKeyType maps a key slot name back to its KeyType.
func ParseKeyType(name string) (KeyType, bool) {
	for _, k := range []KeyType{KeyTypeMaster, KeyTypeAuthentication, KeyTypeEncryption, KeyTypeSignature} {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// PIN policy of the applet firmware.
const (
	PIN_DEFAULT    = "123456"
	PIN_MIN_LENGTH = 4
	PIN_MAX_LENGTH = 32
	PIN_MAX_TRIES  = 3
)

// Signing protocol constants. The firmware expects the chunk counter to start at 3.
const (
	MessageTypeSign     byte = 0x00
	DefaultChunkSize         = 200
	DefaultCounterStart      = 3
)
