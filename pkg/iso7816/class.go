package iso7816

import (
	"fmt"

	"github.com/gregLibert/satochip/pkg/bits"
)

// Class byte (CLA) layout according to ISO/IEC 7816-4, 5.4.1.
//
// The CLA byte tells the card how to read the rest of the command: which logical
// channel it targets, whether it is protected by secure messaging, and whether more
// chained commands follow.
//
// Structure:
// Bit 8: proprietary (1) or interindustry (0). A proprietary CLA is opaque; the
// Satochip applet uses B0 for every command except SELECT.
// Bit 7: interindustry range (0 first, 1 further).
// Bit 5: command chaining (1 means more commands follow).
//
// 1. First interindustry class (000c ssll):
//   - Bits 4-3: secure messaging, four states.
//   - Bits 2-1: logical channel 0-3.
//
// 2. Further interindustry class (01sc llll):
//   - Bit 6: secure messaging, on or off.
//   - Bits 4-1: logical channel minus 4, covering channels 4-19.
//
// The applet secure channel is not ISO secure messaging: its envelopes travel under
// CLA B0 and INS 82, so the SM bits stay at zero on every frame this module sends.

// SecureMessaging is the secure messaging indication of an interindustry class.
type SecureMessaging int

const (
	SMNone         SecureMessaging = 0
	SMProprietary  SecureMessaging = 1 // first range only
	SMHeaderNoProc SecureMessaging = 2
	SMHeaderAuth   SecureMessaging = 3 // first range only
)

var smNames = [...]string{"no SM", "proprietary SM", "ISO SM", "ISO SM, header authenticated"}

func (sm SecureMessaging) String() string {
	if sm >= 0 && int(sm) < len(smNames) {
		return smNames[sm]
	}
	return fmt.Sprintf("SM %d", int(sm))
}

// Class is a decoded CLA byte.
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8
}

// NewClass decodes cla. 0xFF is reserved and rejected.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("iso7816: CLA FF is reserved")
	}
	c := Class{Raw: cla}
	switch {
	case bits.IsSet(cla, 8):
		c.IsProprietary = true
	case !bits.IsSet(cla, 7):
		c.IsChained = bits.IsSet(cla, 5)
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		c.Channel = bits.GetRange(cla, 2, 1)
	default:
		c.IsChained = bits.IsSet(cla, 5)
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		}
		c.Channel = bits.GetRange(cla, 4, 1) + 4
	}
	return c, nil
}

// Encode rebuilds the CLA byte from the decoded fields. A proprietary class is
// returned as is.
func (c *Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}
	if c.Channel > 19 {
		return 0, fmt.Errorf("iso7816: logical channel %d out of range", c.Channel)
	}

	var b byte
	if c.IsChained {
		b = bits.Set(b, 5)
	}
	if c.Channel < 4 {
		return b | byte(c.SecureMessaging)<<2 | c.Channel, nil
	}
	switch c.SecureMessaging {
	case SMNone:
	case SMHeaderNoProc:
		b = bits.Set(b, 6)
	default:
		return 0, fmt.Errorf("iso7816: %s not available on channel %d", c.SecureMessaging, c.Channel)
	}
	return bits.Set(b, 7) | (c.Channel - 4), nil
}

// IsBasic reports an interindustry class without chaining or secure messaging on
// channels 0-3, the only ISO classes the Satochip applet is addressed with.
func (c Class) IsBasic() bool {
	return !c.IsProprietary && !c.IsChained && c.SecureMessaging == SMNone && c.Channel < 4
}

func (c Class) String() string {
	if c.IsProprietary {
		return fmt.Sprintf("CLA %02X proprietary", c.Raw)
	}
	s := fmt.Sprintf("CLA %02X channel %d, %s", c.Raw, c.Channel, c.SecureMessaging)
	if c.IsChained {
		s += ", chained"
	}
	return s
}
