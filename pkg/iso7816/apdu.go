package iso7816

import (
	"errors"
	"fmt"
)

// APDU framing (ISO/IEC 7816-3 and 7816-4), restricted to short length.
//
// COMMAND APDU (C-APDU):
// A 4-byte header, optionally followed by a body.
//
// 1. Header:
//   - CLA: class (proprietary B0 for the applet, 00 for SELECT).
//   - INS: the instruction.
//   - P1, P2: instruction parameters.
//
// 2. Body:
//   - Lc: length of the data field, one byte (1..255).
//   - Data: the command payload.
//   - Le: bytes expected back, one byte; 00 asks for 256.
//
// ENCODING CASES:
//
//	case 1  CLA INS P1 P2
//	case 2  CLA INS P1 P2 Le
//	case 3  CLA INS P1 P2 Lc data
//	case 4  CLA INS P1 P2 Lc data Le
//
// Extended length (3-byte Lc, 2-byte Le) is never produced. The Satochip applet
// rejects it, so callers that move more data split it themselves (see the chunked
// message signature). The one exception, the 256-byte secure channel challenge,
// is framed by hand and sent through Client.Exchange.
//
// RESPONSE APDU (R-APDU):
// An optional data field followed by the two status bytes SW1 SW2. 9000 is the only
// success value the applet returns.
//
// TRANSACTION:
// One C-APDU and the R-APDU it produced. A logical command may take several
// transactions when the Client answers 61XX or 6CXX for the caller.

// Short length limits.
const (
	// MaxShortLc is the largest data field a short command can carry.
	MaxShortLc = 255

	// MaxShortLe is the largest Ne a short command can ask for, encoded as 00.
	MaxShortLe = 256

	// MaxAPDUBufferSize is the longest case 4 command:
	// Header(4) + Lc(1) + Data(255) + Le(1).
	MaxAPDUBufferSize = 4 + 1 + MaxShortLc + 1
)

var (
	// ErrPayloadTooLong is returned when a command carries more than MaxShortLc bytes.
	ErrPayloadTooLong = errors.New("iso7816: payload exceeds short APDU limit")
	// ErrExpectedLengthTooLong is returned when Ne exceeds MaxShortLe.
	ErrExpectedLengthTooLong = errors.New("iso7816: expected length exceeds short APDU limit")
	// ErrMalformedResponse is returned when a response cannot carry a status word.
	ErrMalformedResponse = errors.New("iso7816: malformed response")
)

// CommandAPDU is a command before encoding.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // bytes expected back, 0 for no Le
}

// NewCommandAPDU builds a command. Bytes validates the lengths.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{Class: cla, Instruction: ins, P1: p1, P2: p2, Data: data, Ne: ne}
}

// Bytes encodes the command.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	nc := len(c.Data)
	if nc > MaxShortLc {
		return nil, fmt.Errorf("%w: Lc %d > %d", ErrPayloadTooLong, nc, MaxShortLc)
	}
	if c.Ne > MaxShortLe {
		return nil, fmt.Errorf("%w: Le %d > %d", ErrExpectedLengthTooLong, c.Ne, MaxShortLe)
	}
	cla, err := c.Class.Encode()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 4+1+nc+1)
	out = append(out, cla, byte(c.Instruction.Raw), c.P1, c.P2)
	if nc > 0 {
		out = append(out, byte(nc))
		out = append(out, c.Data...)
	}
	if c.Ne > 0 {
		out = append(out, byte(c.Ne)) // 256 wraps to 00
	}
	return out, nil
}

func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s P1=%02X P2=%02X Lc=%d Le=%d", c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU is a decoded reply.
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw into payload and status word. The payload is copied
// so the caller may reuse raw.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	n := len(raw) - 2
	if n < 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedResponse, len(raw))
	}
	return &ResponseAPDU{
		Data:   append([]byte(nil), raw[:n]...),
		Status: NewStatusWord(raw[n], raw[n+1]),
	}, nil
}

// Bytes returns data followed by SW1 SW2.
func (r *ResponseAPDU) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+2)
	out = append(out, r.Data...)
	return append(out, r.Status.SW1(), r.Status.SW2())
}

func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("%d bytes, %s", len(r.Data), r.Status.Verbose())
}
