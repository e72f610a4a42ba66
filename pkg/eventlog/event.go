package eventlog

import (
	"fmt"
	"strings"
	"time"
)

// Event is one entry of the session trace.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the card session (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction of the exchange. Meaningless for state and error events.
	Direction Direction `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Reader is the PC/SC reader name, when known.
	Reader string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Exchange    *ExchangeEvent    `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"`
}

// Direction indicates the direction of an exchange.
type Direction uint8

const (
	// DirectionIn is a response from the card.
	DirectionIn Direction = 0
	// DirectionOut is a command to the card.
	DirectionOut Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	CategoryExchange Category = 0
	CategoryState    Category = 1
	CategoryError    Category = 2
)

func (c Category) String() string {
	switch c {
	case CategoryExchange:
		return "EXCHANGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory maps a category name (case-insensitive) back to its value.
func ParseCategory(name string) (Category, bool) {
	for _, c := range []Category{CategoryExchange, CategoryState, CategoryError} {
		if strings.EqualFold(c.String(), name) {
			return c, true
		}
	}
	return 0, false
}

// ExchangeEvent captures one half of a command/response round trip.
type ExchangeEvent struct {
	// Size is the frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Header holds CLA INS P1 P2 for commands that decode as plain APDUs.
	Header []byte `cbor:"2,keyasint,omitempty"`

	// Status is SW1SW2 for responses.
	Status uint16 `cbor:"3,keyasint,omitempty"`

	// Data is the payload, only when payload capture is on and the frame is not sensitive.
	Data []byte `cbor:"4,keyasint,omitempty"`

	// Redacted indicates the payload was withheld (PIN material).
	Redacted bool `cbor:"5,keyasint,omitempty"`

	// Opaque indicates the frame is not a plain APDU (secure channel envelope).
	Opaque bool `cbor:"6,keyasint,omitempty"`
}

// StateChangeEvent captures a session state transition.
type StateChangeEvent struct {
	OldState string `cbor:"1,keyasint,omitempty"`
	NewState string `cbor:"2,keyasint"`
	Reason   string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures a failed session step.
type ErrorEventData struct {
	// Op is the step that failed ("select applet", "sign message").
	Op string `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Status is the status word for protocol errors.
	Status *uint16 `cbor:"3,keyasint,omitempty"`
}

// String renders the event on one line, for the events command.
func (e Event) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %-8s", e.Timestamp.Format(time.RFC3339Nano), shortID(e.ConnectionID), e.Category)

	switch {
	case e.Exchange != nil:
		x := e.Exchange
		fmt.Fprintf(&sb, " %-3s %4dB", e.Direction, x.Size)
		if len(x.Header) > 0 {
			fmt.Fprintf(&sb, " hdr=%X", x.Header)
		}
		if e.Direction == DirectionIn {
			fmt.Fprintf(&sb, " sw=%04X", x.Status)
		}
		switch {
		case x.Opaque:
			sb.WriteString(" [encrypted]")
		case x.Redacted:
			sb.WriteString(" [redacted]")
		case len(x.Data) > 0:
			fmt.Fprintf(&sb, " data=%X", x.Data)
		}
	case e.StateChange != nil:
		fmt.Fprintf(&sb, " %s -> %s", e.StateChange.OldState, e.StateChange.NewState)
		if e.StateChange.Reason != "" {
			fmt.Fprintf(&sb, " (%s)", e.StateChange.Reason)
		}
	case e.Error != nil:
		fmt.Fprintf(&sb, " %s: %s", e.Error.Op, e.Error.Message)
	}
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
