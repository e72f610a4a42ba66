package iso7816

import "fmt"

// Transmitter is a card link. Transmit performs one blocking exchange and returns the
// whole reply, status word included. Calls are never concurrent on one link.
// *scard.Card satisfies it.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// TransportError reports that the link failed (card removed, reader gone, timeout).
// Command is the command in flight, nil for raw exchanges.
type TransportError struct {
	Command *CommandAPDU
	Err     error
}

func (e *TransportError) Error() string {
	if e.Command == nil {
		return fmt.Sprintf("transmission error: %v", e.Err)
	}
	return fmt.Sprintf("transmission error (INS %02X): %v", byte(e.Command.Instruction.Raw), e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAutoResponse makes Send answer 61XX with GET RESPONSE and 6CXX by resending
// with the Le the card asked for.
func WithAutoResponse() ClientOption {
	return func(c *Client) { c.autoResponse = true }
}

// Client encodes commands and decodes replies over a Transmitter. Without
// WithAutoResponse each Send is exactly one exchange, which the secure channel
// relies on: every exchange advances its IV on both sides.
type Client struct {
	Card Transmitter

	autoResponse bool
}

func NewClient(card Transmitter, opts ...ClientOption) *Client {
	c := &Client{Card: card}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exchange sends an already encoded frame, such as a secure channel envelope, and
// decodes the reply.
func (c *Client) Exchange(raw []byte) (*ResponseAPDU, error) {
	reply, err := c.Card.Transmit(raw)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return ParseResponseAPDU(reply)
}

// Send transmits cmd and returns every exchange made on its behalf.
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("iso7816: encode: %w", err)
	}
	reply, err := c.Card.Transmit(raw)
	if err != nil {
		return nil, &TransportError{Command: cmd, Err: err}
	}
	resp, err := ParseResponseAPDU(reply)
	if err != nil {
		return nil, err
	}

	trace := Trace{{Command: cmd, Response: resp}}
	next := c.followUp(cmd, resp.Status)
	if next == nil {
		return trace, nil
	}
	rest, err := c.Send(next)
	return append(trace, rest...), err
}

// followUp returns the command answering a 61XX or 6CXX, or nil.
func (c *Client) followUp(cmd *CommandAPDU, sw StatusWord) *CommandAPDU {
	if !c.autoResponse {
		return nil
	}
	ne := int(sw.SW2())
	if ne == 0 {
		ne = MaxShortLe
	}

	switch sw.SW1() {
	case 0x61:
		// Same logical channel as the original command.
		cla := cmd.Class
		cla.IsChained = false
		ins, _ := NewInstruction(INS_GET_RESPONSE)
		return NewCommandAPDU(cla, ins, 0x00, 0x00, nil, ne)
	case 0x6C:
		retry := *cmd
		retry.Ne = ne
		return &retry
	}
	return nil
}

// Transmit sends cmd and returns the last response of its trace.
func (c *Client) Transmit(cmd *CommandAPDU) (*ResponseAPDU, error) {
	trace, err := c.Send(cmd)
	if err != nil {
		return nil, err
	}
	return trace.Last().Response, nil
}
