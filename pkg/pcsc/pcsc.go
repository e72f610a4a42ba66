// Package pcsc connects to cards through the platform PC/SC service.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ebfe/scard"

	"github.com/gregLibert/satochip/pkg/iso7816"
)

var (
	// ErrNoReader is returned when no reader matches.
	ErrNoReader = errors.New("pcsc: no smart card reader found")
	// ErrNoCard is returned by WaitForCard when the wait ends without a card.
	ErrNoCard = errors.New("pcsc: no card present")
)

// pollInterval bounds each blocking status query so cancellation is noticed.
const pollInterval = 500 * time.Millisecond

// Context is a PC/SC resource manager context.
type Context struct {
	ctx *scard.Context
}

// Open establishes a context with the PC/SC service.
func Open() (*Context, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("pcsc: establish context: %w", err)
	}
	return &Context{ctx: ctx}, nil
}

// Close releases the context.
func (c *Context) Close() error {
	return c.ctx.Release()
}

// Readers lists the connected readers.
func (c *Context) Readers() ([]string, error) {
	readers, err := c.ctx.ListReaders()
	if errors.Is(err, scard.ErrNoReadersAvailable) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pcsc: list readers: %w", err)
	}
	return readers, nil
}

// SelectReader returns the first reader whose name contains filter, ignoring case.
// An empty filter selects the first reader.
func SelectReader(readers []string, filter string) (string, error) {
	needle := strings.ToLower(filter)
	for _, r := range readers {
		if strings.Contains(strings.ToLower(r), needle) {
			return r, nil
		}
	}
	if filter == "" {
		return "", ErrNoReader
	}
	return "", fmt.Errorf("%w matching %q", ErrNoReader, filter)
}

// WaitForCard blocks until a card is present in reader, ctx is done or wait elapses.
// A zero wait checks once.
func (c *Context) WaitForCard(ctx context.Context, reader string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	states := []scard.ReaderState{{Reader: reader, CurrentState: scard.StateUnaware}}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		timeout := min(pollInterval, time.Until(deadline))
		if timeout < 0 {
			timeout = 0
		}
		err := c.ctx.GetStatusChange(states, timeout)
		switch {
		case err == nil:
		case errors.Is(err, scard.ErrTimeout):
		default:
			return fmt.Errorf("pcsc: status of %q: %w", reader, err)
		}

		if states[0].EventState&scard.StatePresent != 0 {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w in %q", ErrNoCard, reader)
		}
		states[0].CurrentState = states[0].EventState &^ scard.StateChanged
	}
}

// Connect opens a shared T=0/T=1 connection to the card in reader.
func (c *Context) Connect(reader string) (*Card, error) {
	card, err := c.ctx.Connect(reader, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		return nil, fmt.Errorf("pcsc: connect %q: %w", reader, err)
	}

	out := &Card{card: card, Reader: reader}
	if st, err := card.Status(); err == nil {
		out.ATR = st.Atr
	}
	return out, nil
}

// Card is a connected card. It implements iso7816.Transmitter.
type Card struct {
	card *scard.Card

	Reader string
	ATR    []byte
}

// Transmit performs one exchange.
func (c *Card) Transmit(cmd []byte) ([]byte, error) {
	return c.card.Transmit(cmd)
}

// Close disconnects and leaves the card powered.
func (c *Card) Close() error {
	return c.card.Disconnect(scard.LeaveCard)
}

var _ iso7816.Transmitter = (*Card)(nil)
