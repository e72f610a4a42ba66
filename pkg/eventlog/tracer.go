package eventlog

import (
	"bytes"
	"time"

	"github.com/gregLibert/satochip/pkg/iso7816"
	"github.com/gregLibert/satochip/pkg/satochip"
)

// Instructions whose payload is never captured.
var sensitiveINS = map[iso7816.InsCode]bool{
	iso7816.INS_VERIFY:                true,
	iso7816.INS_CHANGE_REFERENCE_DATA: true,
	iso7816.INS_RESET_RETRY_COUNTER:   true,
	satochip.INS_VERIFY_PIN:           true,
	satochip.INS_CHANGE_PIN:           true,
	satochip.INS_UNBLOCK_PIN:          true,
	satochip.INS_INIT_SECURE_CHANNEL:  true,
	satochip.INS_LOAD_KEY:             true,
}

// TracingTransmitter wraps a card link and logs each round trip.
type TracingTransmitter struct {
	next     iso7816.Transmitter
	logger   Logger
	connID   string
	reader   string
	payloads bool
	now      func() time.Time
}

// TracerOption configures a TracingTransmitter.
type TracerOption func(*TracingTransmitter)

// WithPayloads records payload bytes of non-sensitive plain frames.
func WithPayloads() TracerOption {
	return func(t *TracingTransmitter) { t.payloads = true }
}

// WithReader tags events with the reader name.
func WithReader(name string) TracerOption {
	return func(t *TracingTransmitter) { t.reader = name }
}

// NewTracingTransmitter wraps next. A nil logger disables tracing.
func NewTracingTransmitter(next iso7816.Transmitter, logger Logger, connID string, opts ...TracerOption) *TracingTransmitter {
	if logger == nil {
		logger = NoopLogger{}
	}
	t := &TracingTransmitter{
		next:   next,
		logger: logger,
		connID: connID,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transmit forwards cmd and logs the OUT and IN halves. Link errors are not logged here;
// the caller reports them with context.
func (t *TracingTransmitter) Transmit(cmd []byte) ([]byte, error) {
	header, body, plain := splitCommand(cmd)

	out := &ExchangeEvent{Size: len(cmd), Opaque: !plain}
	sensitive := !plain
	if plain {
		out.Header = bytes.Clone(header)
		if sensitiveINS[iso7816.InsCode(header[1])] && len(body) > 0 {
			out.Redacted = true
			sensitive = true
		} else if t.payloads && len(body) > 0 {
			out.Data = bytes.Clone(body)
		}
	}
	t.emit(DirectionOut, out)

	resp, err := t.next.Transmit(cmd)
	if err != nil {
		return nil, err
	}

	in := &ExchangeEvent{Size: len(resp), Opaque: !plain}
	if len(resp) >= 2 {
		in.Status = uint16(resp[len(resp)-2])<<8 | uint16(resp[len(resp)-1])
		data := resp[:len(resp)-2]
		if t.payloads && !sensitive && len(data) > 0 {
			in.Data = bytes.Clone(data)
		}
	}
	t.emit(DirectionIn, in)

	return resp, nil
}

func (t *TracingTransmitter) emit(dir Direction, x *ExchangeEvent) {
	t.logger.Log(Event{
		Timestamp:    t.now(),
		ConnectionID: t.connID,
		Direction:    dir,
		Category:     CategoryExchange,
		Reader:       t.reader,
		Exchange:     x,
	})
}

// splitCommand decodes a short C-APDU in one of the classes this module sends
// (ISO 00..03 or proprietary B0). Anything else, including secure channel envelopes,
// is reported as not plain.
func splitCommand(cmd []byte) (header, body []byte, plain bool) {
	if len(cmd) < 4 {
		return nil, nil, false
	}
	cla, err := iso7816.NewClass(cmd[0])
	if err != nil || !(cla.IsBasic() || cla.Raw == 0xB0) {
		return nil, nil, false
	}

	header = cmd[:4]
	switch n := len(cmd); {
	case n == 4, n == 5:
		return header, nil, true
	default:
		lc := int(cmd[4])
		if lc == 0 && n == 5+256 {
			return header, cmd[5:], true
		}
		if lc == 0 || (n != 5+lc && n != 6+lc) {
			return nil, nil, false
		}
		return header, cmd[5 : 5+lc], true
	}
}

var _ iso7816.Transmitter = (*TracingTransmitter)(nil)
