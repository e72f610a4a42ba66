package eventlog

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/satochip/pkg/iso7816"
	"github.com/gregLibert/satochip/pkg/satochip"
	"github.com/gregLibert/satochip/pkg/tlv"
)

type echoCard struct {
	reply []byte
	err   error
}

func (c *echoCard) Transmit([]byte) ([]byte, error) {
	return c.reply, c.err
}

func TestTracingTransmitter_PlainExchange(t *testing.T) {
	rec := &Recorder{}
	card := &echoCard{reply: tlv.Hex("2B 03 03 90 00")}
	tr := NewTracingTransmitter(card, rec, "conn-1", WithPayloads(), WithReader("ACS ACR122U"))

	resp, err := tr.Transmit(tlv.Hex("B0 3C 00 00"))
	require.NoError(t, err)
	assert.Equal(t, card.reply, resp)

	events := rec.Events()
	require.Len(t, events, 2)

	out, in := events[0], events[1]
	assert.Equal(t, DirectionOut, out.Direction)
	assert.Equal(t, "conn-1", out.ConnectionID)
	assert.Equal(t, "ACS ACR122U", out.Reader)
	assert.Equal(t, tlv.Hex("B0 3C 00 00"), out.Exchange.Header)
	assert.Equal(t, 4, out.Exchange.Size)

	assert.Equal(t, DirectionIn, in.Direction)
	assert.Equal(t, uint16(0x9000), in.Exchange.Status)
	assert.Equal(t, tlv.Hex("2B 03 03"), in.Exchange.Data)
}

func TestTracingTransmitter_RedactsPIN(t *testing.T) {
	rec := &Recorder{}
	tr := NewTracingTransmitter(&echoCard{reply: tlv.Hex("63 C0")}, rec, "conn-1", WithPayloads())

	_, err := tr.Transmit(tlv.Hex("B0 42 00 00 06 31 32 33 34 35 36"))
	require.NoError(t, err)

	events := rec.Events()
	require.Len(t, events, 2)
	assert.True(t, events[0].Exchange.Redacted)
	assert.Nil(t, events[0].Exchange.Data)
	assert.Equal(t, uint16(0x63C0), events[1].Exchange.Status)

	for _, ev := range events {
		assert.NotContains(t, ev.String(), "313233")
	}
}

func TestTracingTransmitter_RedactsSecrets(t *testing.T) {
	for _, ins := range []iso7816.InsCode{
		satochip.INS_VERIFY_PIN,
		satochip.INS_CHANGE_PIN,
		satochip.INS_UNBLOCK_PIN,
		satochip.INS_INIT_SECURE_CHANNEL,
		satochip.INS_LOAD_KEY,
		iso7816.INS_VERIFY,
	} {
		t.Run(ins.String(), func(t *testing.T) {
			rec := &Recorder{}
			tr := NewTracingTransmitter(&echoCard{reply: tlv.Hex("90 00")}, rec, "conn-1", WithPayloads())

			_, err := tr.Transmit([]byte{0xB0, byte(ins), 0x00, 0x00, 0x02, 0xAB, 0xCD})
			require.NoError(t, err)
			events := rec.Events()
			require.NotEmpty(t, events)
			assert.True(t, events[0].Exchange.Redacted)
			assert.Nil(t, events[0].Exchange.Data)
		})
	}

	rec := &Recorder{}
	tr := NewTracingTransmitter(&echoCard{reply: tlv.Hex("90 00")}, rec, "conn-1", WithPayloads())
	_, err := tr.Transmit([]byte{0xB0, byte(satochip.INS_GET_PUBKEY), 0x00, 0x00, 0x01, 0x03})
	require.NoError(t, err)
	assert.False(t, rec.Events()[0].Exchange.Redacted)
}

func TestTracingTransmitter_OpaqueEnvelope(t *testing.T) {
	rec := &Recorder{}
	tr := NewTracingTransmitter(&echoCard{reply: append(bytes.Repeat([]byte{0x11}, 36), 0x90, 0x00)}, rec, "c", WithPayloads())

	// 16 bytes of ciphertext plus a 20-byte MAC do not decode as a plain APDU.
	envelope := bytes.Repeat([]byte{0xE7}, 36)
	_, err := tr.Transmit(envelope)
	require.NoError(t, err)

	events := rec.Events()
	require.Len(t, events, 2)
	assert.True(t, events[0].Exchange.Opaque)
	assert.Nil(t, events[0].Exchange.Header)
	assert.Nil(t, events[1].Exchange.Data)
	assert.Contains(t, events[0].String(), "[encrypted]")
}

func TestTracingTransmitter_NoPayloadsByDefault(t *testing.T) {
	rec := &Recorder{}
	tr := NewTracingTransmitter(&echoCard{reply: tlv.Hex("04AABB 9000")}, rec, "c")

	_, err := tr.Transmit(tlv.Hex("B0 C1 03 00"))
	require.NoError(t, err)

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Nil(t, events[1].Exchange.Data)
	assert.Equal(t, 5, events[1].Exchange.Size)
}

func TestTracingTransmitter_LinkError(t *testing.T) {
	rec := &Recorder{}
	lost := errors.New("card removed")
	tr := NewTracingTransmitter(&echoCard{err: lost}, rec, "c")

	_, err := tr.Transmit(tlv.Hex("B0 3C 00 00"))
	assert.ErrorIs(t, err, lost)
	assert.Len(t, rec.Events(), 1, "only the OUT half is logged")
}

func TestTracingTransmitter_NilLogger(t *testing.T) {
	tr := NewTracingTransmitter(&echoCard{reply: tlv.Hex("9000")}, nil, "c")
	_, err := tr.Transmit(tlv.Hex("B0 3C 00 00"))
	assert.NoError(t, err)
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name  string
		cmd   []byte
		body  []byte
		plain bool
	}{
		{name: "Case 1", cmd: tlv.Hex("B0 3C 00 00"), plain: true},
		{name: "Case 2", cmd: tlv.Hex("00 A4 00 00 00"), plain: true},
		{name: "Case 3", cmd: tlv.Hex("00 A4 04 00 02 AA BB"), body: tlv.Hex("AA BB"), plain: true},
		{name: "Case 4", cmd: tlv.Hex("00 A4 04 00 02 AA BB 00"), body: tlv.Hex("AA BB"), plain: true},
		{name: "Too short", cmd: tlv.Hex("B0 3C"), plain: false},
		{name: "Foreign class", cmd: tlv.Hex("80 CA 9F 7F 00"), plain: false},
		{name: "Chained ISO class", cmd: tlv.Hex("10 A4 04 00 01 AA"), plain: false},
		{name: "Lc mismatch", cmd: tlv.Hex("B0 82 00 00 09 01 02"), plain: false},
		{name: "Channel init blob", cmd: append(tlv.Hex("B0 81 00 00 00"), make([]byte, 256)...), body: make([]byte, 256), plain: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, body, plain := splitCommand(tt.cmd)
			assert.Equal(t, tt.plain, plain)
			assert.Equal(t, tt.body, body)
		})
	}
}
