package satochip

import (
	"fmt"

	"github.com/gregLibert/satochip/pkg/iso7816"
)

// CommandSet issues applet commands over an iso7816.Client.
// It holds no session state and is not safe for concurrent use; the caller serializes access.
type CommandSet struct {
	client *iso7816.Client
	iso    iso7816.Class
}

// NewCommandSet creates a CommandSet over a single-exchange client on link.
func NewCommandSet(link iso7816.Transmitter) *CommandSet {
	return NewCommandSetWithClient(iso7816.NewClient(link))
}

// NewCommandSetWithClient creates a CommandSet over an existing client.
func NewCommandSetWithClient(client *iso7816.Client) *CommandSet {
	iso, _ := iso7816.NewClass(0x00)
	return &CommandSet{client: client, iso: iso}
}

// NewCommand builds a proprietary-class applet command.
func NewCommand(ins iso7816.InsCode, p1, p2 byte, data []byte) *iso7816.CommandAPDU {
	cla, _ := iso7816.NewClass(CLA_SATOCHIP)
	return iso7816.NewCommandAPDU(cla, iso7816.ProprietaryInstruction(ins), p1, p2, data, 0)
}

// NewSignMessageCommand builds one chunk of the signing protocol:
// data block [message type, counter, chunk...] sent with PROCESS SECURE CHANNEL.
func NewSignMessageCommand(counter byte, chunk []byte) *iso7816.CommandAPDU {
	block := make([]byte, 0, 2+len(chunk))
	block = append(block, MessageTypeSign, counter)
	block = append(block, chunk...)
	return NewCommand(INS_PROCESS_SECURE_CHANNEL, 0x00, 0x00, block)
}

func (cs *CommandSet) send(op string, cmd *iso7816.CommandAPDU) (*iso7816.ResponseAPDU, error) {
	resp, err := cs.client.Transmit(cmd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

// Exchange transmits an already encoded frame (a secure channel envelope) and decodes the reply.
func (cs *CommandSet) Exchange(op string, frame []byte) (*iso7816.ResponseAPDU, error) {
	resp, err := cs.client.Exchange(frame)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

// SelectApplet selects the applet by AID.
func (cs *CommandSet) SelectApplet() (*iso7816.ResponseAPDU, error) {
	return cs.send("select applet", iso7816.SelectByAID(cs.iso, AppletAID))
}

// SelectAppletTrace selects the applet and returns the full trace, for FCI reporting.
func (cs *CommandSet) SelectAppletTrace() (iso7816.Trace, error) {
	trace, err := cs.client.Send(iso7816.SelectByAID(cs.iso, AppletAID))
	if err != nil {
		return nil, fmt.Errorf("select applet: %w", err)
	}
	return trace, nil
}

// GetStatus requests the application status blob (see ParseApplicationStatus).
func (cs *CommandSet) GetStatus() (*iso7816.ResponseAPDU, error) {
	return cs.send("get status", NewCommand(INS_GET_STATUS, 0x00, 0x00, nil))
}

// VerifyPIN presents the PIN as raw bytes, without padding.
func (cs *CommandSet) VerifyPIN(pin []byte) (*iso7816.ResponseAPDU, error) {
	return cs.send("verify pin", NewCommand(INS_VERIFY_PIN, 0x00, 0x00, pin))
}

// ChangePIN sends old and new PIN concatenated. Lengths are implied by enrollment.
func (cs *CommandSet) ChangePIN(oldPIN, newPIN []byte) (*iso7816.ResponseAPDU, error) {
	data := make([]byte, 0, len(oldPIN)+len(newPIN))
	data = append(data, oldPIN...)
	data = append(data, newPIN...)
	return cs.send("change pin", NewCommand(INS_CHANGE_PIN, 0x00, 0x00, data))
}

// UnblockPIN presents the PUK to reset the PIN retry counter.
func (cs *CommandSet) UnblockPIN(puk []byte) (*iso7816.ResponseAPDU, error) {
	return cs.send("unblock pin", NewCommand(INS_UNBLOCK_PIN, 0x00, 0x00, puk))
}

// LoadKey imports key material into the given slot.
func (cs *CommandSet) LoadKey(keyType KeyType, keyData []byte) (*iso7816.ResponseAPDU, error) {
	return cs.send("load key", NewCommand(INS_LOAD_KEY, byte(keyType), 0x00, keyData))
}

// DeriveKey derives the given slot along a derivation path.
func (cs *CommandSet) DeriveKey(keyType KeyType, path []byte) (*iso7816.ResponseAPDU, error) {
	return cs.send("derive key", NewCommand(INS_DERIVE_KEY, byte(keyType), 0x00, path))
}

// GenerateKey asks the card to generate a fresh key in the given slot.
func (cs *CommandSet) GenerateKey(keyType KeyType) (*iso7816.ResponseAPDU, error) {
	return cs.send("generate key", NewCommand(INS_GEN_KEY, byte(keyType), 0x00, nil))
}

// GetPublicKey reads the public key of the given slot.
func (cs *CommandSet) GetPublicKey(keyType KeyType) (*iso7816.ResponseAPDU, error) {
	return cs.send("get public key", NewCommand(INS_GET_PUBKEY, byte(keyType), 0x00, nil))
}

// Sign signs data with the signature key. Chunking is the caller's responsibility.
func (cs *CommandSet) Sign(data []byte) (*iso7816.ResponseAPDU, error) {
	return cs.send("sign", NewCommand(INS_SIGN, 0x00, 0x00, data))
}

// GetChannelKey reads the RSA public key used to wrap the channel challenge.
func (cs *CommandSet) GetChannelKey() (*iso7816.ResponseAPDU, error) {
	return cs.send("get channel key", NewCommand(INS_GET_CHANNEL_KEY, 0x00, 0x00, nil))
}

// InitSecureChannel sends the encrypted challenge. On success the payload seeds the channel IV.
func (cs *CommandSet) InitSecureChannel(encryptedChallenge []byte) (*iso7816.ResponseAPDU, error) {
	frame, err := InitSecureChannelFrame(encryptedChallenge)
	if err != nil {
		return nil, fmt.Errorf("init secure channel: %w", err)
	}
	return cs.Exchange("init secure channel", frame)
}

// InitSecureChannelFrame encodes B0 81 00 00 Lc blob. A 2048-bit RSA blob is 256 bytes,
// one more than a short Lc holds; the applet reads it with Lc = 0x00.
func InitSecureChannelFrame(blob []byte) ([]byte, error) {
	if len(blob) == 0 || len(blob) > iso7816.MaxShortLc+1 {
		return nil, fmt.Errorf("%w: challenge blob of %d bytes", iso7816.ErrPayloadTooLong, len(blob))
	}
	frame := make([]byte, 0, 5+len(blob))
	frame = append(frame, CLA_SATOCHIP, byte(INS_INIT_SECURE_CHANNEL), 0x00, 0x00, byte(len(blob)))
	return append(frame, blob...), nil
}

// GetAuthentikey reads the card authentication key, used to confirm a fresh channel.
func (cs *CommandSet) GetAuthentikey() (*iso7816.ResponseAPDU, error) {
	return cs.send("get authentikey", NewCommand(INS_GET_AUTHENTIKEY, 0x00, 0x00, nil))
}

// SignMessageChunk sends one signing chunk in the clear.
func (cs *CommandSet) SignMessageChunk(counter byte, chunk []byte) (*iso7816.ResponseAPDU, error) {
	return cs.send("sign message", NewSignMessageCommand(counter, chunk))
}
