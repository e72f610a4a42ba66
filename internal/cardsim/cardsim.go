// Package cardsim simulates a Satochip applet behind an iso7816.Transmitter.
//
// The simulator speaks the same wire protocol as the card: applet selection, status,
// the RSA-wrapped secure channel handshake, PIN verification with retry counters, key
// slots and chunked message signing over the secure channel. Signatures are Ed25519 so
// tests can verify them against PublicKey(KeyTypeSignature).
package cardsim

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"sync"

	"github.com/gregLibert/satochip/pkg/bits"
	"github.com/gregLibert/satochip/pkg/iso7816"
	"github.com/gregLibert/satochip/pkg/satochip"
	"github.com/gregLibert/satochip/pkg/securechannel"
)

// ErrCardRemoved is returned by Transmit after Remove.
var ErrCardRemoved = errors.New("cardsim: card removed")

// Card is a simulated Satochip. It is safe for concurrent use.
type Card struct {
	mu sync.Mutex

	channelKey *rsa.PrivateKey
	channelDER []byte
	channel    *securechannel.Session
	authKey    ed25519.PrivateKey
	signer     ed25519.PrivateKey

	pin, puk           []byte
	pinTries, pukTries int
	verified           bool
	selected           bool
	setupDone          bool
	keys               map[satochip.KeyType][]byte

	counterStart int
	nextCounter  int
	message      []byte

	forced     map[iso7816.InsCode]iso7816.StatusWord
	failChunk  int
	failSW     iso7816.StatusWord
	tamper     bool
	removeAt   int
	removed    bool
	commands   [][]byte
	plaintexts [][]byte
}

// Option configures a Card.
type Option func(*Card)

// WithChannelKey uses priv for the secure channel instead of generating a key.
func WithChannelKey(priv *rsa.PrivateKey) Option {
	return func(c *Card) { c.channelKey = priv }
}

// WithPIN sets the enrolled PIN (default "123456").
func WithPIN(pin string) Option {
	return func(c *Card) { c.pin = []byte(pin) }
}

// WithPUK sets the enrolled PUK (default "87654321").
func WithPUK(puk string) Option {
	return func(c *Card) { c.puk = []byte(puk) }
}

// WithUninitialized makes the card report that setup has not been done.
func WithUninitialized() Option {
	return func(c *Card) { c.setupDone = false }
}

// WithCounterStart sets the first signing chunk counter the card expects (default 3).
func WithCounterStart(n int) Option {
	return func(c *Card) { c.counterStart = n }
}

// New creates a card. Without WithChannelKey a 2048-bit RSA key is generated.
func New(opts ...Option) (*Card, error) {
	c := &Card{
		pin:          []byte(satochip.PIN_DEFAULT),
		puk:          []byte("87654321"),
		pinTries:     satochip.PIN_MAX_TRIES,
		pukTries:     satochip.PIN_MAX_TRIES,
		setupDone:    true,
		keys:         make(map[satochip.KeyType][]byte),
		counterStart: satochip.DefaultCounterStart,
		forced:       make(map[iso7816.InsCode]iso7816.StatusWord),
		channel:      securechannel.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.channelKey == nil {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("cardsim: channel key: %w", err)
		}
		c.channelKey = k
	}
	der, err := x509.MarshalPKIXPublicKey(&c.channelKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("cardsim: channel key: %w", err)
	}
	c.channelDER = der

	if _, c.authKey, err = ed25519.GenerateKey(rand.Reader); err != nil {
		return nil, fmt.Errorf("cardsim: authentikey: %w", err)
	}
	if _, c.signer, err = ed25519.GenerateKey(rand.Reader); err != nil {
		return nil, fmt.Errorf("cardsim: signing key: %w", err)
	}
	c.keys[satochip.KeyTypeSignature] = c.signer.Public().(ed25519.PublicKey)
	c.keys[satochip.KeyTypeAuthentication] = c.authKey.Public().(ed25519.PublicKey)
	return c, nil
}

// ForceStatus makes every later command with ins answer sw.
func (c *Card) ForceStatus(ins iso7816.InsCode, sw iso7816.StatusWord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forced[ins] = sw
}

// FailChunk makes the k-th signing chunk (1-based) answer sw.
func (c *Card) FailChunk(k int, sw iso7816.StatusWord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failChunk, c.failSW = k, sw
}

// TamperResponses flips a bit in every later secure channel response.
func (c *Card) TamperResponses() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tamper = true
}

// RemoveAfter makes Transmit fail with ErrCardRemoved once n commands have been answered.
func (c *Card) RemoveAfter(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeAt = n
}

// Remove makes every later Transmit fail.
func (c *Card) Remove() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = true
}

// Commands returns a copy of every frame received, encrypted frames included.
func (c *Card) Commands() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clone2(c.commands)
}

// Plaintexts returns the decrypted commands received over the secure channel.
func (c *Card) Plaintexts() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clone2(c.plaintexts)
}

// PublicKey returns the public key held in a slot.
func (c *Card) PublicKey(kt satochip.KeyType) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.keys[kt])
}

// PINTries returns the remaining PIN attempts.
func (c *Card) PINTries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pinTries
}

// Transmit implements iso7816.Transmitter.
func (c *Card) Transmit(frame []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.removed || (c.removeAt > 0 && len(c.commands) >= c.removeAt) {
		c.removed = true
		return nil, ErrCardRemoved
	}
	c.commands = append(c.commands, bytes.Clone(frame))

	if c.channel.IsInitialized() && looksEncrypted(frame) {
		if pt, err := c.channel.Decrypt(frame); err == nil {
			c.plaintexts = append(c.plaintexts, bytes.Clone(pt))
			return c.secure(pt), nil
		}
	}

	data, sw := c.dispatch(frame)
	return reply(data, sw), nil
}

func (c *Card) secure(pt []byte) []byte {
	data, sw := c.dispatch(pt)
	if sw != satochip.SW_SUCCESS {
		return reply(nil, sw)
	}

	env, err := c.channel.Encrypt(data)
	if err != nil {
		return reply(nil, iso7816.SW_ERR_UNKNOWN)
	}
	if c.tamper {
		env[0] ^= 0x01
	}
	return reply(env, sw)
}

func (c *Card) dispatch(frame []byte) ([]byte, iso7816.StatusWord) {
	if len(frame) < 4 {
		return nil, iso7816.SW_ERR_WRONG_LENGTH
	}
	cla, ins, p1 := frame[0], iso7816.InsCode(frame[1]), frame[2]
	body, ok := commandBody(frame)
	if !ok {
		return nil, iso7816.SW_ERR_WRONG_LENGTH
	}

	if sw, ok := c.forced[ins]; ok {
		return nil, sw
	}
	if cla == 0x00 && ins == iso7816.INS_SELECT {
		return c.selectApplet(body)
	}
	if cla != satochip.CLA_SATOCHIP {
		return nil, iso7816.SW_ERR_CLA_NOT_SUPPORTED
	}
	if !c.selected {
		return nil, iso7816.SW_ERR_COND_OF_USE_NOT_SAT
	}

	switch ins {
	case satochip.INS_GET_STATUS:
		return c.status(), satochip.SW_SUCCESS
	case satochip.INS_GET_CHANNEL_KEY:
		return bytes.Clone(c.channelDER), satochip.SW_SUCCESS
	case satochip.INS_INIT_SECURE_CHANNEL:
		return c.initChannel(body)
	case satochip.INS_GET_AUTHENTIKEY:
		if !c.channel.IsInitialized() {
			return nil, iso7816.SW_ERR_COND_OF_USE_NOT_SAT
		}
		return bytes.Clone(c.keys[satochip.KeyTypeAuthentication]), satochip.SW_SUCCESS
	case satochip.INS_VERIFY_PIN:
		return nil, c.verifyPIN(body)
	case satochip.INS_CHANGE_PIN:
		return nil, c.changePIN(body)
	case satochip.INS_UNBLOCK_PIN:
		return nil, c.unblockPIN(body)
	case satochip.INS_GET_PUBKEY:
		key, ok := c.keys[satochip.KeyType(p1)]
		if !ok {
			return nil, iso7816.SW_ERR_REF_DATA_NOT_FOUND
		}
		return bytes.Clone(key), satochip.SW_SUCCESS
	case satochip.INS_LOAD_KEY, satochip.INS_DERIVE_KEY, satochip.INS_GEN_KEY:
		return nil, c.keyOp(ins, satochip.KeyType(p1), body)
	case satochip.INS_SIGN:
		if !c.verified {
			return nil, satochip.SW_SECURITY_STATUS_NOT_SATISFIED
		}
		return ed25519.Sign(c.signer, body), satochip.SW_SUCCESS
	case satochip.INS_PROCESS_SECURE_CHANNEL:
		return c.signChunk(body)
	default:
		return nil, satochip.SW_INS_NOT_SUPPORTED
	}
}

func (c *Card) selectApplet(aid []byte) ([]byte, iso7816.StatusWord) {
	if !bytes.Equal(aid, satochip.AppletAID) {
		return nil, iso7816.SW_ERR_FILE_NOT_FOUND
	}
	c.selected = true
	c.verified = false
	c.channel.Close()
	c.message, c.nextCounter = nil, 0
	return nil, satochip.SW_SUCCESS
}

func (c *Card) status() []byte {
	flags := bits.Pack(
		c.setupDone,
		c.verified,
		c.keys[satochip.KeyTypeMaster] != nil,
		c.keys[satochip.KeyTypeAuthentication] != nil,
		c.keys[satochip.KeyTypeEncryption] != nil,
		c.keys[satochip.KeyTypeSignature] != nil,
	)
	return []byte{flags, byte(c.pinTries), byte(c.pukTries)}
}

func (c *Card) initChannel(blob []byte) ([]byte, iso7816.StatusWord) {
	challenge, err := securechannel.DecryptChallenge(c.channelKey, blob)
	if err != nil || len(challenge) != securechannel.ChallengeSize {
		return nil, satochip.SW_WRONG_DATA
	}

	resp := make([]byte, securechannel.IVSize+4)
	if _, err := rand.Read(resp); err != nil {
		return nil, iso7816.SW_ERR_UNKNOWN
	}
	if err := c.channel.Initialize(resp, challenge); err != nil {
		return nil, iso7816.SW_ERR_UNKNOWN
	}
	return resp, satochip.SW_SUCCESS
}

func (c *Card) verifyPIN(pin []byte) iso7816.StatusWord {
	if c.pinTries == 0 {
		return satochip.SW_PIN_BLOCKED
	}
	if bytes.Equal(pin, c.pin) {
		c.pinTries = satochip.PIN_MAX_TRIES
		c.verified = true
		return satochip.SW_SUCCESS
	}

	c.verified = false
	c.pinTries--
	if c.pinTries == 0 {
		return satochip.SW_PIN_BLOCKED
	}
	return satochip.SW_WRONG_PIN
}

func (c *Card) changePIN(data []byte) iso7816.StatusWord {
	if len(data) <= len(c.pin) {
		return satochip.SW_WRONG_DATA
	}
	if sw := c.verifyPIN(data[:len(c.pin)]); sw != satochip.SW_SUCCESS {
		return sw
	}
	c.pin = bytes.Clone(data[len(c.pin):])
	return satochip.SW_SUCCESS
}

func (c *Card) unblockPIN(puk []byte) iso7816.StatusWord {
	if c.pukTries == 0 {
		return iso7816.SW_ERR_AUTH_METHOD_BLOCKED
	}
	if !bytes.Equal(puk, c.puk) {
		c.pukTries--
		return satochip.SW_WRONG_PIN
	}
	c.pukTries = satochip.PIN_MAX_TRIES
	c.pinTries = satochip.PIN_MAX_TRIES
	return satochip.SW_SUCCESS
}

func (c *Card) keyOp(ins iso7816.InsCode, kt satochip.KeyType, data []byte) iso7816.StatusWord {
	if !c.verified {
		return satochip.SW_SECURITY_STATUS_NOT_SATISFIED
	}
	if kt > satochip.KeyTypeSignature {
		return satochip.SW_WRONG_DATA
	}

	switch ins {
	case satochip.INS_LOAD_KEY:
		if len(data) == 0 {
			return satochip.SW_WRONG_DATA
		}
		c.keys[kt] = bytes.Clone(data)
	case satochip.INS_DERIVE_KEY:
		parent, ok := c.keys[kt]
		if !ok {
			return iso7816.SW_ERR_REF_DATA_NOT_FOUND
		}
		sum := sha256.Sum256(append(bytes.Clone(parent), data...))
		c.keys[kt] = sum[:]
	case satochip.INS_GEN_KEY:
		key := make([]byte, 33)
		if _, err := rand.Read(key); err != nil {
			return iso7816.SW_ERR_UNKNOWN
		}
		key[0] = 0x02
		c.keys[kt] = key
	}
	return satochip.SW_SUCCESS
}

// signChunk accumulates [type, counter, chunk...] blocks and answers each with a
// signature over the message received so far.
func (c *Card) signChunk(block []byte) ([]byte, iso7816.StatusWord) {
	if !c.verified {
		return nil, satochip.SW_SECURITY_STATUS_NOT_SATISFIED
	}
	if len(block) < 2 || block[0] != satochip.MessageTypeSign {
		return nil, satochip.SW_WRONG_DATA
	}

	counter := int(block[1])
	if counter == c.counterStart {
		c.message, c.nextCounter = nil, c.counterStart
	}
	if counter != c.nextCounter {
		return nil, satochip.SW_WRONG_DATA
	}

	if c.failChunk > 0 && counter-c.counterStart+1 == c.failChunk {
		return nil, c.failSW
	}

	c.message = append(c.message, block[2:]...)
	c.nextCounter++
	return ed25519.Sign(c.signer, c.message), satochip.SW_SUCCESS
}

// commandBody extracts the data field of a short C-APDU.
func commandBody(frame []byte) ([]byte, bool) {
	switch n := len(frame); {
	case n == 4, n == 5:
		return nil, true
	default:
		lc := int(frame[4])
		if lc == 0 && n == 5+256 {
			return frame[5:], true
		}
		if lc == 0 || (n != 5+lc && n != 6+lc) {
			return nil, false
		}
		return frame[5 : 5+lc], true
	}
}

// looksEncrypted reports whether frame has the shape of a secure channel envelope.
func looksEncrypted(frame []byte) bool {
	n := len(frame) - securechannel.MACSize
	return n >= securechannel.IVSize && n%securechannel.IVSize == 0
}

func reply(data []byte, sw iso7816.StatusWord) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return append(out, sw.SW1(), sw.SW2())
}

func clone2(in [][]byte) [][]byte {
	out := make([][]byte, len(in))
	for i, b := range in {
		out[i] = bytes.Clone(b)
	}
	return out
}
