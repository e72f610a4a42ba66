/*
Package securechannel implements the host side of the Satochip secure channel.

After the handshake both ends hold the same key material:

	sessionKey = SHA-256(challenge)
	derivedKey = SHA-256(sessionKey)
	iv         = first 16 bytes of the INIT SECURE CHANNEL response

Each envelope is AES-256-CBC (PKCS#7) under derivedKey and the current IV, followed by
HMAC-SHA1(derivedKey, ciphertext). Every successful Encrypt or Decrypt advances the IV:
a counter is incremented and written big-endian into iv[12:16]. Host and card advance in
lockstep, so a dropped or repeated envelope desynchronizes the channel for good.
*/
package securechannel

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

const (
	// IVSize is the AES block size and the number of response bytes that seed the IV.
	IVSize = aes.BlockSize
	// MACSize is the HMAC-SHA1 tag length appended to every envelope.
	MACSize = sha1.Size
)

var (
	ErrChannelNotInitialized  = errors.New("securechannel: channel not initialized")
	ErrIntegrityCheckFailed   = errors.New("securechannel: integrity check failed")
	ErrInvalidPublicKey       = errors.New("securechannel: invalid channel public key")
	ErrInvalidChannelResponse = errors.New("securechannel: invalid channel response")
)

// Session holds the symmetric state of one secure channel.
// A zero Session is uninitialized; it is safe for concurrent use.
type Session struct {
	mu sync.Mutex

	initialized bool
	sessionKey  []byte
	derivedKey  []byte
	iv          []byte
	counter     uint32
}

// New returns an uninitialized Session.
func New() *Session {
	return &Session{}
}

// Initialize derives the channel keys from the host challenge and seeds the IV from the
// card response. A response shorter than IVSize leaves the session untouched.
func (s *Session) Initialize(cardResponse, challenge []byte) error {
	if len(cardResponse) < IVSize {
		return fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidChannelResponse, len(cardResponse), IVSize)
	}

	sk := sha256.Sum256(challenge)
	dk := sha256.Sum256(sk[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	s.wipe()
	s.sessionKey = sk[:]
	s.derivedKey = dk[:]
	s.iv = append(make([]byte, 0, IVSize), cardResponse[:IVSize]...)
	s.counter = 0
	s.initialized = true
	return nil
}

// IsInitialized reports whether Initialize succeeded and Close has not been called since.
func (s *Session) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Encrypt seals plaintext into ciphertext||mac and advances the IV.
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, ErrChannelNotInitialized
	}

	block, err := aes.NewCipher(s.derivedKey)
	if err != nil {
		return nil, fmt.Errorf("securechannel: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded), len(padded)+MACSize)
	cipher.NewCBCEncrypter(block, s.iv).CryptBlocks(out, padded)
	out = append(out, s.mac(out)...)

	s.advance()
	return out, nil
}

// Decrypt verifies and opens ciphertext||mac, then advances the IV.
// The MAC is checked before any decryption; on failure the IV is left as is.
func (s *Session) Decrypt(envelope []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, ErrChannelNotInitialized
	}

	if len(envelope) < MACSize+aes.BlockSize {
		return nil, fmt.Errorf("%w: envelope of %d bytes", ErrIntegrityCheckFailed, len(envelope))
	}

	ct := envelope[:len(envelope)-MACSize]
	tag := envelope[len(envelope)-MACSize:]
	if !hmac.Equal(s.mac(ct), tag) {
		return nil, fmt.Errorf("%w: MAC mismatch", ErrIntegrityCheckFailed)
	}
	if len(ct)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext not block aligned", ErrIntegrityCheckFailed)
	}

	block, err := aes.NewCipher(s.derivedKey)
	if err != nil {
		return nil, fmt.Errorf("securechannel: %w", err)
	}

	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, s.iv).CryptBlocks(pt, ct)
	pt, err = pkcs7Unpad(pt, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrityCheckFailed, err)
	}

	s.advance()
	return pt, nil
}

// IV returns a copy of the current IV, or nil before Initialize.
func (s *Session) IV() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.iv == nil {
		return nil
	}
	return bytes.Clone(s.iv)
}

// Counter returns the number of IV advances since Initialize.
func (s *Session) Counter() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// Close zeroes the key material and returns the session to the uninitialized state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wipe()
}

func (s *Session) wipe() {
	for _, b := range [][]byte{s.sessionKey, s.derivedKey, s.iv} {
		clear(b)
	}
	s.sessionKey, s.derivedKey, s.iv = nil, nil, nil
	s.counter = 0
	s.initialized = false
}

func (s *Session) mac(data []byte) []byte {
	h := hmac.New(sha1.New, s.derivedKey)
	h.Write(data)
	return h.Sum(nil)
}

func (s *Session) advance() {
	s.counter++
	binary.BigEndian.PutUint32(s.iv[IVSize-4:], s.counter)
}

func pkcs7Pad(data []byte, size int) []byte {
	n := size - len(data)%size
	out := make([]byte, len(data), len(data)+n)
	copy(out, data)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 || len(data)%size != 0 {
		return nil, errors.New("bad padding length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size {
		return nil, errors.New("bad padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("bad padding")
		}
	}
	return data[:len(data)-n], nil
}
