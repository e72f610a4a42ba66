package securechannel

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"io"
)

const (
	// ChallengeSize is the length of the host challenge.
	ChallengeSize = 32
	// MinPublicKeySize is the smallest channel key blob accepted from the card.
	MinPublicKeySize = 256
)

// NewChallenge reads ChallengeSize bytes from r, or from crypto/rand when r is nil.
func NewChallenge(r io.Reader) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	challenge := make([]byte, ChallengeSize)
	if _, err := io.ReadFull(r, challenge); err != nil {
		return nil, fmt.Errorf("securechannel: challenge: %w", err)
	}
	return challenge, nil
}

// ParsePublicKey decodes the card channel key. PKIX is expected; bare PKCS#1 is accepted.
func ParsePublicKey(der []byte) (*rsa.PublicKey, error) {
	if len(der) < MinPublicKeySize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidPublicKey, len(der), MinPublicKeySize)
	}

	if key, err := x509.ParsePKIXPublicKey(der); err == nil {
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not RSA", ErrInvalidPublicKey, key)
		}
		return pub, nil
	}

	pub, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// EncryptChallenge wraps the challenge with RSA PKCS#1 v1.5 under the card channel key.
// r supplies the padding randomness; nil means crypto/rand.
func EncryptChallenge(r io.Reader, pubKeyDER, challenge []byte) ([]byte, error) {
	pub, err := ParsePublicKey(pubKeyDER)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = rand.Reader
	}
	out, err := rsa.EncryptPKCS1v15(r, pub, challenge)
	if err != nil {
		return nil, fmt.Errorf("securechannel: encrypt challenge: %w", err)
	}
	return out, nil
}

// DecryptChallenge is the card side of EncryptChallenge.
func DecryptChallenge(priv *rsa.PrivateKey, blob []byte) ([]byte, error) {
	challenge, err := rsa.DecryptPKCS1v15(nil, priv, blob)
	if err != nil {
		return nil, fmt.Errorf("securechannel: decrypt challenge: %w", err)
	}
	return challenge, nil
}
