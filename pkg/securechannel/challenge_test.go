package securechannel

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func channelKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func TestNewChallenge(t *testing.T) {
	fixed := bytes.Repeat([]byte{0x07}, 64)
	c, err := NewChallenge(bytes.NewReader(fixed))
	require.NoError(t, err)
	assert.Equal(t, fixed[:ChallengeSize], c)

	c1, err := NewChallenge(nil)
	require.NoError(t, err)
	c2, err := NewChallenge(nil)
	require.NoError(t, err)
	assert.Len(t, c1, ChallengeSize)
	assert.NotEqual(t, c1, c2)

	_, err = NewChallenge(bytes.NewReader([]byte{0x01}))
	assert.Error(t, err)
}

func TestEncryptChallenge_RoundTrip(t *testing.T) {
	priv := channelKey(t)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(der), MinPublicKeySize)

	challenge := bytes.Repeat([]byte{0xC3}, ChallengeSize)
	blob, err := EncryptChallenge(nil, der, challenge)
	require.NoError(t, err)
	assert.Len(t, blob, priv.Size())

	got, err := DecryptChallenge(priv, blob)
	require.NoError(t, err)
	assert.Equal(t, challenge, got)
}

func TestParsePublicKey_PKCS1Fallback(t *testing.T) {
	priv := channelKey(t)
	der := x509.MarshalPKCS1PublicKey(&priv.PublicKey)

	pub, err := ParsePublicKey(der)
	require.NoError(t, err)
	assert.Equal(t, priv.PublicKey.N, pub.N)
}

func TestParsePublicKey_Invalid(t *testing.T) {
	tests := []struct {
		name string
		der  []byte
	}{
		{name: "Empty", der: nil},
		{name: "Too short", der: make([]byte, MinPublicKeySize-1)},
		{name: "Not DER", der: bytes.Repeat([]byte{0xFF}, 300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePublicKey(tt.der)
			assert.True(t, errors.Is(err, ErrInvalidPublicKey), "err = %v", err)

			_, err = EncryptChallenge(nil, tt.der, make([]byte, ChallengeSize))
			assert.ErrorIs(t, err, ErrInvalidPublicKey)
		})
	}
}
