package securechannel

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/satochip/pkg/tlv"
)

func testChallenge() []byte {
	c := make([]byte, ChallengeSize)
	for i := range c {
		c[i] = byte(i)
	}
	return c
}

func testCardResponse() []byte {
	return tlv.Hex(
		"A0 A1 A2 A3 A4 A5 A6 A7 A8 A9 AA AB AC AD AE AF", // IV seed
		"01 02 03 04", // trailing bytes are ignored
	)
}

func newPair(t *testing.T) (host, card *Session) {
	t.Helper()
	host, card = New(), New()
	require.NoError(t, host.Initialize(testCardResponse(), testChallenge()))
	require.NoError(t, card.Initialize(testCardResponse(), testChallenge()))
	return host, card
}

func TestSession_KnownAnswer(t *testing.T) {
	s := New()
	require.NoError(t, s.Initialize(testCardResponse(), testChallenge()))

	out, err := s.Encrypt([]byte("satochip"))
	require.NoError(t, err)

	expected := tlv.Hex(
		"34C4EBBC0686925D33214EC6E7C5BDD9",         // AES-256-CBC
		"6C50916BE5019796877AF53FE9E2BA236C8C96AB", // HMAC-SHA1
	)
	assert.Equal(t, expected, out)

	// Second envelope uses iv[12:16] = 00000001.
	out, err = s.Encrypt([]byte("satochip"))
	require.NoError(t, err)
	assert.Equal(t, tlv.Hex("BB9D08E08028203D3D6F4DE6272993B8"), out[:16])
}

func TestSession_KeyDependsOnlyOnChallenge(t *testing.T) {
	seed := testCardResponse()[:IVSize]
	encrypt := func(trailer, challenge []byte) []byte {
		t.Helper()
		s := New()
		require.NoError(t, s.Initialize(append(bytes.Clone(seed), trailer...), challenge))
		out, err := s.Encrypt([]byte("satochip"))
		require.NoError(t, err)
		return out
	}

	a := encrypt(tlv.Hex("01 02 03 04 05 06 07 08"), testChallenge())
	b := encrypt(tlv.Hex("09 09 09 09 09 09 09 09"), testChallenge())
	assert.Equal(t, a, b, "bytes after the IV seed are ignored")

	other := bytes.Clone(testChallenge())
	other[0] ^= 0xFF
	c := encrypt(tlv.Hex("01 02 03 04 05 06 07 08"), other)
	assert.NotEqual(t, a, c)
}

func TestSession_RoundTrip(t *testing.T) {
	host, card := newPair(t)

	for _, msg := range [][]byte{
		{},
		[]byte("x"),
		bytes.Repeat([]byte{0x5A}, 16),
		bytes.Repeat([]byte{0xA5}, 205),
	} {
		env, err := host.Encrypt(msg)
		require.NoError(t, err)
		assert.Zero(t, (len(env)-MACSize)%16)

		got, err := card.Decrypt(env)
		require.NoError(t, err)
		assert.Equal(t, msg, got)

		reply, err := card.Encrypt(append([]byte{0x90}, msg...))
		require.NoError(t, err)
		got, err = host.Decrypt(reply)
		require.NoError(t, err)
		assert.Equal(t, append([]byte{0x90}, msg...), got)
	}

	assert.Equal(t, host.IV(), card.IV(), "both ends advance in lockstep")
	assert.Equal(t, uint32(8), host.Counter())
}

func TestSession_IVAdvance(t *testing.T) {
	s := New()
	require.NoError(t, s.Initialize(testCardResponse(), testChallenge()))
	seed := testCardResponse()[:IVSize]
	assert.Equal(t, seed, s.IV())

	for i := 1; i <= 3; i++ {
		_, err := s.Encrypt([]byte("ping"))
		require.NoError(t, err)

		iv := s.IV()
		assert.Equal(t, seed[:12], iv[:12], "prefix is fixed after Initialize")
		assert.Equal(t, []byte{0, 0, 0, byte(i)}, iv[12:])
	}
}

func TestSession_TamperDetected(t *testing.T) {
	host, card := newPair(t)

	env, err := host.Encrypt([]byte("sign this"))
	require.NoError(t, err)

	for bit := range len(env) * 8 {
		bad := bytes.Clone(env)
		bad[bit/8] ^= 1 << (bit % 8)

		_, err := card.Decrypt(bad)
		require.ErrorIs(t, err, ErrIntegrityCheckFailed, "byte %d bit %d", bit/8, bit%8)
	}
	assert.Equal(t, uint32(0), card.Counter(), "failed decrypts must not advance the IV")

	got, err := card.Decrypt(env)
	require.NoError(t, err)
	assert.Equal(t, []byte("sign this"), got)
}

func TestSession_ShortEnvelope(t *testing.T) {
	_, card := newPair(t)

	for _, n := range []int{0, MACSize, MACSize + 15} {
		_, err := card.Decrypt(make([]byte, n))
		assert.ErrorIs(t, err, ErrIntegrityCheckFailed, "length %d", n)
	}
}

func TestSession_NotInitialized(t *testing.T) {
	s := New()
	assert.False(t, s.IsInitialized())

	_, err := s.Encrypt([]byte("x"))
	assert.ErrorIs(t, err, ErrChannelNotInitialized)

	_, err = s.Decrypt(make([]byte, 64))
	assert.ErrorIs(t, err, ErrChannelNotInitialized)
	assert.Nil(t, s.IV())
}

func TestSession_InitializeShortResponse(t *testing.T) {
	s := New()
	err := s.Initialize(make([]byte, IVSize-1), testChallenge())
	assert.ErrorIs(t, err, ErrInvalidChannelResponse)
	assert.False(t, s.IsInitialized())

	// A rejected response leaves an existing channel in place.
	require.NoError(t, s.Initialize(testCardResponse(), testChallenge()))
	assert.ErrorIs(t, s.Initialize([]byte{0x01}, testChallenge()), ErrInvalidChannelResponse)
	assert.True(t, s.IsInitialized())
}

func TestSession_Close(t *testing.T) {
	host, _ := newPair(t)
	host.Close()

	assert.False(t, host.IsInitialized())
	assert.Nil(t, host.IV())
	_, err := host.Encrypt([]byte("x"))
	assert.ErrorIs(t, err, ErrChannelNotInitialized)
}

func TestSession_DifferentChallengeFails(t *testing.T) {
	host, card := New(), New()
	require.NoError(t, host.Initialize(testCardResponse(), testChallenge()))
	require.NoError(t, card.Initialize(testCardResponse(), make([]byte, ChallengeSize)))

	env, err := host.Encrypt([]byte("hello"))
	require.NoError(t, err)
	_, err = card.Decrypt(env)
	assert.ErrorIs(t, err, ErrIntegrityCheckFailed)
}

func TestPKCS7(t *testing.T) {
	for n := 0; n <= 32; n++ {
		data := bytes.Repeat([]byte{0x42}, n)
		padded := pkcs7Pad(data, 16)
		assert.Zero(t, len(padded)%16)
		assert.Greater(t, len(padded), n)

		got, err := pkcs7Unpad(padded, 16)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}

	_, err := pkcs7Unpad(tlv.Hex("00000000000000000000000000000000"), 16)
	assert.Error(t, err)
	_, err = pkcs7Unpad(tlv.Hex("00000000000000000000000000000311"), 16)
	assert.Error(t, err)
}
