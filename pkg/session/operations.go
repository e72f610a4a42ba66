package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/gregLibert/satochip/pkg/iso7816"
	"github.com/gregLibert/satochip/pkg/satochip"
	"github.com/gregLibert/satochip/pkg/securechannel"
)

// call runs one round trip on an established connection. A link failure ends the
// connection; any other error leaves the state as it was.
func (s *Session) call(ctx context.Context, op string, fn func() (*iso7816.ResponseAPDU, error)) (*iso7816.ResponseAPDU, error) {
	if err := s.ready(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := s.roundTrip(ctx, op, fn)
	if err != nil {
		s.fail(op, err)
		return nil, err
	}
	return resp, nil
}

// fail reports a post-handshake error and drops the connection on link loss or a
// broken channel.
func (s *Session) fail(op string, err error) {
	var te *iso7816.TransportError
	switch {
	case errors.As(err, &te), errors.Is(err, securechannel.ErrIntegrityCheckFailed):
		s.abort(op, err)
	default:
		s.logError(op, err)
	}
}

// VerifyPIN presents pin. On 9000 the session becomes Authenticated; otherwise the
// *satochip.ProtocolError is returned and the state is unchanged. PINs longer than
// 255 bytes are truncated. Retry counters are only updated by RefreshStatus.
func (s *Session) VerifyPIN(ctx context.Context, pin []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(pin) > iso7816.MaxShortLc {
		pin = pin[:iso7816.MaxShortLc]
	}
	verify := func() (*iso7816.ResponseAPDU, error) { return s.cmds.VerifyPIN(pin) }
	if _, err := s.call(ctx, "verify pin", verify); err != nil {
		return err
	}

	if s.status != nil {
		s.status.Authenticated = true
	}
	s.transition(StateAuthenticated, "PIN verified")
	return nil
}

// ChangePIN replaces oldPIN with newPIN. The new PIN must satisfy satochip.ValidatePIN.
func (s *Session) ChangePIN(ctx context.Context, oldPIN, newPIN []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := satochip.ValidatePIN(newPIN); err != nil {
		return fmt.Errorf("change pin: %w", err)
	}
	change := func() (*iso7816.ResponseAPDU, error) { return s.cmds.ChangePIN(oldPIN, newPIN) }
	_, err := s.call(ctx, "change pin", change)
	return err
}

// UnblockPIN presents the PUK to reset the PIN retry counter. It does not authenticate.
func (s *Session) UnblockPIN(ctx context.Context, puk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unblock := func() (*iso7816.ResponseAPDU, error) { return s.cmds.UnblockPIN(puk) }
	_, err := s.call(ctx, "unblock pin", unblock)
	return err
}

// RefreshStatus reads the application status again and returns a copy.
func (s *Session) RefreshStatus(ctx context.Context) (*satochip.ApplicationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.call(ctx, "get status", s.cmds.GetStatus)
	if err != nil {
		return nil, err
	}
	st, err := satochip.ParseApplicationStatus(resp.Data)
	if err != nil {
		s.logError("get status", err)
		return nil, err
	}
	s.status = st
	out := *st
	return &out, nil
}

// PublicKey reads the public key held in a slot.
func (s *Session) PublicKey(ctx context.Context, kt satochip.KeyType) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	get := func() (*iso7816.ResponseAPDU, error) { return s.cmds.GetPublicKey(kt) }
	resp, err := s.call(ctx, "get public key", get)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(resp.Data), nil
}

// LoadKey imports key material into a slot.
func (s *Session) LoadKey(ctx context.Context, kt satochip.KeyType, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	load := func() (*iso7816.ResponseAPDU, error) { return s.cmds.LoadKey(kt, key) }
	_, err := s.call(ctx, "load key", load)
	return err
}

// DeriveKey derives a slot along path.
func (s *Session) DeriveKey(ctx context.Context, kt satochip.KeyType, path []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	derive := func() (*iso7816.ResponseAPDU, error) { return s.cmds.DeriveKey(kt, path) }
	_, err := s.call(ctx, "derive key", derive)
	return err
}

// GenerateKey asks the card for a fresh key in a slot.
func (s *Session) GenerateKey(ctx context.Context, kt satochip.KeyType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen := func() (*iso7816.ResponseAPDU, error) { return s.cmds.GenerateKey(kt) }
	_, err := s.call(ctx, "generate key", gen)
	return err
}

// Sign signs data in a single command. data must fit one short APDU.
func (s *Session) Sign(ctx context.Context, data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sign := func() (*iso7816.ResponseAPDU, error) { return s.cmds.Sign(data) }
	resp, err := s.call(ctx, "sign", sign)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(resp.Data), nil
}

// SignMessage signs message in chunks of Options.ChunkSize. Chunk i carries counter
// CounterStart+i; over an established channel each command is encrypted whole and
// each response payload decrypted. The payload answering the last chunk is the signature.
//
// The first failing chunk aborts the exchange. An integrity failure discards the
// channel and moves the session to Failed; a link failure moves it to Disconnected.
func (s *Session) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	if s.state != StateAuthenticated {
		return nil, fmt.Errorf("sign message: %w", ErrNotAuthenticated)
	}
	if len(message) == 0 {
		return nil, ErrEmptyMessage
	}

	size, start := s.opts.ChunkSize, s.opts.CounterStart
	chunks := (len(message) + size - 1) / size
	if last := start + chunks - 1; last > 0xFF {
		return nil, fmt.Errorf("%w: %d chunks from counter %d", ErrMessageTooLong, chunks, start)
	}

	var sig []byte
	for i := range chunks {
		chunk := message[i*size : min((i+1)*size, len(message))]
		op := fmt.Sprintf("sign message chunk %d/%d", i+1, chunks)

		payload, err := s.signChunk(ctx, op, byte(start+i), chunk)
		if err != nil {
			s.fail(op, err)
			return nil, err
		}
		sig = payload
	}
	return sig, nil
}

func (s *Session) signChunk(ctx context.Context, op string, counter byte, chunk []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.channel.IsInitialized() {
		resp, err := s.cmds.SignMessageChunk(counter, chunk)
		if err != nil {
			return nil, err
		}
		if err := satochip.CheckStatus(op, resp); err != nil {
			return nil, err
		}
		return bytes.Clone(resp.Data), nil
	}

	raw, err := satochip.NewSignMessageCommand(counter, chunk).Bytes()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	env, err := s.channel.Encrypt(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := s.cmds.Exchange(op, env)
	if err != nil {
		return nil, err
	}
	if err := satochip.CheckStatus(op, resp); err != nil {
		return nil, err
	}
	payload, err := s.channel.Decrypt(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return payload, nil
}
