/*
Package session sequences a Satochip connection: the handshake that brings a freshly
presented card to a usable secure channel, PIN management, key operations and chunked
message signing.

A Session is the single caller of the command set and the secure channel while a card is
connected. Every exported method takes the session lock for its whole duration, so
concurrent callers queue and card exchanges never interleave. Context cancellation is
checked between round trips; an exchange already handed to the link runs to completion.

# Handshake

	Connected          select applet            (9000)
	AppletSelected     get status               (9000, parsed)
	StatusRetrieved    get channel key          (9000, >= 256 bytes)
	                   init secure channel      (9000, >= 16 bytes)
	ChannelEstablished get authentikey          (9000)

The first step that fails ends the handshake. Nothing is retried: presenting the card
again (calling Connect) is the retry policy.
*/
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gregLibert/satochip/pkg/eventlog"
	"github.com/gregLibert/satochip/pkg/iso7816"
	"github.com/gregLibert/satochip/pkg/satochip"
	"github.com/gregLibert/satochip/pkg/securechannel"
)

// Session drives one card connection at a time. It is safe for concurrent use.
type Session struct {
	mu sync.Mutex

	opts    Options
	logger  *slog.Logger
	events  eventlog.Logger
	rand    io.Reader
	onState StateFunc
	newID   func() string

	state       State
	connID      string
	cmds        *satochip.CommandSet
	channel     *securechannel.Session
	status      *satochip.ApplicationStatus
	authentikey []byte
}

// New creates a disconnected Session. Invalid options are replaced by their defaults;
// call Options.Validate first to reject them instead.
func New(cfg Options, opts ...Option) *Session {
	cfg = cfg.withDefaults()
	if cfg.Validate() != nil {
		d := DefaultOptions()
		cfg.ChunkSize, cfg.CounterStart = d.ChunkSize, d.CounterStart
	}

	s := &Session{
		opts:    cfg,
		logger:  slog.New(slog.DiscardHandler),
		events:  eventlog.NoopLogger{},
		newID:   uuid.NewString,
		state:   StateDisconnected,
		channel: securechannel.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectionID returns the ID of the current or last connection, or "" before Connect.
func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// Status returns a copy of the last status read from the card, or nil.
func (s *Session) Status() *satochip.ApplicationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == nil {
		return nil
	}
	st := *s.status
	return &st
}

// Authentikey returns the key confirmed at the end of the handshake.
func (s *Session) Authentikey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.authentikey)
}

// Connect runs the handshake over link. Any previous connection is discarded first.
// On failure the returned error is a *iso7816.TransportError, a *satochip.ProtocolError,
// or wraps one of the securechannel and satochip sentinels.
func (s *Session) Connect(ctx context.Context, link iso7816.Transmitter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.discard()
	if s.state != StateDisconnected {
		s.transition(StateDisconnected, "reconnect")
	}

	s.connID = s.newID()
	var tracerOpts []eventlog.TracerOption
	if s.opts.TracePayloads {
		tracerOpts = append(tracerOpts, eventlog.WithPayloads())
	}
	if s.opts.Reader != "" {
		tracerOpts = append(tracerOpts, eventlog.WithReader(s.opts.Reader))
	}
	s.cmds = satochip.NewCommandSet(eventlog.NewTracingTransmitter(link, s.events, s.connID, tracerOpts...))
	s.channel = securechannel.New()
	s.transition(StateConnected, "card present")

	if op, err := s.handshake(ctx); err != nil {
		s.abort(op, err)
		return err
	}

	s.logger.Info("card ready",
		slog.String("conn_id", s.connID),
		slog.String("state", s.state.String()),
		slog.Bool("secure_channel", s.channel.IsInitialized()),
	)
	return nil
}

func (s *Session) handshake(ctx context.Context) (string, error) {
	if _, err := s.roundTrip(ctx, "select applet", s.cmds.SelectApplet); err != nil {
		return "select applet", err
	}
	s.transition(StateAppletSelected, "")

	resp, err := s.roundTrip(ctx, "get status", s.cmds.GetStatus)
	if err != nil {
		return "get status", err
	}
	st, err := satochip.ParseApplicationStatus(resp.Data)
	if err != nil {
		return "get status", err
	}
	s.status = st
	s.transition(StateStatusRetrieved, "")

	authenticated := false
	if s.opts.VerifyDefaultPIN && !st.Initialized {
		s.logger.Warn("card not set up, presenting default PIN", slog.String("conn_id", s.connID))
		verify := func() (*iso7816.ResponseAPDU, error) {
			return s.cmds.VerifyPIN([]byte(satochip.PIN_DEFAULT))
		}
		if _, err := s.roundTrip(ctx, "verify default pin", verify); err != nil {
			return "verify default pin", err
		}
		authenticated = true
	}

	if s.opts.SkipSecureChannel {
		if authenticated {
			s.transition(StateAuthenticated, "default PIN")
		}
		return "", nil
	}

	if op, err := s.openChannel(ctx); err != nil {
		return op, err
	}
	s.transition(StateChannelEstablished, "")

	resp, err = s.roundTrip(ctx, "get authentikey", s.cmds.GetAuthentikey)
	if err != nil {
		return "get authentikey", err
	}
	s.authentikey = bytes.Clone(resp.Data)

	if authenticated {
		s.transition(StateAuthenticated, "default PIN")
	}
	return "", nil
}

func (s *Session) openChannel(ctx context.Context) (string, error) {
	resp, err := s.roundTrip(ctx, "get channel key", s.cmds.GetChannelKey)
	if err != nil {
		return "get channel key", err
	}

	challenge, err := securechannel.NewChallenge(s.rand)
	if err != nil {
		return "init secure channel", err
	}
	defer clear(challenge)

	blob, err := securechannel.EncryptChallenge(nil, resp.Data, challenge)
	if err != nil {
		return "get channel key", err
	}

	init := func() (*iso7816.ResponseAPDU, error) { return s.cmds.InitSecureChannel(blob) }
	resp, err = s.roundTrip(ctx, "init secure channel", init)
	if err != nil {
		return "init secure channel", err
	}
	if err := s.channel.Initialize(resp.Data, challenge); err != nil {
		return "init secure channel", err
	}
	return "", nil
}

// Disconnect discards the channel and returns to Disconnected. The link itself is
// owned by the caller and is not closed.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.discard()
	s.cmds = nil
	if s.state != StateDisconnected {
		s.transition(StateDisconnected, "disconnect")
	}
}

// roundTrip checks ctx, performs one exchange and requires 9000.
func (s *Session) roundTrip(ctx context.Context, op string, call func() (*iso7816.ResponseAPDU, error)) (*iso7816.ResponseAPDU, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := call()
	if err != nil {
		return nil, err
	}
	if err := satochip.CheckStatus(op, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ready reports whether the handshake completed.
func (s *Session) ready() error {
	switch s.state {
	case StateChannelEstablished, StateAuthenticated:
		return nil
	case StateStatusRetrieved:
		if s.opts.SkipSecureChannel {
			return nil
		}
	}
	return fmt.Errorf("%w (state %s)", ErrNotConnected, s.state)
}

// abort ends a connection after a failed step. Link errors and cancellation go back to
// Disconnected, everything else to Failed.
func (s *Session) abort(op string, err error) {
	s.logError(op, err)
	s.discard()

	next := StateFailed
	var te *iso7816.TransportError
	if errors.As(err, &te) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		next = StateDisconnected
		s.cmds = nil
	}
	s.transition(next, op)
}

// discard drops all key material of the current connection.
func (s *Session) discard() {
	s.channel.Close()
	s.status = nil
	s.authentikey = nil
}

func (s *Session) transition(next State, reason string) {
	old := s.state
	if old == next {
		return
	}
	s.state = next

	s.logger.Debug("state change",
		slog.String("conn_id", s.connID),
		slog.String("from", old.String()),
		slog.String("to", next.String()),
	)
	s.events.Log(eventlog.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Category:     eventlog.CategoryState,
		Reader:       s.opts.Reader,
		StateChange: &eventlog.StateChangeEvent{
			OldState: old.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})
	if s.onState != nil {
		s.onState(old, next)
	}
}

func (s *Session) logError(op string, err error) {
	data := &eventlog.ErrorEventData{Op: op, Message: err.Error()}
	var pe *satochip.ProtocolError
	if errors.As(err, &pe) {
		sw := uint16(pe.Status)
		data.Status = &sw
	}

	s.logger.Warn("card step failed",
		slog.String("conn_id", s.connID),
		slog.String("op", op),
		slog.Any("error", err),
	)
	s.events.Log(eventlog.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Category:     eventlog.CategoryError,
		Reader:       s.opts.Reader,
		Error:        data,
	})
}
