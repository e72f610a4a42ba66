package session

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/gregLibert/satochip/pkg/eventlog"
	"github.com/gregLibert/satochip/pkg/satochip"
)

// Options tunes the protocol. The zero value of a field means its default.
type Options struct {
	// ChunkSize is the largest message slice sent per signing command (default 200).
	ChunkSize int

	// CounterStart is the counter carried by the first signing chunk (default 3).
	// Counter 0 cannot be selected: zero means the default.
	CounterStart int

	// VerifyDefaultPIN presents the factory PIN during Connect when the card reports
	// that setup has not been done.
	VerifyDefaultPIN bool

	// SkipSecureChannel stops the handshake after the status step. Signing then runs
	// in the clear; only for applets built without channel support.
	SkipSecureChannel bool

	// TracePayloads records non-sensitive payload bytes in exchange events.
	TracePayloads bool

	// Reader tags events with the reader name.
	Reader string
}

// DefaultOptions returns the options matching the card firmware.
func DefaultOptions() Options {
	return Options{
		ChunkSize:    satochip.DefaultChunkSize,
		CounterStart: satochip.DefaultCounterStart,
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkSize == 0 {
		o.ChunkSize = satochip.DefaultChunkSize
	}
	if o.CounterStart == 0 {
		o.CounterStart = satochip.DefaultCounterStart
	}
	return o
}

// Validate checks that a signing chunk fits a short APDU and the counter fits a byte.
func (o Options) Validate() error {
	o = o.withDefaults()
	if o.ChunkSize < 1 || o.ChunkSize > 253 {
		return fmt.Errorf("%w: chunk size %d, want 1..253", ErrInvalidOptions, o.ChunkSize)
	}
	if o.CounterStart < 1 || o.CounterStart > 255 {
		return fmt.Errorf("%w: counter start %d, want 1..255", ErrInvalidOptions, o.CounterStart)
	}
	return nil
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the operational logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithEventLogger receives exchange, state and error events.
func WithEventLogger(l eventlog.Logger) Option {
	return func(s *Session) { s.events = l }
}

// WithRand sets the source of challenge bytes. The default is crypto/rand.
func WithRand(r io.Reader) Option {
	return func(s *Session) { s.rand = r }
}

// WithStateFunc registers a transition observer.
func WithStateFunc(fn StateFunc) Option {
	return func(s *Session) { s.onState = fn }
}

// WithIDGenerator overrides the connection ID source (UUIDs by default).
func WithIDGenerator(fn func() string) Option {
	return func(s *Session) { s.newID = fn }
}
