// Package config loads the YAML settings of the satochip command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gregLibert/satochip/pkg/session"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// Config mirrors the YAML file. Flags given on the command line override it.
type Config struct {
	// Reader selects the first reader whose name contains this string. Empty means the first reader.
	Reader string `yaml:"reader"`

	// CardWait bounds the wait for a card to be presented. Zero means no wait.
	CardWait time.Duration `yaml:"card_wait"`

	ChunkSize         int  `yaml:"chunk_size"`
	CounterStart      int  `yaml:"counter_start"`
	VerifyDefaultPIN  bool `yaml:"verify_default_pin"`
	SkipSecureChannel bool `yaml:"skip_secure_channel"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// EventLog is the path of the CBOR event log. Empty disables it.
	EventLog      string `yaml:"event_log"`
	TracePayloads bool   `yaml:"trace_payloads"`
}

// Default returns the built-in configuration.
func Default() Config {
	opts := session.DefaultOptions()
	return Config{
		CardWait:     10 * time.Second,
		ChunkSize:    opts.ChunkSize,
		CounterStart: opts.CounterStart,
		LogLevel:     "info",
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges. Zero is rejected for chunk_size and counter_start
// since session.Options would read it as "use the default".
func (c Config) Validate() error {
	if c.ChunkSize == 0 {
		return fmt.Errorf("%w: chunk_size 0, want 1..253", ErrInvalid)
	}
	if c.CounterStart == 0 {
		return fmt.Errorf("%w: counter_start 0, want 1..255", ErrInvalid)
	}
	if err := c.SessionOptions().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.CardWait < 0 {
		return fmt.Errorf("%w: negative card_wait %s", ErrInvalid, c.CardWait)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// SessionOptions maps the protocol settings onto session.Options.
func (c Config) SessionOptions() session.Options {
	return session.Options{
		ChunkSize:         c.ChunkSize,
		CounterStart:      c.CounterStart,
		VerifyDefaultPIN:  c.VerifyDefaultPIN,
		SkipSecureChannel: c.SkipSecureChannel,
		TracePayloads:     c.TracePayloads,
		Reader:            c.Reader,
	}
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
}
