package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/gregLibert/satochip/internal/cardsim"
	"github.com/gregLibert/satochip/pkg/config"
	"github.com/gregLibert/satochip/pkg/eventlog"
	"github.com/gregLibert/satochip/pkg/iso7816"
	"github.com/gregLibert/satochip/pkg/pcsc"
	"github.com/gregLibert/satochip/pkg/session"
)

// GlobalFlags are accepted before any command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to a YAML configuration file",
			Sources: cli.EnvVars("SATOCHIP_CONFIG"),
		},
		&cli.StringFlag{
			Name:  "reader",
			Usage: "Use the first reader whose name contains this string",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
		&cli.StringFlag{
			Name:  "event-log",
			Usage: "Append protocol events to this CBOR file",
		},
		&cli.BoolFlag{
			Name:  "trace-payloads",
			Usage: "Record non-sensitive payload bytes in the event log",
		},
		&cli.BoolFlag{
			Name:   "simulate",
			Usage:  "Talk to an in-process simulated card instead of a reader",
			Hidden: true,
		},
	}
}

// env holds what one command invocation needs.
type env struct {
	cfg     config.Config
	logger  *slog.Logger
	events  eventlog.Logger
	out     io.Writer
	closers []func() error
}

func newEnv(cmd *cli.Command) (*env, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cmd.IsSet("reader") {
		cfg.Reader = cmd.String("reader")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("event-log") {
		cfg.EventLog = cmd.String("event-log")
	}
	if cmd.IsSet("trace-payloads") {
		cfg.TracePayloads = cmd.Bool("trace-payloads")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	e := &env{cfg: cfg, logger: logger, out: output(cmd)}
	loggers := []eventlog.Logger{eventlog.NewSlogAdapter(logger)}
	if cfg.EventLog != "" {
		fl, err := eventlog.NewFileLogger(cfg.EventLog)
		if err != nil {
			return nil, fmt.Errorf("event log: %w", err)
		}
		loggers = append(loggers, fl)
		e.closers = append(e.closers, fl.Close)
	}
	e.events = eventlog.NewMultiLogger(loggers...)
	return e, nil
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// Close releases everything in reverse order of acquisition.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("release failed", slog.Any("error", err))
		}
	}
}

// openLink returns a card link and the name of its reader.
func (e *env) openLink(ctx context.Context, cmd *cli.Command) (iso7816.Transmitter, string, error) {
	if cmd.Bool("simulate") {
		card, err := cardsim.New()
		if err != nil {
			return nil, "", err
		}
		e.logger.Info("using simulated card")
		return card, "simulator", nil
	}

	pc, err := pcsc.Open()
	if err != nil {
		return nil, "", err
	}
	e.closers = append(e.closers, pc.Close)

	readers, err := pc.Readers()
	if err != nil {
		return nil, "", err
	}
	reader, err := pcsc.SelectReader(readers, e.cfg.Reader)
	if err != nil {
		return nil, "", err
	}
	e.logger.Info("using reader", slog.String("reader", reader))

	if err := pc.WaitForCard(ctx, reader, e.cfg.CardWait); err != nil {
		return nil, "", err
	}
	card, err := pc.Connect(reader)
	if err != nil {
		return nil, "", err
	}
	e.closers = append(e.closers, card.Close)
	e.logger.Debug("card connected", slog.String("atr", fmt.Sprintf("%X", card.ATR)))
	return card, reader, nil
}

// connect opens a link and runs the handshake on it.
func (e *env) connect(ctx context.Context, cmd *cli.Command) (*session.Session, error) {
	link, reader, err := e.openLink(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return e.handshake(ctx, link, reader)
}

func (e *env) handshake(ctx context.Context, link iso7816.Transmitter, reader string) (*session.Session, error) {
	opts := e.cfg.SessionOptions()
	opts.Reader = reader
	s := session.New(opts, session.WithLogger(e.logger), session.WithEventLogger(e.events))
	if err := s.Connect(ctx, link); err != nil {
		return nil, describe(err)
	}
	e.closers = append(e.closers, func() error {
		s.Disconnect()
		return nil
	})
	return s, nil
}

// run wraps an action with environment setup and teardown.
func run(action func(ctx context.Context, cmd *cli.Command, e *env) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		e, err := newEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		return action(ctx, cmd, e)
	}
}

// describe turns card errors into operator messages.
func describe(err error) error {
	var te *iso7816.TransportError
	switch {
	case errors.As(err, &te):
		return fmt.Errorf("card link lost: %w", err)
	case errors.Is(err, session.ErrNotAuthenticated):
		return fmt.Errorf("%w: run with a PIN first", err)
	default:
		return err
	}
}
