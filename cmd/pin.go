package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/gregLibert/satochip/pkg/satochip"
	"github.com/gregLibert/satochip/pkg/session"
)

func pinFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "pin",
		Usage:   "PIN (prompted when omitted)",
		Sources: cli.EnvVars("SATOCHIP_PIN"),
	}
}

// readSecret returns the flag value or prompts on the terminal without echo.
func readSecret(cmd *cli.Command, flag, prompt string) ([]byte, error) {
	if v := cmd.String(flag); v != "" {
		return []byte(v), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("--%s is required when stdin is not a terminal", flag)
	}
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", flag, err)
	}
	return secret, nil
}

// authenticate verifies the PIN unless the handshake already did.
func authenticate(ctx context.Context, cmd *cli.Command, s *session.Session) error {
	if s.State() == session.StateAuthenticated {
		return nil
	}
	pin, err := readSecret(cmd, "pin", "PIN: ")
	if err != nil {
		return err
	}
	defer clear(pin)
	return pinError(s.VerifyPIN(ctx, pin))
}

func pinError(err error) error {
	var pe *satochip.ProtocolError
	if !errors.As(err, &pe) {
		return describe(err)
	}
	switch {
	case pe.IsPINBlocked():
		return fmt.Errorf("PIN blocked, unblock it with the PUK: %w", err)
	case pe.IsWrongPIN():
		return fmt.Errorf("wrong PIN: %w", err)
	default:
		return err
	}
}

// VerifyPINCommand checks a PIN against the card.
func VerifyPINCommand() *cli.Command {
	return &cli.Command{
		Name:   "verify-pin",
		Usage:  "Verify the card PIN",
		Flags:  []cli.Flag{pinFlag()},
		Action: run(runVerifyPIN),
	}
}

func runVerifyPIN(ctx context.Context, cmd *cli.Command, e *env) error {
	s, err := e.connect(ctx, cmd)
	if err != nil {
		return err
	}
	if err := authenticate(ctx, cmd, s); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "PIN verified")
	return nil
}

// ChangePINCommand replaces the card PIN.
func ChangePINCommand() *cli.Command {
	return &cli.Command{
		Name:  "change-pin",
		Usage: "Change the card PIN",
		Flags: []cli.Flag{
			pinFlag(),
			&cli.StringFlag{Name: "new-pin", Usage: "New PIN (prompted when omitted)"},
		},
		Action: run(runChangePIN),
	}
}

func runChangePIN(ctx context.Context, cmd *cli.Command, e *env) error {
	s, err := e.connect(ctx, cmd)
	if err != nil {
		return err
	}
	oldPIN, err := readSecret(cmd, "pin", "Current PIN: ")
	if err != nil {
		return err
	}
	defer clear(oldPIN)
	newPIN, err := readSecret(cmd, "new-pin", "New PIN: ")
	if err != nil {
		return err
	}
	defer clear(newPIN)

	if err := s.ChangePIN(ctx, oldPIN, newPIN); err != nil {
		return pinError(err)
	}
	fmt.Fprintln(e.out, "PIN changed")
	return nil
}

// UnblockPINCommand resets the PIN retry counter with the PUK.
func UnblockPINCommand() *cli.Command {
	return &cli.Command{
		Name:  "unblock-pin",
		Usage: "Reset the PIN retry counter with the PUK",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "puk", Usage: "PUK (prompted when omitted)", Sources: cli.EnvVars("SATOCHIP_PUK")},
		},
		Action: run(runUnblockPIN),
	}
}

func runUnblockPIN(ctx context.Context, cmd *cli.Command, e *env) error {
	s, err := e.connect(ctx, cmd)
	if err != nil {
		return err
	}
	puk, err := readSecret(cmd, "puk", "PUK: ")
	if err != nil {
		return err
	}
	defer clear(puk)

	if err := s.UnblockPIN(ctx, puk); err != nil {
		return pinError(err)
	}
	fmt.Fprintln(e.out, "PIN unblocked")
	return nil
}
