package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/gregLibert/satochip/pkg/satochip"
)

func keyTypeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "key-type",
		Usage: "master, authentication, encryption or signature",
		Value: satochip.KeyTypeSignature.String(),
	}
}

func keyType(cmd *cli.Command) (satochip.KeyType, error) {
	name := cmd.String("key-type")
	kt, ok := satochip.ParseKeyType(name)
	if !ok {
		return 0, fmt.Errorf("unknown key type %q", name)
	}
	return kt, nil
}

// PubkeyCommand prints the public key of a slot.
func PubkeyCommand() *cli.Command {
	return &cli.Command{
		Name:   "pubkey",
		Usage:  "Print the public key held in a key slot",
		Flags:  []cli.Flag{keyTypeFlag()},
		Action: run(runPubkey),
	}
}

func runPubkey(ctx context.Context, cmd *cli.Command, e *env) error {
	kt, err := keyType(cmd)
	if err != nil {
		return err
	}
	s, err := e.connect(ctx, cmd)
	if err != nil {
		return err
	}
	pub, err := s.PublicKey(ctx, kt)
	if err != nil {
		return describe(err)
	}
	fmt.Fprintf(e.out, "%s: %s\n", kt, hex.EncodeToString(pub))
	return nil
}

// GenerateKeyCommand asks the card for a fresh key in a slot.
func GenerateKeyCommand() *cli.Command {
	return &cli.Command{
		Name:   "generate-key",
		Usage:  "Generate a new key in a key slot",
		Flags:  []cli.Flag{keyTypeFlag(), pinFlag()},
		Action: run(runGenerateKey),
	}
}

func runGenerateKey(ctx context.Context, cmd *cli.Command, e *env) error {
	kt, err := keyType(cmd)
	if err != nil {
		return err
	}
	s, err := e.connect(ctx, cmd)
	if err != nil {
		return err
	}
	if err := authenticate(ctx, cmd, s); err != nil {
		return err
	}
	if err := s.GenerateKey(ctx, kt); err != nil {
		return describe(err)
	}
	pub, err := s.PublicKey(ctx, kt)
	if err != nil {
		return describe(err)
	}
	fmt.Fprintf(e.out, "%s: %s\n", kt, hex.EncodeToString(pub))
	return nil
}

// SignCommand signs a message over the secure channel.
func SignCommand() *cli.Command {
	return &cli.Command{
		Name:  "sign",
		Usage: "Sign a message with the signature key",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "message", Usage: "Message to sign"},
			&cli.StringFlag{Name: "file", Usage: "Path to a file whose content is signed"},
			pinFlag(),
		},
		Action: run(runSign),
	}
}

func runSign(ctx context.Context, cmd *cli.Command, e *env) error {
	message, err := messageInput(cmd)
	if err != nil {
		return err
	}
	s, err := e.connect(ctx, cmd)
	if err != nil {
		return err
	}
	if err := authenticate(ctx, cmd, s); err != nil {
		return err
	}

	sig, err := s.SignMessage(ctx, message)
	if err != nil {
		return describe(err)
	}
	fmt.Fprintln(e.out, hex.EncodeToString(sig))
	return nil
}

func messageInput(cmd *cli.Command) ([]byte, error) {
	msg, path := cmd.String("message"), cmd.String("file")
	switch {
	case msg != "" && path != "":
		return nil, fmt.Errorf("only one of --message or --file should be provided")
	case msg != "":
		return []byte(msg), nil
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read message: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("either --message or --file must be provided")
	}
}
