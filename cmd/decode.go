package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/gregLibert/satochip/pkg/satochip"
)

// DecodeCommand decodes a status record captured from a card, without a reader.
func DecodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode a hex status record offline",
		ArgsUsage: "HEX",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "as", Value: "status", Usage: "Record type: status, satodime or keyslot"},
		},
		Action: runDecode,
	}
}

type describer interface{ Describe() string }

func runDecode(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return errors.New("missing HEX record")
	}
	data, err := hex.DecodeString(strings.Join(strings.Fields(strings.Join(cmd.Args().Slice(), " ")), ""))
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}

	var rec describer
	switch kind := cmd.String("as"); kind {
	case "status":
		rec, err = satochip.ParseApplicationStatus(data)
	case "satodime":
		rec, err = satochip.ParseSatodimeStatus(data)
	case "keyslot":
		rec, err = satochip.ParseSatodimeKeyslotStatus(data)
	default:
		return fmt.Errorf("unknown record type %q", kind)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(output(cmd), rec.Describe())
	return nil
}
