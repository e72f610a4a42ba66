package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/gregLibert/satochip/pkg/pcsc"
)

// ReadersCommand lists the PC/SC readers.
func ReadersCommand() *cli.Command {
	return &cli.Command{
		Name:   "readers",
		Usage:  "List smart card readers",
		Action: run(runReaders),
	}
}

func runReaders(_ context.Context, cmd *cli.Command, e *env) error {
	if cmd.Bool("simulate") {
		fmt.Fprintln(e.out, "simulator")
		return nil
	}

	pc, err := pcsc.Open()
	if err != nil {
		return err
	}
	e.closers = append(e.closers, pc.Close)

	readers, err := pc.Readers()
	if err != nil {
		return err
	}
	if len(readers) == 0 {
		return pcsc.ErrNoReader
	}
	for i, r := range readers {
		fmt.Fprintf(e.out, "%d: %s\n", i, r)
	}
	return nil
}
