package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/gregLibert/satochip/pkg/eventlog"
)

// EventsCommand prints a CBOR event log.
func EventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Print the events recorded in an event log",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Usage: "Event log path", Required: true},
			&cli.StringFlag{Name: "conn", Usage: "Only events of this connection ID"},
			&cli.StringFlag{Name: "category", Usage: "Only exchange, state or error events"},
		},
		Action: runEvents,
	}
}

func runEvents(_ context.Context, cmd *cli.Command) error {
	filter := eventlog.Filter{ConnectionID: cmd.String("conn")}
	if name := cmd.String("category"); name != "" {
		c, ok := eventlog.ParseCategory(name)
		if !ok {
			return fmt.Errorf("unknown category %q", name)
		}
		filter.Category = &c
	}

	r, err := eventlog.NewFilteredReader(cmd.String("file"), filter)
	if err != nil {
		return err
	}
	defer r.Close()

	out := output(cmd)
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read event log: %w", err)
		}
		fmt.Fprintln(out, ev.String())
	}
}
