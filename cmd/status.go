package cmd

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/gregLibert/satochip/pkg/iso7816"
	"github.com/gregLibert/satochip/pkg/satochip"
)

// StatusCommand reports the applet selection and the application status.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Select the applet and print its status",
		Action: run(runStatus),
	}
}

func runStatus(ctx context.Context, cmd *cli.Command, e *env) error {
	link, reader, err := e.openLink(ctx, cmd)
	if err != nil {
		return err
	}

	trace, err := satochip.NewCommandSet(link).SelectAppletTrace()
	if err != nil {
		return describe(err)
	}
	res, err := iso7816.NewSelectResult(trace)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, res.Describe())
	if !res.IsSuccess() {
		return fmt.Errorf("applet not selected: %s", res.Status().Verbose())
	}

	s, err := e.handshake(ctx, link, reader)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, s.Status().Describe())
	fmt.Fprintf(e.out, "Connection:  %s\n", s.ConnectionID())
	fmt.Fprintf(e.out, "State:       %s\n", s.State())
	if key := s.Authentikey(); len(key) > 0 {
		fmt.Fprintf(e.out, "Authentikey: %s\n", hex.EncodeToString(key))
	}
	return nil
}
