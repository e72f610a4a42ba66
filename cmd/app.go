// Package cmd implements the satochip command line.
package cmd

import "github.com/urfave/cli/v3"

// App returns the root command.
func App() *cli.Command {
	return &cli.Command{
		Name:  "satochip",
		Usage: "Talk to a Satochip hardware wallet over PC/SC",
		Flags: GlobalFlags(),
		Commands: []*cli.Command{
			ReadersCommand(),
			StatusCommand(),
			VerifyPINCommand(),
			ChangePINCommand(),
			UnblockPINCommand(),
			PubkeyCommand(),
			GenerateKeyCommand(),
			SignCommand(),
			EventsCommand(),
			DecodeCommand(),
		},
	}
}
