package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/gregLibert/satochip/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.App().Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
