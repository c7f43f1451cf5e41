package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"uvuebuild/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code, err := cli.Run(ctx, os.Args[1:], cli.DefaultEnv())
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, cli.Describe(err))
	}
	os.Exit(code)
}
