// feedbackctl drives the session lifecycle from the command line. Configuration comes from the
// environment and an optional .env file; see internal/config.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"feedback-collector/backend/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, nil, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
