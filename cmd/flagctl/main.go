// Command flagctl is the terminal dashboard for moderating flagged tutoring
// content: admins triage and assign, faculty review and resolve.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/client"
	"github.com/patrickwarner/flagdesk/internal/config"
	"github.com/patrickwarner/flagdesk/internal/observability"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.LoadClient()

	logger, err := observability.InitCLILogger("flagctl")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := newCommandLine(cfg, logger, os.Stdout, os.Stderr)
	if err := cli.run(ctx, os.Args); err != nil {
		if errors.Is(err, errHelp) {
			os.Exit(2)
		}
		logger.Debug("command failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %s\n", describe(err))
		os.Exit(1)
	}
}

// describe turns client and workflow errors into the messages shown to users.
func describe(err error) string {
	var nf *client.NotFoundError
	var ce *client.ConflictError
	var ne *client.NetworkError
	switch {
	case errors.As(err, &nf):
		return "not found: " + nf.Message
	case errors.As(err, &ce):
		return "conflict: " + ce.Message
	case errors.As(err, &ne):
		return "cannot reach the flagdesk API: " + ne.Err.Error()
	}
	return err.Error()
}
