// Package main provides the entry point for the celltrack command.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cell-tracker/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.RootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
