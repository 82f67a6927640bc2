package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mverrors "mathviz/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", mverrors.FormatForUser(err))
		stop()
		os.Exit(1)
	}
}
