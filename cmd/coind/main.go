package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"coind/internal/bootstrap"
	"coind/internal/daemon"
)

func main() {
	cmd := newRootCommand()
	err := cmd.Execute()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, bootstrap.ErrInterrupted) {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(daemon.ExitCode(err))
}
