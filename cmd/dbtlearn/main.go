// Package main is the entry point for the dbtlearn CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/dbtlearn/orchestrator/internal/cmd"
	oerrors "github.com/dbtlearn/orchestrator/internal/errors"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.NewRootCmd()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Check if the error contains an ExitError with a specific code
		var exitErr *oerrors.ExitError
		if errors.As(err, &exitErr) {
			// Only print if the command layer hasn't already printed it
			if !exitErr.Printed {
				fmt.Fprintln(os.Stderr, err)
			}
			return exitErr.Code
		}
		// Non-ExitError: unexpected, print it
		fmt.Fprintln(os.Stderr, err)
		return oerrors.ExitGeneralError
	}
	return oerrors.ExitSuccess
}
