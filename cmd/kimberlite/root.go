package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command; init, start, and status are its only
// subcommands (§6's CLI surface).
var rootCmd = &cobra.Command{
	Use:   "kimberlite",
	Short: "Kimberlite compliance-oriented hash-chained log engine",
	Long: `kimberlite operates one replica of a Kimberlite cluster: an
append-only, cryptographically chained, tenant-isolated log engine
driven by Viewstamped Replication.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and terminates the process with the matching
// exit code on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kimberlite:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitErr pairs an error with the exit code it should terminate the
// process with, letting subcommands choose among usage/config/join/
// corruption without the top-level Execute having to re-classify
// arbitrary errors.
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	if ee, ok := err.(*exitErr); ok {
		return ee.code
	}
	return exitUsageError
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
}
