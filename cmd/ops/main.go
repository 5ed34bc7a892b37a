package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ops-brain/opsd/internal/opserr"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	// Global flags.
	flagConfig  string
	flagJSON    bool
	flagQuiet   bool
	flagOffline bool
	flagHost    string
	flagPort    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ops",
		Short: "Single-user local event store and job runner",
		Long: `ops is a local-first event store: ingest, query, and run scheduled
jobs against a single append-only log with a SQLite index on top.

Each subcommand talks to the ops daemon over HTTP when it is reachable;
with --offline, or when the daemon can't be reached, read commands and
local ingest fall back to opening the index directly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "ops.yml", "Path to ops.yml")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "JSON output for scripting")
	rootCmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&flagOffline, "offline", false, "Skip the daemon probe and open the index directly")
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "Daemon host (default from daemon's bind address)")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "Daemon port (default from daemon's bind address)")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(sourceCmd())
	rootCmd.AddCommand(viewCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(artifactCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// isInteractive returns true if stdout is a terminal (not piped/redirected).
// Used to decide whether a follow-up hint is worth printing.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// exitCode maps err to one of the exit codes §6 defines: a usageError
// (bad flags/args) or an opserr.Error (core failure) carry their own
// code; anything else gets opserr.ExitCode's generic code (50).
// Arg-count checks go through exactArgs, which returns a usageError.
func exitCode(err error) int {
	var ec exitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return opserr.ExitCode(err)
}
