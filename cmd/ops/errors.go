package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// usageError is a flag/argument validation failure, exit code 2 per
// §6's CLI surface table. Distinct from opserr.Error's Config/Adapter/
// Database/IO/Ops kinds, which all come from the core.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func (e *usageError) ExitCode() int { return 2 }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// exitCoder is implemented by usageError and opserr.Error.
type exitCoder interface {
	ExitCode() int
}

// exactArgs wraps cobra.ExactArgs so a wrong argument count surfaces as
// a usageError (exit 2) rather than falling through to the generic
// exit code.
func exactArgs(n int, use string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageErrorf("usage: %s", use)
		}
		return nil
	}
}
