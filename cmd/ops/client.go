package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ops-brain/opsd/internal/cliutil"
	"github.com/ops-brain/opsd/internal/daemon"
	"github.com/ops-brain/opsd/internal/opsconfig"
)

// loadConfig reads ops.yml at --config.
func loadConfig() (*opsconfig.Config, error) {
	return opsconfig.Load(flagConfig)
}

// daemonAddr resolves the address the CLI probes/talks to: --host/--port
// override the daemon's default bind address.
func daemonAddr() string {
	if flagHost == "" && flagPort == 0 {
		return daemon.DefaultAddr
	}
	host := flagHost
	if host == "" {
		host, _, _ = strings.Cut(daemon.DefaultAddr, ":")
	}
	port := flagPort
	if port == 0 {
		_, portStr, _ := strings.Cut(daemon.DefaultAddr, ":")
		fmt.Sscanf(portStr, "%d", &port) //nolint:errcheck // fallback only, DefaultAddr is a known-good constant
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// probe reports whether the daemon is reachable and --offline wasn't
// requested, per §4.H: "For each subcommand it first probes GET
// /health; if reachable and not --offline, it calls the HTTP client."
func probe(ctx context.Context) (*cliutil.Client, bool) {
	if flagOffline {
		return nil, false
	}
	client := cliutil.NewClient("http://" + daemonAddr())
	if !client.Healthy(ctx) {
		return nil, false
	}
	return client, true
}

// requireClient is for commands §4.H restricts to the daemon (CRUD on
// sources/views/jobs, job run): it fails with a usageError rather than
// silently falling back offline.
func requireClient(ctx context.Context) (*cliutil.Client, error) {
	client, ok := probe(ctx)
	if !ok {
		return nil, usageErrorf("this command requires the daemon; start it with 'ops serve'")
	}
	return client, nil
}
