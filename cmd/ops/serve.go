package main

import (
	"fmt"
	"strings"

	"github.com/ops-brain/opsd/internal/daemon"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var host string
	var port int
	var logLevel string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		Long: `Boots the daemon: loads ops.yml, opens the canonical log and index,
acquires the instance lock, and serves the HTTP surface until SIGINT
or SIGTERM.`,
		Args: exactArgs(0, "ops serve [--host HOST] [--port PORT]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := resolveServeAddr(host, port)
			lc, err := daemon.Boot(flagConfig, addr, logLevel)
			if err != nil {
				return err
			}
			if !flagQuiet {
				fmt.Printf("ops daemon listening on %s\n", addr)
			}
			return lc.Run()
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Bind host (default from daemon's bind address)")
	cmd.Flags().IntVar(&port, "port", 0, "Bind port (default from daemon's bind address)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	return cmd
}

func resolveServeAddr(host string, port int) string {
	if host == "" && port == 0 {
		return daemon.DefaultAddr
	}
	defHost, defPort, _ := strings.Cut(daemon.DefaultAddr, ":")
	if host == "" {
		host = defHost
	}
	if port == 0 {
		return host + ":" + defPort
	}
	return fmt.Sprintf("%s:%d", host, port)
}
