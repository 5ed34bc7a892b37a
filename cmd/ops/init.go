package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ops-brain/opsd/internal/opsconfig"
	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a workspace and write a default ops.yml",
		Long: `Writes a default ops.yml at --config (failing if one already exists)
and creates the workspace's raw/, canonical/, index/, and artifacts/
directories per §6's workspace layout.`,
		Args: exactArgs(0, "ops init"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opsconfig.WriteDefault(flagConfig); err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			workspace := cfg.Workspace
			if !filepath.IsAbs(workspace) {
				workspace = filepath.Join(filepath.Dir(flagConfig), workspace)
			}
			for _, dir := range []string{
				filepath.Join(workspace, "raw", "chat_json"),
				filepath.Join(workspace, "canonical"),
				filepath.Join(workspace, "index"),
				filepath.Join(workspace, "artifacts"),
			} {
				if err := os.MkdirAll(dir, 0750); err != nil {
					return usageErrorf("create workspace dir %s: %v", dir, err)
				}
			}

			if !flagQuiet {
				fmt.Printf("Initialized workspace at %s\n", workspace)
				fmt.Printf("Config written to %s\n", flagConfig)
				if isInteractive() {
					fmt.Println()
					fmt.Printf("Edit %s anytime, then run 'ops serve' to start the daemon\n", flagConfig)
				}
			}
			return nil
		},
	}
}
