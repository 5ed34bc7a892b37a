package main

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"

	"github.com/ops-brain/opsd/internal/event"
	"github.com/spf13/cobra"
)

func artifactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "List, pack, and open job-produced artifacts",
	}
	cmd.AddCommand(artifactListCmd(), artifactPackCmd(), artifactOpenCmd())
	return cmd
}

func artifactListCmd() *cobra.Command {
	var tag, after, before string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artifact.created events",
		Args:  exactArgs(0, "ops artifact list [flags]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			q := url.Values{}
			if tag != "" {
				q.Set("tag", tag)
			}
			if after != "" {
				q.Set("after", after)
			}
			if before != "" {
				q.Set("before", before)
			}
			var resp struct {
				Items []event.Event `json:"items"`
			}
			if err := client.Get(ctx, "/v1/artifacts", q, &resp); err != nil {
				return err
			}
			printJSONOr(resp, func() {
				for _, ev := range resp.Items {
					fmt.Printf("%s  %s\n", ev.TS, ev.Text)
				}
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "CSV tags")
	cmd.Flags().StringVar(&after, "after", "", "Only events at/after this ISO timestamp")
	cmd.Flags().StringVar(&before, "before", "", "Only events at/before this ISO timestamp")
	return cmd
}

func artifactPackCmd() *cobra.Command {
	var tag, outDir string

	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Pack tagged events into an artifact directory",
		Args:  exactArgs(0, "ops artifact pack --tag TAG --out-dir DIR"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tag == "" || outDir == "" {
				return usageErrorf("--tag and --out-dir are required")
			}
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			var resp struct {
				PackPath   string   `json:"pack_path"`
				ReadmePath string   `json:"readme_path"`
				Assets     []string `json:"assets"`
			}
			body := map[string]any{"tag": tag, "out_dir": outDir}
			if err := client.Post(ctx, "/v1/artifacts:pack", body, &resp); err != nil {
				return err
			}
			printJSONOr(resp, func() {
				fmt.Printf("pack:   %s\n", resp.PackPath)
				fmt.Printf("readme: %s\n", resp.ReadmePath)
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "Tag to pack")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Output directory")
	return cmd
}

func artifactOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open PATH",
		Short: "Open a packed artifact with the OS's default handler",
		Args:  exactArgs(1, "ops artifact open PATH"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return openWithOS(args[0])
		},
	}
}

// openWithOS shells out to the platform opener. §6 calls this an
// "out-of-scope collaborator" — the shape matters, not a test matrix
// of every desktop environment.
func openWithOS(path string) error {
	var name string
	var cmdArgs []string
	switch runtime.GOOS {
	case "darwin":
		name, cmdArgs = "open", []string{path}
	case "windows":
		name, cmdArgs = "cmd", []string{"/c", "start", "", path}
	default:
		name, cmdArgs = "xdg-open", []string{path}
	}
	if err := exec.Command(name, cmdArgs...).Start(); err != nil { //nolint:gosec // G204 - path is a CLI argument the user supplied
		return usageErrorf("open %s: %v", path, err)
	}
	return nil
}
