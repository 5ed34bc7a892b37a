package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ops-brain/opsd/internal/index"
	"github.com/spf13/cobra"
)

func jobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage scheduled jobs (requires the daemon)",
	}
	cmd.AddCommand(jobCreateCmd(), jobListCmd(), jobGetCmd(), jobDeleteCmd(), jobRunCmd(), jobRunsCmd())
	return cmd
}

func jobCreateCmd() *cobra.Command {
	var kind string
	var enabled bool
	var tag, outDir string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Register a job (daily_digest, artifact_pack, or index_rebuild)",
		Args:  exactArgs(1, "ops job create NAME --kind KIND"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			config := map[string]any{}
			if tag != "" {
				config["tag"] = tag
			}
			if outDir != "" {
				config["out_dir"] = outDir
			}
			j := index.Job{Name: args[0], Kind: kind, Config: config, Enabled: enabled}
			var out index.Job
			if err := client.Post(ctx, "/v1/jobs", j, &out); err != nil {
				return err
			}
			printJSONOr(out, func() { fmt.Printf("job created: %s (%s)\n", out.Name, out.Kind) })
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Job kind (daily_digest, artifact_pack, index_rebuild)")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Whether the job is eligible to run")
	cmd.Flags().StringVar(&tag, "tag", "", "Tag config value, for artifact_pack")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Output dir config value, for artifact_pack")
	return cmd
}

func jobListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		Args:  exactArgs(0, "ops job list"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			var resp struct {
				Items []index.Job `json:"items"`
			}
			if err := client.Get(ctx, "/v1/jobs", nil, &resp); err != nil {
				return err
			}
			printJSONOr(resp, func() {
				for _, j := range resp.Items {
					fmt.Printf("%-20s %-16s enabled=%v\n", j.Name, j.Kind, j.Enabled)
				}
			})
			return nil
		},
	}
}

func jobGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show a job's definition",
		Args:  exactArgs(1, "ops job get NAME"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			var j index.Job
			if err := client.Get(ctx, "/v1/jobs/"+args[0], nil, &j); err != nil {
				return err
			}
			printJSONOr(j, func() { fmt.Printf("%s: %s enabled=%v\n", j.Name, j.Kind, j.Enabled) })
			return nil
		},
	}
}

func jobDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a job",
		Args:  exactArgs(1, "ops job delete NAME"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			var resp map[string]any
			if err := client.Delete(ctx, "/v1/jobs/"+args[0], &resp); err != nil {
				return err
			}
			if !flagQuiet {
				fmt.Printf("deleted job %s\n", args[0])
			}
			return nil
		},
	}
}

func jobRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run NAME",
		Short: "Run a job now",
		Args:  exactArgs(1, "ops job run NAME"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			var resp struct {
				OK    bool         `json:"ok"`
				Error string       `json:"error"`
				Run   index.JobRun `json:"run"`
			}
			if err := client.Post(ctx, "/v1/jobs/"+args[0]+":run", nil, &resp); err != nil {
				return err
			}
			printJSONOr(resp, func() {
				if resp.OK {
					fmt.Printf("ok: run %s\n", resp.Run.ID)
				} else {
					fmt.Printf("failed: %s\n", resp.Error)
				}
			})
			return nil
		},
	}
}

func jobRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs NAME",
		Short: "List a job's run history",
		Args:  exactArgs(1, "ops job runs NAME"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			var resp struct {
				Items []index.JobRun `json:"items"`
			}
			q := url.Values{"limit": {strconv.Itoa(limit)}}
			if err := client.Get(ctx, "/v1/jobs/"+args[0]+"/runs", q, &resp); err != nil {
				return err
			}
			printJSONOr(resp, func() {
				for _, r := range resp.Items {
					fmt.Printf("%-28s %-10s %s\n", r.ID, r.Status, r.StartedAt)
				}
			})
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Max runs to list")
	return cmd
}
