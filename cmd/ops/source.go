package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ops-brain/opsd/internal/index"
	"github.com/spf13/cobra"
)

func sourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage ingest sources (requires the daemon)",
	}
	cmd.AddCommand(sourceCreateCmd(), sourceListCmd(), sourceGetCmd(), sourceDeleteCmd(), sourceTestCmd())
	return cmd
}

func sourceCreateCmd() *cobra.Command {
	var kind, path string
	var tags []string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Register a new source",
		Args:  exactArgs(1, "ops source create NAME --kind KIND --path PATH"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			src := index.Source{
				Name: args[0],
				Kind: kind,
				Config: map[string]any{
					"path": path,
				},
				Tags: tags,
			}
			var out index.Source
			if err := client.Post(ctx, "/v1/sources", src, &out); err != nil {
				return err
			}
			printJSONOr(out, func() { fmt.Printf("source created: %s\n", out.Name) })
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "chat_json_file", "Source adapter kind")
	cmd.Flags().StringVar(&path, "path", "", "Source file path")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag applied to events from this source (repeatable)")
	return cmd
}

func sourceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered sources",
		Args:  exactArgs(0, "ops source list"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			var resp struct {
				Items []index.Source `json:"items"`
			}
			if err := client.Get(ctx, "/v1/sources", nil, &resp); err != nil {
				return err
			}
			printJSONOr(resp, func() {
				for _, s := range resp.Items {
					fmt.Printf("%-20s %s\n", s.Name, s.Kind)
				}
			})
			return nil
		},
	}
}

func sourceGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show a source",
		Args:  exactArgs(1, "ops source get NAME"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			var src index.Source
			if err := client.Get(ctx, "/v1/sources/"+args[0], nil, &src); err != nil {
				return err
			}
			printJSONOr(src, func() { fmt.Printf("%s: %s\n", src.Name, src.Kind) })
			return nil
		},
	}
}

func sourceDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a source",
		Args:  exactArgs(1, "ops source delete NAME"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			var resp map[string]any
			if err := client.Delete(ctx, "/v1/sources/"+args[0], &resp); err != nil {
				return err
			}
			if !flagQuiet {
				fmt.Printf("deleted source %s\n", args[0])
			}
			return nil
		},
	}
}

func sourceTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test NAME",
		Short: "Validate a source's config.path",
		Args:  exactArgs(1, "ops source test NAME"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			var resp struct {
				OK    bool   `json:"ok"`
				Error string `json:"error"`
			}
			if err := client.Post(ctx, "/v1/sources/"+args[0]+":test", nil, &resp); err != nil {
				return err
			}
			if flagJSON {
				data, _ := json.MarshalIndent(resp, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			if resp.OK {
				fmt.Println("ok")
			} else {
				fmt.Printf("failed: %s\n", resp.Error)
			}
			return nil
		},
	}
}

// printJSONOr prints v as indented JSON when --json is set, otherwise
// runs human, the caller-supplied human-readable renderer.
func printJSONOr(v any, human func()) {
	if flagJSON {
		data, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(data))
		return
	}
	human()
}
