package main

import (
	"context"
	"fmt"

	"github.com/ops-brain/opsd/internal/index"
	"github.com/spf13/cobra"
)

func viewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Manage saved views (requires the daemon)",
	}
	cmd.AddCommand(viewCreateCmd(), viewListCmd(), viewGetCmd(), viewDeleteCmd(), viewQueryCmd())
	return cmd
}

func viewCreateCmd() *cobra.Command {
	var description string
	var typ, tag, after, before, order string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Save a named query as a view",
		Args:  exactArgs(1, "ops view create NAME [flags]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			filters := map[string]any{}
			if t := csvSplit(typ); len(t) > 0 {
				filters["type"] = t
			}
			if t := csvSplit(tag); len(t) > 0 {
				filters["tag"] = t
			}
			if after != "" {
				filters["after"] = after
			}
			if before != "" {
				filters["before"] = before
			}
			v := index.View{
				Name:        args[0],
				Description: description,
				Query: map[string]any{
					"kind":    "events_query",
					"filters": filters,
					"order":   order,
				},
			}
			var out index.View
			if err := client.Post(ctx, "/v1/views", v, &out); err != nil {
				return err
			}
			printJSONOr(out, func() { fmt.Printf("view created: %s\n", out.Name) })
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "View description")
	cmd.Flags().StringVar(&typ, "type", "", "CSV event types")
	cmd.Flags().StringVar(&tag, "tag", "", "CSV tags")
	cmd.Flags().StringVar(&after, "after", "", "Only events at/after this ISO timestamp")
	cmd.Flags().StringVar(&before, "before", "", "Only events at/before this ISO timestamp")
	cmd.Flags().StringVar(&order, "order", "desc", "Sort order (asc, desc)")
	return cmd
}

func viewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved views",
		Args:  exactArgs(0, "ops view list"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			var resp struct {
				Items []index.View `json:"items"`
			}
			if err := client.Get(ctx, "/v1/views", nil, &resp); err != nil {
				return err
			}
			printJSONOr(resp, func() {
				for _, v := range resp.Items {
					fmt.Printf("%-20s %s\n", v.Name, v.Description)
				}
			})
			return nil
		},
	}
}

func viewGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show a saved view's definition",
		Args:  exactArgs(1, "ops view get NAME"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			var v index.View
			if err := client.Get(ctx, "/v1/views/"+args[0], nil, &v); err != nil {
				return err
			}
			printJSONOr(v, func() { fmt.Printf("%s: %v\n", v.Name, v.Query) })
			return nil
		},
	}
}

func viewDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a saved view",
		Args:  exactArgs(1, "ops view delete NAME"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			var resp map[string]any
			if err := client.Delete(ctx, "/v1/views/"+args[0], &resp); err != nil {
				return err
			}
			if !flagQuiet {
				fmt.Printf("deleted view %s\n", args[0])
			}
			return nil
		},
	}
}

func viewQueryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "query NAME",
		Short: "Run a saved view, merged with any extra filters",
		Args:  exactArgs(1, "ops view query NAME [--limit N]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			client, err := requireClient(ctx)
			if err != nil {
				return err
			}
			body := map[string]any{"limit": limit}
			var resp struct {
				Items []any `json:"items"`
			}
			if err := client.Post(ctx, "/v1/views/"+args[0]+":query", body, &resp); err != nil {
				return err
			}
			printJSONOr(resp, func() {
				fmt.Printf("%d result(s)\n", len(resp.Items))
			})
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Max results")
	return cmd
}
