package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ops-brain/opsd/internal/cliutil"
	"github.com/ops-brain/opsd/internal/event"
	"github.com/ops-brain/opsd/internal/index"
	"github.com/ops-brain/opsd/internal/query"
	"github.com/spf13/cobra"
)

func searchCmd() *cobra.Command {
	var text, typ, tag, after, before, format string
	var limit int
	var order string

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Query events by text, type, tag, and time range",
		Long: `Search mirrors GET /v1/events' filters. Online it queries the daemon
directly; offline it goes through the query engine, which retries a
LIKE search when the FTS query comes back empty. --format full returns
reconstructed events (with refs) instead of summary rows.`,
		Args: exactArgs(0, "ops search [flags]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			res, err := runSearch(ctx, text, typ, tag, after, before, format, limit, order)
			if err != nil {
				return err
			}
			printSearchResults(res)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "q", "", "Free-text query")
	cmd.Flags().StringVar(&typ, "type", "", "CSV event types")
	cmd.Flags().StringVar(&tag, "tag", "", "CSV tags")
	cmd.Flags().StringVar(&after, "after", "", "Only events at/after this ISO timestamp")
	cmd.Flags().StringVar(&before, "before", "", "Only events at/before this ISO timestamp")
	cmd.Flags().IntVar(&limit, "limit", 50, "Max results")
	cmd.Flags().StringVar(&order, "order", "desc", "Sort order (asc, desc)")
	cmd.Flags().StringVar(&format, "format", query.FormatSummary, "Result shape (summary, full)")

	return cmd
}

func runSearch(ctx context.Context, text, typ, tag, after, before, format string, limit int, order string) (*query.Result, error) {
	if client, ok := probe(ctx); ok {
		q := url.Values{}
		if text != "" {
			q.Set("q", text)
		}
		if typ != "" {
			q.Set("type", typ)
		}
		if tag != "" {
			q.Set("tag", tag)
		}
		if after != "" {
			q.Set("after", after)
		}
		if before != "" {
			q.Set("before", before)
		}
		q.Set("limit", strconv.Itoa(limit))
		q.Set("order", order)
		q.Set("format", format)

		if format == query.FormatFull {
			var resp struct {
				Items []*event.Event `json:"items"`
			}
			if err := client.Get(ctx, "/v1/events", q, &resp); err != nil {
				return nil, err
			}
			return &query.Result{Full: resp.Items}, nil
		}

		var resp struct {
			Items []index.SummaryRow `json:"items"`
		}
		if err := client.Get(ctx, "/v1/events", q, &resp); err != nil {
			return nil, err
		}
		return &query.Result{Summaries: resp.Items}, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	off, err := cliutil.OpenOffline(cfg, flagConfig, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = off.Close() }()

	req := query.Request{
		Filters: query.Filters{
			Types:  csvSplit(typ),
			Tags:   csvSplit(tag),
			After:  after,
			Before: before,
		},
		Q:          text,
		Limit:      limit,
		Desc:       order != "asc",
		SnippetLen: cfg.MaxSnippetLen,
		Format:     format,
	}
	return off.Engine.Run(ctx, req)
}

func csvSplit(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printSearchResults(res *query.Result) {
	if flagJSON {
		payload := map[string]any{"items": res.Summaries}
		if res.Full != nil {
			payload = map[string]any{"items": res.Full}
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		fmt.Println(string(data))
		return
	}

	if res.Full != nil {
		for _, ev := range res.Full {
			tags := ""
			if len(ev.Tags) > 0 {
				tags = " [" + strings.Join(ev.Tags, ",") + "]"
			}
			fmt.Printf("%s  %-20s %s%s\n", ev.TS, ev.Type, ev.Text, tags)
		}
		if !flagQuiet {
			fmt.Printf("%d result(s)\n", len(res.Full))
		}
		return
	}

	for _, r := range res.Summaries {
		tags := ""
		if len(r.Tags) > 0 {
			tags = " [" + strings.Join(r.Tags, ",") + "]"
		}
		fmt.Printf("%s  %-20s %s%s\n", r.TS, r.Type, r.Snippet, tags)
	}
	if !flagQuiet {
		fmt.Printf("%d result(s)\n", len(res.Summaries))
	}
}
