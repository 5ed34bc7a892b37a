package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ops-brain/opsd/internal/adapter/chatjson"
	"github.com/ops-brain/opsd/internal/cliutil"
	"github.com/ops-brain/opsd/internal/index"
	"github.com/ops-brain/opsd/internal/pipeline"
	"github.com/spf13/cobra"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Bulk-ingest a source file directly, bypassing registered sources",
	}
	cmd.AddCommand(ingestChatJSONCmd())
	return cmd
}

func ingestChatJSONCmd() *cobra.Command {
	var tags []string
	var doCopy bool
	var noCopy bool

	cmd := &cobra.Command{
		Use:   "chat_json PATH",
		Short: "Ingest a chat-JSON file (JSON array or NDJSON)",
		Long: `Offline bulk ingest of a chat-JSON file: parses PATH with the
chat_json_file adapter and runs it through the pipeline directly
against the index, holding the offline-CLI write lock. Unlike
POST /v1/ingests/{name}:run this does not require a registered source
or a running daemon.`,
		Args: exactArgs(1, "ops ingest chat_json PATH [--tag ...] [--copy|--no-copy]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if noCopy {
				doCopy = false
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			off, err := cliutil.OpenOffline(cfg, flagConfig, true)
			if err != nil {
				return err
			}
			defer func() { _ = off.Close() }()

			locator := path
			if doCopy {
				copied, err := copyIntoRaw(off.Workspace, path)
				if err != nil {
					return err
				}
				locator = copied
			}

			records, err := chatjson.ReadFile(path)
			if err != nil {
				return err
			}
			drafts := chatjson.ToDrafts(records, locator, index.SchemaVersion, cliutil.NowISO(cfg.Timezone), tags)

			results := off.Pipeline.IngestBatch(context.Background(), drafts, pipeline.Options{
				Adapter: chatjson.Name,
				Dedupe:  true,
				NowISO:  cliutil.NowISO(cfg.Timezone),
			})
			printIngestResults(results)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag applied to every ingested event (repeatable)")
	cmd.Flags().BoolVar(&doCopy, "copy", true, "Copy the source file into raw/chat_json/ before ingesting")
	cmd.Flags().BoolVar(&noCopy, "no-copy", false, "Ingest in place without copying into raw/chat_json/")

	return cmd
}

// copyIntoRaw copies src into the workspace's raw/chat_json/ directory
// and returns the copy's path, which becomes the adapter locator so
// later index_rebuild runs read from the durable copy rather than a
// path the caller might move or delete.
func copyIntoRaw(workspace, src string) (string, error) {
	dir := filepath.Join(workspace, "raw", "chat_json")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", usageErrorf("create raw/chat_json dir: %v", err)
	}
	dst := filepath.Join(dir, filepath.Base(src))

	in, err := os.Open(src) //nolint:gosec // G304 - path supplied by CLI argument
	if err != nil {
		return "", usageErrorf("open %s: %v", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) //nolint:gosec // G304 - destination is derived from the workspace root
	if err != nil {
		return "", usageErrorf("create %s: %v", dst, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return "", usageErrorf("copy %s to %s: %v", src, dst, err)
	}
	return dst, nil
}

func printIngestResults(results []pipeline.Result) {
	var inserted, skipped, failed int
	for _, r := range results {
		switch r.Status {
		case pipeline.StatusInserted:
			inserted++
		case pipeline.StatusSkipped:
			skipped++
		case pipeline.StatusFailed:
			failed++
		}
	}
	if flagJSON {
		data, _ := json.MarshalIndent(map[string]any{
			"inserted": inserted, "skipped": skipped, "failed": failed, "results": results,
		}, "", "  ")
		fmt.Println(string(data))
		return
	}
	fmt.Printf("inserted=%d skipped=%d failed=%d\n", inserted, skipped, failed)
	for _, r := range results {
		if r.Status == pipeline.StatusFailed {
			fmt.Printf("  failed: %s\n", r.Error)
		}
	}
}
