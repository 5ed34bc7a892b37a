package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ops-brain/opsd/internal/event"
	"github.com/ops-brain/opsd/internal/index"
	"github.com/ops-brain/opsd/internal/pipeline"
)

// ArtifactPack bundles every event carrying a tag into pack.json plus a
// README, copying any files referenced by artifact.created events in
// the set into an assets/ directory.
type ArtifactPack struct {
	env *Env
}

func (j *ArtifactPack) Run(ctx context.Context, config map[string]any) (Output, error) {
	tag, ok := stringConfig(config, "tag")
	if !ok {
		return nil, fmt.Errorf("artifact_pack config missing tag")
	}
	outDir, ok := stringConfig(config, "out_dir")
	if !ok {
		return nil, fmt.Errorf("artifact_pack config missing out_dir")
	}

	events, err := j.env.Store.ListEventsFiltered(ctx, index.QueryOptions{Tags: []string{tag}, Desc: true, Limit: 500})
	if err != nil {
		return nil, err
	}

	packDir := filepath.Join(j.env.Workspace, outDir)
	assetsDir := filepath.Join(packDir, "assets")
	if err := os.MkdirAll(assetsDir, 0750); err != nil {
		return nil, fmt.Errorf("create pack output dir: %w", err)
	}

	var assets []string
	for _, ev := range events {
		if ev.Type != "artifact.created" {
			continue
		}
		for _, ref := range ev.Refs {
			if ref.Kind != "file" {
				continue
			}
			asset, err := copyIntoAssets(ref.URI, assetsDir)
			if err != nil {
				continue // best-effort: a missing/unreadable referenced file does not fail the pack
			}
			assets = append(assets, asset)
		}
	}

	pack := map[string]any{
		"tag":    tag,
		"items":  events,
		"assets": assets,
	}
	packJSON, err := json.MarshalIndent(pack, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal pack.json: %w", err)
	}
	packJSON = append(packJSON, '\n')
	if err := writeFileAtomic(filepath.Join(packDir, "pack.json"), packJSON); err != nil {
		return nil, err
	}

	readme := renderPackReadme(tag, events)
	if err := writeFileAtomic(filepath.Join(packDir, "README.md"), []byte(readme)); err != nil {
		return nil, err
	}

	draft := event.Draft{
		SchemaVersion: index.SchemaVersion,
		TS:            NowISO(j.env.Timezone),
		Type:          "artifact.created",
		Tags:          []string{tag, "artifact-pack"},
		Text:          fmt.Sprintf("artifact pack for tag %s (%d items)", tag, len(events)),
		Payload:       map[string]any{"tag": tag, "item_count": len(events)},
		Source:        event.Source{Kind: "job:artifact_pack", Locator: tag},
		Refs: []event.Ref{
			{Kind: "file", URI: filepath.Join(packDir, "pack.json")},
			{Kind: "file", URI: filepath.Join(packDir, "README.md")},
		},
	}
	result := j.env.Pipeline.IngestBatch(ctx, []event.Draft{draft}, pipeline.Options{NowISO: draft.TS})[0]
	if result.Status == pipeline.StatusFailed {
		return nil, fmt.Errorf("emit artifact.created for pack: %s", result.Error)
	}

	return Output{
		"out_dir":      packDir,
		"item_count":   len(events),
		"asset_count":  len(assets),
		"artifact_id":  result.EventID,
		"tag":          tag,
		"pack_event":   result.EventID,
		"assets_found": assets,
	}, nil
}

func copyIntoAssets(srcPath, assetsDir string) (string, error) {
	data, err := os.ReadFile(srcPath) //nolint:gosec // G304 - path comes from a stored event ref, not untrusted input
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:])[:12] + "_" + filepath.Base(srcPath)
	destPath := filepath.Join(assetsDir, name)
	if err := os.WriteFile(destPath, data, 0600); err != nil {
		return "", err
	}
	return destPath, nil
}

func renderPackReadme(tag string, events []*event.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Artifact pack — %s\n\n", tag)
	n := len(events)
	if n > 20 {
		n = 20
	}
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", events[i].TS, events[i].Type, events[i].ID)
	}
	return b.String()
}
