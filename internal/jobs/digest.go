package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ops-brain/opsd/internal/event"
	"github.com/ops-brain/opsd/internal/index"
	"github.com/ops-brain/opsd/internal/pipeline"
	"github.com/ops-brain/opsd/internal/query"
)

// DailyDigest writes a Markdown summary of one day's events against a
// named view, then emits an artifact.created event pointing at it.
type DailyDigest struct {
	env *Env
}

func (j *DailyDigest) Run(ctx context.Context, config map[string]any) (Output, error) {
	viewName, ok := stringConfig(config, "view")
	if !ok {
		return nil, fmt.Errorf("daily_digest config missing view")
	}
	day, ok := stringConfig(config, "day")
	if !ok {
		return nil, fmt.Errorf("daily_digest config missing day")
	}
	outDir, ok := stringConfig(config, "out_dir")
	if !ok {
		return nil, fmt.Errorf("daily_digest config missing out_dir")
	}
	tags := stringSliceConfig(config, "tags")

	loc, err := time.LoadLocation(j.env.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", j.env.Timezone, err)
	}
	dayStart, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return nil, fmt.Errorf("parse day %q: %w", day, err)
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	view, found, err := j.env.Store.GetView(ctx, viewName)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("view %q not found", viewName)
	}
	storedFilters, desc := filtersFromView(view.Query)
	merged := query.MergeFilters(storedFilters, query.Filters{
		After:  dayStart.Format(time.RFC3339),
		Before: dayEnd.Format(time.RFC3339),
	})

	res, err := j.env.Engine.Run(ctx, query.Request{Filters: merged, Limit: 500, Desc: desc})
	if err != nil {
		return nil, err
	}
	rows := res.Summaries

	outPath := filepath.Join(j.env.Workspace, outDir, "daily_digest.md")
	if err := os.MkdirAll(filepath.Dir(outPath), 0750); err != nil {
		return nil, fmt.Errorf("create digest output dir: %w", err)
	}
	md := renderDigest(day, rows)
	if err := writeFileAtomic(outPath, []byte(md)); err != nil {
		return nil, err
	}

	digestTags := append([]string{"digest"}, tags...)
	draft := event.Draft{
		SchemaVersion: index.SchemaVersion,
		TS:            NowISO(j.env.Timezone),
		Type:          "artifact.created",
		Tags:          digestTags,
		Text:          fmt.Sprintf("daily digest for %s (%d events)", day, len(rows)),
		Payload:       map[string]any{"view": viewName, "day": day, "event_count": len(rows)},
		Source:        event.Source{Kind: "job:daily_digest", Locator: viewName},
		Refs:          []event.Ref{{Kind: "file", URI: outPath}},
	}
	result := j.env.Pipeline.IngestBatch(ctx, []event.Draft{draft}, pipeline.Options{DryRun: false, NowISO: draft.TS})[0]
	if result.Status == pipeline.StatusFailed {
		return nil, fmt.Errorf("emit artifact.created for digest: %s", result.Error)
	}

	return Output{
		"out_path":     outPath,
		"event_count":  len(rows),
		"artifact_id":  result.EventID,
		"view":         viewName,
		"day":          day,
		"digest_event": result.EventID,
	}, nil
}

func renderDigest(day string, rows []index.SummaryRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Daily digest — %s\n\n", day)

	counts := map[string]int{}
	tagCounts := map[string]int{}
	for _, r := range rows {
		counts[r.Type]++
		for _, t := range r.Tags {
			tagCounts[t]++
		}
	}

	b.WriteString("## Counts by type\n\n")
	for _, t := range sortedByCountDesc(counts) {
		fmt.Fprintf(&b, "- %s: %d\n", t.key, t.count)
	}
	b.WriteString("\n## Top tags\n\n")
	topTags := sortedByCountDesc(tagCounts)
	if len(topTags) > 10 {
		topTags = topTags[:10]
	}
	for _, t := range topTags {
		fmt.Fprintf(&b, "- %s: %d\n", t.key, t.count)
	}

	b.WriteString("\n## Sample snippets\n\n")
	sampleN := len(rows)
	if sampleN > 10 {
		sampleN = 10
	}
	for i := 0; i < sampleN; i++ {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", rows[i].TS, rows[i].Type, rows[i].Snippet)
	}
	return b.String()
}

type countEntry struct {
	key   string
	count int
}

func sortedByCountDesc(counts map[string]int) []countEntry {
	out := make([]countEntry, 0, len(counts))
	for k, c := range counts {
		out = append(out, countEntry{key: k, count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}
