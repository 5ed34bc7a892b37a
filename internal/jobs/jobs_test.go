package jobs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ops-brain/opsd/internal/canonlog"
	"github.com/ops-brain/opsd/internal/event"
	"github.com/ops-brain/opsd/internal/index"
	"github.com/ops-brain/opsd/internal/jobs"
	"github.com/ops-brain/opsd/internal/pipeline"
	"github.com/ops-brain/opsd/internal/query"
)

func newTestEnv(t *testing.T) (*jobs.Env, *index.Store) {
	t.Helper()
	dir := t.TempDir()

	logPath := filepath.Join(dir, "canonical", "events.jsonl")
	logWriter, err := canonlog.NewWriter(logPath)
	if err != nil {
		t.Fatalf("canonlog.NewWriter: %v", err)
	}
	t.Cleanup(func() { _ = logWriter.Close() })

	db, err := index.OpenDB(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := index.InitDB(db); err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	store := index.NewStore(db)
	eng := query.New(store, true)
	p := pipeline.New(logWriter, store)

	return &jobs.Env{
		Store:     store,
		Log:       logWriter,
		LogPath:   logPath,
		Engine:    eng,
		Pipeline:  p,
		Workspace: dir,
		Timezone:  "Asia/Tokyo",
	}, store
}

func chatDraft(idx int, content, ts string, tags []string) event.Draft {
	i := idx
	return event.Draft{
		SchemaVersion: "0.2",
		TS:            ts,
		Type:          "chat.message",
		Tags:          tags,
		Text:          content,
		Payload:       map[string]any{"content": content},
		Source:        event.Source{Kind: "chat_json_file", Locator: "small.json"},
		Refs:          []event.Ref{{Kind: "chat_record", URI: "small.json", Span: &event.Span{Idx: &i}}},
	}
}

func TestDailyDigestWritesMarkdownAndEmitsArtifact(t *testing.T) {
	env, store := newTestEnv(t)
	ctx := context.Background()

	if err := query.EnsureBuiltinViews(ctx, store, "2026-01-21T00:00:00+09:00"); err != nil {
		t.Fatalf("EnsureBuiltinViews: %v", err)
	}

	drafts := []event.Draft{
		chatDraft(0, "remember memobird", "2026-01-21T10:00:00+09:00", []string{"memobird"}),
		chatDraft(1, "second message", "2026-01-21T11:00:00+09:00", []string{"memobird"}),
	}
	results := env.Pipeline.IngestBatch(ctx, drafts, pipeline.Options{Adapter: "chat_json_file", Dedupe: true, NowISO: "2026-01-21T10:00:01+09:00"})
	for _, r := range results {
		if r.Status != pipeline.StatusInserted {
			t.Fatalf("ingest result = %+v, want inserted", r)
		}
	}

	reg := jobs.NewRegistry(env)
	out, err := reg.Run(ctx, "daily_digest", map[string]any{
		"view":    "timeline",
		"day":     "2026-01-21",
		"out_dir": "artifacts/runs/2026-01-21",
		"tags":    []any{"memobird"},
	})
	if err != nil {
		t.Fatalf("daily_digest: %v", err)
	}
	if out["event_count"] != 2 {
		t.Errorf("event_count = %v, want 2", out["event_count"])
	}

	outPath := filepath.Join(env.Workspace, "artifacts/runs/2026-01-21", "daily_digest.md")
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read digest: %v", err)
	}
	if len(data) == 0 {
		t.Error("digest file is empty")
	}

	rows, err := env.Engine.Run(ctx, query.Request{Filters: query.Filters{Types: []string{"artifact.created"}}, Desc: true, Limit: 10})
	if err != nil {
		t.Fatalf("query artifact.created: %v", err)
	}
	if rows.Len() != 1 {
		t.Fatalf("artifact.created rows = %d, want 1", rows.Len())
	}
}

func TestArtifactPackBundlesTaggedEventsAndCopiesAssets(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()

	assetSrc := filepath.Join(env.Workspace, "source-file.txt")
	if err := os.WriteFile(assetSrc, []byte("hello asset"), 0600); err != nil {
		t.Fatalf("write source file: %v", err)
	}

	artifactDraft := event.Draft{
		SchemaVersion: "0.2",
		TS:            "2026-01-21T10:00:00+09:00",
		Type:          "artifact.created",
		Tags:          []string{"pack-me"},
		Text:          "an artifact",
		Payload:       map[string]any{},
		Source:        event.Source{Kind: "test", Locator: "test"},
		Refs:          []event.Ref{{Kind: "file", URI: assetSrc}},
	}
	results := env.Pipeline.IngestBatch(ctx, []event.Draft{artifactDraft}, pipeline.Options{NowISO: "2026-01-21T10:00:01+09:00"})
	if results[0].Status != pipeline.StatusInserted {
		t.Fatalf("ingest artifact draft: %+v", results[0])
	}

	reg := jobs.NewRegistry(env)
	out, err := reg.Run(ctx, "artifact_pack", map[string]any{"tag": "pack-me", "out_dir": "artifacts/pack-me"})
	if err != nil {
		t.Fatalf("artifact_pack: %v", err)
	}
	if out["item_count"] != 1 {
		t.Errorf("item_count = %v, want 1", out["item_count"])
	}
	if out["asset_count"] != 1 {
		t.Errorf("asset_count = %v, want 1", out["asset_count"])
	}

	packDir := filepath.Join(env.Workspace, "artifacts/pack-me")
	if _, err := os.Stat(filepath.Join(packDir, "pack.json")); err != nil {
		t.Errorf("pack.json missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(packDir, "README.md")); err != nil {
		t.Errorf("README.md missing: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(packDir, "assets"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("assets dir entries = %v, err=%v, want 1 entry", entries, err)
	}
}

func TestIndexRebuildRestoresCountsAndBackfillsDedupeKey(t *testing.T) {
	env, store := newTestEnv(t)
	ctx := context.Background()

	drafts := []event.Draft{
		chatDraft(0, "hello", "2026-01-21T10:00:00+09:00", []string{"t2"}),
		chatDraft(1, "world", "2026-01-21T10:01:00+09:00", []string{"t2"}),
	}
	results := env.Pipeline.IngestBatch(ctx, drafts, pipeline.Options{Adapter: "chat_json_file", Dedupe: true, NowISO: "2026-01-21T10:00:01+09:00"})
	for _, r := range results {
		if r.Status != pipeline.StatusInserted {
			t.Fatalf("ingest result = %+v, want inserted", r)
		}
	}

	preEvents, err := store.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	preDedupe, err := store.CountDedupe(ctx)
	if err != nil {
		t.Fatalf("CountDedupe: %v", err)
	}

	reg := jobs.NewRegistry(env)
	out, err := reg.Run(ctx, "index_rebuild", map[string]any{"wipe": true, "fts": true})
	if err != nil {
		t.Fatalf("index_rebuild: %v", err)
	}
	if out["inserted"] != 2 {
		t.Errorf("inserted = %v, want 2", out["inserted"])
	}
	if out["skipped"] != 0 {
		t.Errorf("skipped = %v, want 0", out["skipped"])
	}

	postEvents, err := store.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents after rebuild: %v", err)
	}
	postDedupe, err := store.CountDedupe(ctx)
	if err != nil {
		t.Fatalf("CountDedupe after rebuild: %v", err)
	}
	if postEvents != preEvents {
		t.Errorf("CountEvents after rebuild = %d, want %d", postEvents, preEvents)
	}
	if postDedupe != preDedupe {
		t.Errorf("CountDedupe after rebuild = %d, want %d", postDedupe, preDedupe)
	}

	// Rerun without wipe: every event already exists, so everything is
	// skipped and counts are unchanged (rebuild idempotence).
	out2, err := reg.Run(ctx, "index_rebuild", map[string]any{})
	if err != nil {
		t.Fatalf("index_rebuild rerun: %v", err)
	}
	if out2["skipped"] != 2 || out2["inserted"] != 0 {
		t.Errorf("rerun output = %+v, want all skipped", out2)
	}
}

func TestExecuteRecordsJobRunLifecycle(t *testing.T) {
	env, store := newTestEnv(t)
	ctx := context.Background()
	reg := jobs.NewRegistry(env)

	if err := store.UpsertJob(ctx, index.Job{Name: "rebuild-job", Kind: "index_rebuild", Enabled: true, CreatedAt: "2026-01-21T00:00:00+09:00"}); err != nil {
		t.Fatalf("UpsertJob: %v", err)
	}

	run, err := jobs.Execute(ctx, store, reg, "rebuild-job", "index_rebuild", map[string]any{}, func() string { return jobs.NowISO(env.Timezone) })
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Status != "ok" {
		t.Errorf("run.Status = %q, want ok", run.Status)
	}
	if run.FinishedAt == nil {
		t.Error("run.FinishedAt is nil, want set")
	}

	runs, err := store.ListJobRuns(ctx, "rebuild-job", 10)
	if err != nil {
		t.Fatalf("ListJobRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != "ok" {
		t.Fatalf("runs = %+v, want 1 ok run", runs)
	}
}
