package pipeline_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ops-brain/opsd/internal/canonlog"
	"github.com/ops-brain/opsd/internal/event"
	"github.com/ops-brain/opsd/internal/id"
	"github.com/ops-brain/opsd/internal/index"
	"github.com/ops-brain/opsd/internal/pipeline"
)

func newTestPipeline(t *testing.T) (*pipeline.Pipeline, *index.Store, *canonlog.Writer) {
	t.Helper()
	dir := t.TempDir()

	logWriter, err := canonlog.NewWriter(filepath.Join(dir, "canonical", "events.jsonl"))
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

	return pipeline.New(logWriter, store), store, logWriter
}

func chatDraft(idx int, content string) event.Draft {
	i := idx
	return event.Draft{
		SchemaVersion: "0.2",
		TS:            "2026-01-21T10:00:00+09:00",
		Type:          "chat.message",
		Tags:          []string{"t2", "memobird", "t2"},
		Text:          content,
		Payload:       map[string]any{"content": content},
		Source:        event.Source{Kind: "chat_json_file", Locator: "small.json"},
		Refs:          []event.Ref{{Kind: "chat_record", URI: "small.json", Span: &event.Span{Idx: &i}}},
	}
}

func TestIngestBatchInsertsThreeDrafts(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	drafts := []event.Draft{
		chatDraft(0, "hello"),
		chatDraft(1, "world"),
		chatDraft(2, "again"),
	}

	results := p.IngestBatch(context.Background(), drafts, pipeline.Options{
		Adapter: "chat_json_file", Dedupe: true, NowISO: "2026-01-21T10:00:01+09:00",
	})

	for i, r := range results {
		if r.Status != pipeline.StatusInserted {
			t.Fatalf("result[%d] = %+v, want inserted", i, r)
		}
		if !id.Valid(r.EventID) {
			t.Errorf("result[%d].EventID = %q, not a valid ULID", i, r.EventID)
		}
	}

	n, err := store.CountEvents(context.Background())
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if n != 3 {
		t.Fatalf("CountEvents = %d, want 3", n)
	}

	ev, found, err := store.GetEventByID(context.Background(), results[0].EventID)
	if err != nil || !found {
		t.Fatalf("GetEventByID: found=%v err=%v", found, err)
	}
	if len(ev.Tags) != 2 {
		t.Errorf("Tags = %v, want deduped to 2 entries", ev.Tags)
	}
}

func TestIngestBatchSkipsOnRerun(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	drafts := []event.Draft{chatDraft(0, "hello"), chatDraft(1, "world"), chatDraft(2, "again")}
	opts := pipeline.Options{Adapter: "chat_json_file", Dedupe: true, NowISO: "2026-01-21T10:00:01+09:00"}

	first := p.IngestBatch(context.Background(), drafts, opts)
	for _, r := range first {
		if r.Status != pipeline.StatusInserted {
			t.Fatalf("first pass result = %+v, want inserted", r)
		}
	}

	second := p.IngestBatch(context.Background(), drafts, opts)
	for _, r := range second {
		if r.Status != pipeline.StatusSkipped {
			t.Fatalf("second pass result = %+v, want skipped", r)
		}
	}

	n, err := store.CountEvents(context.Background())
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if n != 3 {
		t.Fatalf("CountEvents after rerun = %d, want 3", n)
	}
}

func TestIngestBatchFailsOnMissingRequiredFields(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	draft := event.Draft{SchemaVersion: "0.2", TS: "2026-01-21T10:00:00+09:00"}

	results := p.IngestBatch(context.Background(), []event.Draft{draft}, pipeline.Options{NowISO: "now"})
	if results[0].Status != pipeline.StatusFailed {
		t.Fatalf("result = %+v, want failed", results[0])
	}
}

func TestIngestBatchDryRunHasNoSideEffects(t *testing.T) {
	p, store, logWriter := newTestPipeline(t)
	drafts := []event.Draft{chatDraft(0, "hello")}

	results := p.IngestBatch(context.Background(), drafts, pipeline.Options{
		Adapter: "chat_json_file", Dedupe: true, DryRun: true, NowISO: "2026-01-21T10:00:01+09:00",
	})
	if results[0].Status != pipeline.StatusInserted {
		t.Fatalf("dry run result = %+v, want inserted (would-insert)", results[0])
	}

	n, err := store.CountEvents(context.Background())
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if n != 0 {
		t.Errorf("CountEvents after dry run = %d, want 0", n)
	}

	reader := canonlog.NewReader(logWriter.Path())
	events, _, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("log length after dry run = %d, want 0", len(events))
	}
}

func TestIngestBatchPreservesReceiveOrderInLog(t *testing.T) {
	p, _, logWriter := newTestPipeline(t)
	drafts := []event.Draft{chatDraft(0, "a"), chatDraft(1, "b"), chatDraft(2, "c")}

	p.IngestBatch(context.Background(), drafts, pipeline.Options{
		Adapter: "chat_json_file", Dedupe: true, NowISO: "2026-01-21T10:00:01+09:00",
	})

	reader := canonlog.NewReader(logWriter.Path())
	events, _, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	want := []string{"a", "b", "c"}
	for i, ev := range events {
		if ev.Text != want[i] {
			t.Errorf("events[%d].Text = %q, want %q", i, ev.Text, want[i])
		}
	}
}
