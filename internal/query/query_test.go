package query_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ops-brain/opsd/internal/event"
	"github.com/ops-brain/opsd/internal/index"
	"github.com/ops-brain/opsd/internal/query"
)

func newStore(t *testing.T) *index.Store {
	t.Helper()
	db, err := index.OpenDB(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := index.InitDB(db); err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	return index.NewStore(db)
}

func insertChat(t *testing.T, store *index.Store, id, text, tag, ts string) {
	t.Helper()
	dedupeKey := id + "-key"
	idx := 0
	ev := &event.Event{
		SchemaVersion: "0.2",
		ID:            id,
		TS:            ts,
		Type:          "chat.message",
		Tags:          []string{tag},
		Text:          text,
		Payload:       map[string]any{"content": text},
		Source:        event.Source{Kind: "chat_json_file", Locator: "small.json"},
		Refs:          []event.Ref{{Kind: "chat_record", URI: "small.json", Span: &event.Span{Idx: &idx}}},
		Hash:          event.Hash{Algo: "sha256", Value: "deadbeef"},
		DedupeKey:     &dedupeKey,
		CreatedAt:     ts,
	}
	if err := store.InsertEvent(context.Background(), ev); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
}

func TestRunFTSFindsMemobird(t *testing.T) {
	store := newStore(t)
	insertChat(t, store, "id1", "remember memobird please", "t2", "2026-01-21T10:00:00+09:00")
	insertChat(t, store, "id2", "unrelated text", "t3", "2026-01-21T10:01:00+09:00")

	eng := query.New(store, true)
	rows, err := eng.Run(context.Background(), query.Request{Q: "memobird", Desc: true, Limit: 50})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rows.Summaries) != 1 || rows.Summaries[0].ID != "id1" {
		t.Fatalf("rows = %+v, want just id1", rows.Summaries)
	}
}

func TestRunLikeFallbackWhenFTSDisabled(t *testing.T) {
	store := newStore(t)
	insertChat(t, store, "id1", "remember memobird please", "t2", "2026-01-21T10:00:00+09:00")

	eng := query.New(store, false)
	rows, err := eng.Run(context.Background(), query.Request{Q: "memobird", Desc: true, Limit: 50})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rows.Summaries) != 1 {
		t.Fatalf("rows = %+v, want 1 row", rows.Summaries)
	}
}

func TestRunOrdersDescByDefault(t *testing.T) {
	store := newStore(t)
	insertChat(t, store, "id1", "first", "t2", "2026-01-21T10:00:00+09:00")
	insertChat(t, store, "id2", "second", "t2", "2026-01-21T10:01:00+09:00")

	eng := query.New(store, true)
	rows, err := eng.Run(context.Background(), query.Request{Desc: true, Limit: 50})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rows.Summaries) != 2 || rows.Summaries[0].ID != "id2" {
		t.Fatalf("rows = %+v, want id2 first (desc)", rows.Summaries)
	}
}

func TestMergeFiltersIntersectionAndUnion(t *testing.T) {
	stored := query.Filters{Types: []string{"chat.message", "artifact.created"}, Tags: []string{"a", "b"}, After: "2026-01-01", Before: "2026-01-31"}
	request := query.Filters{Types: []string{"chat.message"}, Tags: []string{"b", "c"}, After: "2026-01-10", Before: "2026-01-20"}

	merged := query.MergeFilters(stored, request)

	if len(merged.Types) != 1 || merged.Types[0] != "chat.message" {
		t.Errorf("Types = %v, want [chat.message]", merged.Types)
	}
	if len(merged.Tags) != 3 || merged.Tags[0] != "a" || merged.Tags[1] != "b" || merged.Tags[2] != "c" {
		t.Errorf("Tags = %v, want [a b c] ordered union", merged.Tags)
	}
	if merged.After != "2026-01-10" {
		t.Errorf("After = %q, want max = 2026-01-10", merged.After)
	}
	if merged.Before != "2026-01-20" {
		t.Errorf("Before = %q, want min = 2026-01-20", merged.Before)
	}
}

func TestMergeFiltersWhicheverIsSetWhenOtherEmpty(t *testing.T) {
	stored := query.Filters{}
	request := query.Filters{Types: []string{"chat.message"}, Tags: []string{"x"}}
	merged := query.MergeFilters(stored, request)
	if len(merged.Types) != 1 || merged.Types[0] != "chat.message" {
		t.Errorf("Types = %v, want request's types", merged.Types)
	}
	if len(merged.Tags) != 1 || merged.Tags[0] != "x" {
		t.Errorf("Tags = %v, want request's tags", merged.Tags)
	}
}

func TestEnsureBuiltinViewsCreatesOnlyMissing(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.UpsertView(ctx, index.View{Name: "timeline", Description: "custom", Query: map[string]any{"custom": true}, CreatedAt: "t0"}); err != nil {
		t.Fatalf("UpsertView: %v", err)
	}

	if err := query.EnsureBuiltinViews(ctx, store, "t1"); err != nil {
		t.Fatalf("EnsureBuiltinViews: %v", err)
	}

	timeline, found, err := store.GetView(ctx, "timeline")
	if err != nil || !found {
		t.Fatalf("GetView(timeline): found=%v err=%v", found, err)
	}
	if timeline.Description != "custom" {
		t.Errorf("timeline was overwritten: %+v", timeline)
	}

	tagTimeline, found, err := store.GetView(ctx, "tag_timeline")
	if err != nil || !found {
		t.Fatalf("GetView(tag_timeline): found=%v err=%v", found, err)
	}
	if tagTimeline.Query["kind"] != "events_query" {
		t.Errorf("tag_timeline.Query = %+v", tagTimeline.Query)
	}
}
