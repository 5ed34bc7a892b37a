package daemon

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ops-brain/opsd/internal/canonlog"
	"github.com/ops-brain/opsd/internal/index"
	"github.com/ops-brain/opsd/internal/jobs"
	"github.com/ops-brain/opsd/internal/opsconfig"
	"github.com/ops-brain/opsd/internal/pipeline"
	"github.com/ops-brain/opsd/internal/query"
)

func newTestContext(t *testing.T) (*ServerContext, *http.ServeMux) {
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

	engine := query.New(store, true)
	pl := pipeline.New(logWriter, store)
	env := &jobs.Env{
		Store: store, Log: logWriter, LogPath: logWriter.Path(),
		Engine: engine, Pipeline: pl, Workspace: dir, Timezone: "Asia/Tokyo",
	}

	sc := &ServerContext{
		Config:    &opsconfig.Config{Workspace: dir, Timezone: "Asia/Tokyo", FTSEnabled: true, MaxSnippetLen: 160},
		Workspace: dir,
		Store:     store,
		Log:       logWriter,
		LogPath:   logWriter.Path(),
		Engine:    engine,
		Pipeline:  pl,
		Jobs:      jobs.NewRegistry(env),
		Logger:    slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}

	mux := http.NewServeMux()
	registerRoutes(mux, sc)
	return sc, mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsSchemaVersion(t *testing.T) {
	_, mux := newTestContext(t)
	rec := doJSON(t, mux, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["ok"] != true {
		t.Errorf("ok = %v, want true", body["ok"])
	}
	if body["schema_version"] != index.SchemaVersion {
		t.Errorf("schema_version = %v, want %v", body["schema_version"], index.SchemaVersion)
	}
}

func TestEventsBatchThenGetByID(t *testing.T) {
	_, mux := newTestContext(t)

	draft := map[string]any{
		"schema_version": index.SchemaVersion,
		"ts":             "2026-01-21T10:00:00+09:00",
		"type":           "note.created",
		"tags":           []string{"t1"},
		"text":           "a note",
		"payload":        map[string]any{"body": "a note"},
		"source":         map[string]any{"kind": "manual", "locator": "cli"},
		"refs":           []any{},
	}
	rec := doJSON(t, mux, "POST", "/v1/events:batch", map[string]any{"events": []any{draft}})
	if rec.Code != http.StatusOK {
		t.Fatalf("batch status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var batchResp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &batchResp); err != nil {
		t.Fatalf("decode batch response: %v", err)
	}
	if int(batchResp["inserted"].(float64)) != 1 {
		t.Fatalf("inserted = %v, want 1: %s", batchResp["inserted"], rec.Body.String())
	}
	ids, _ := batchResp["ids"].([]any)
	if len(ids) != 1 {
		t.Fatalf("ids = %v, want 1 entry", ids)
	}
	id := ids[0].(string)

	rec = doJSON(t, mux, "GET", "/v1/events/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, "GET", "/v1/events/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get missing status = %d, want 404", rec.Code)
	}
}

func TestEventsListFiltersByTag(t *testing.T) {
	_, mux := newTestContext(t)

	mk := func(text, tag string) map[string]any {
		return map[string]any{
			"schema_version": index.SchemaVersion,
			"ts":             "2026-01-21T10:00:00+09:00",
			"type":           "note.created",
			"tags":           []string{tag},
			"text":           text,
			"payload":        map[string]any{"body": text},
			"source":         map[string]any{"kind": "manual", "locator": "cli"},
			"refs":           []any{},
		}
	}
	rec := doJSON(t, mux, "POST", "/v1/events:batch", map[string]any{
		"events": []any{mk("alpha", "a"), mk("beta", "b")},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("batch status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, "GET", "/v1/events?tag=a", nil)
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	items, _ := resp["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %v, want 1 matching tag=a", items)
	}
}

func TestSourceCreateGetTestAndDelete(t *testing.T) {
	dir := t.TempDir()
	chatPath := filepath.Join(dir, "chat.json")
	if err := os.WriteFile(chatPath, []byte(`[{"content":"hi"}]`), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, mux := newTestContext(t)
	rec := doJSON(t, mux, "POST", "/v1/sources", map[string]any{
		"name": "chat_export", "kind": "chat_json_file", "config": map[string]any{"path": chatPath},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, "GET", "/v1/sources/chat_export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, mux, "POST", "/v1/sources/chat_export:test", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("test status = %d, want 200 even on failure", rec.Code)
	}
	var testResp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &testResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if testResp["ok"] != true {
		t.Fatalf("test ok = %v, want true: %s", testResp["ok"], rec.Body.String())
	}

	rec = doJSON(t, mux, "DELETE", "/v1/sources/chat_export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, mux, "GET", "/v1/sources/chat_export", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", rec.Code)
	}
}

func TestSourceTestReportsOkFalseWithoutStatusError(t *testing.T) {
	_, mux := newTestContext(t)
	doJSON(t, mux, "POST", "/v1/sources", map[string]any{
		"name": "broken", "kind": "chat_json_file", "config": map[string]any{"path": "/nonexistent/path.json"},
	})

	rec := doJSON(t, mux, "POST", "/v1/sources/broken:test", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 per :test convention", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["ok"] != false {
		t.Fatalf("ok = %v, want false", resp["ok"])
	}
	if resp["error"] == nil {
		t.Error("expected error field to be set")
	}
}

func TestIngestRunIngestsChatJSONSource(t *testing.T) {
	dir := t.TempDir()
	chatPath := filepath.Join(dir, "chat.json")
	if err := os.WriteFile(chatPath, []byte(`[{"content":"hello"},{"content":"world"}]`), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, mux := newTestContext(t)
	doJSON(t, mux, "POST", "/v1/sources", map[string]any{
		"name": "chat_export", "kind": "chat_json_file", "config": map[string]any{"path": chatPath},
	})

	rec := doJSON(t, mux, "POST", "/v1/ingests/chat_export:run", map[string]any{"tags": []string{"memobird"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, "GET", "/v1/events", nil)
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	items, _ := resp["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("items = %v, want 2 ingested events", items)
	}
}

func TestViewCreateAndQuery(t *testing.T) {
	_, mux := newTestContext(t)
	rec := doJSON(t, mux, "POST", "/v1/views", map[string]any{
		"name": "my_view",
		"query": map[string]any{
			"kind": "events_query", "order": "desc",
			"filters": map[string]any{"tag": []string{"t1"}},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}

	mk := map[string]any{
		"schema_version": index.SchemaVersion,
		"ts":             "2026-01-21T10:00:00+09:00",
		"type":           "note.created",
		"tags":           []string{"t1"},
		"text":           "matches",
		"payload":        map[string]any{"body": "matches"},
		"source":         map[string]any{"kind": "manual", "locator": "cli"},
		"refs":           []any{},
	}
	doJSON(t, mux, "POST", "/v1/events:batch", map[string]any{"events": []any{mk}})

	rec = doJSON(t, mux, "POST", "/v1/views/my_view:query", map[string]any{"limit": 10})
	if rec.Code != http.StatusOK {
		t.Fatalf("query status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	items, _ := resp["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %v, want 1", items)
	}
}

func TestJobCreateRunAndListRuns(t *testing.T) {
	_, mux := newTestContext(t)
	rec := doJSON(t, mux, "POST", "/v1/jobs", map[string]any{
		"name": "rebuild", "kind": "index_rebuild", "enabled": true,
		"config": map[string]any{"wipe": false},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, "POST", "/v1/jobs/rebuild:run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var runResp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &runResp)
	if runResp["ok"] != true {
		t.Fatalf("run ok = %v, want true: %s", runResp["ok"], rec.Body.String())
	}

	rec = doJSON(t, mux, "GET", "/v1/jobs/rebuild/runs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("runs status = %d", rec.Code)
	}
	var listResp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &listResp)
	runs, _ := listResp["items"].([]any)
	if len(runs) != 1 {
		t.Fatalf("runs = %v, want 1", runs)
	}
}

func TestArtifactsPackAndList(t *testing.T) {
	sc, mux := newTestContext(t)

	assetPath := filepath.Join(sc.Workspace, "asset.txt")
	if err := os.WriteFile(assetPath, []byte("asset contents"), 0600); err != nil {
		t.Fatalf("write asset: %v", err)
	}

	draft := map[string]any{
		"schema_version": index.SchemaVersion,
		"ts":             "2026-01-21T10:00:00+09:00",
		"type":           "artifact.created",
		"tags":           []string{"demo"},
		"text":           "artifact",
		"payload":        map[string]any{"path": assetPath},
		"source":         map[string]any{"kind": "manual", "locator": "cli"},
		"refs":           []any{map[string]any{"kind": "file", "uri": assetPath}},
	}
	doJSON(t, mux, "POST", "/v1/events:batch", map[string]any{"events": []any{draft}})

	rec := doJSON(t, mux, "POST", "/v1/artifacts:pack", map[string]any{"tag": "demo", "out_dir": "packs/demo"})
	if rec.Code != http.StatusOK {
		t.Fatalf("pack status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var packResp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &packResp)
	if packResp["pack_path"] == nil {
		t.Error("expected pack_path in response")
	}

	rec = doJSON(t, mux, "GET", "/v1/artifacts?tag=demo", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("artifacts list status = %d", rec.Code)
	}
	var listResp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &listResp)
	items, _ := listResp["items"].([]any)
	if len(items) < 1 {
		t.Fatalf("items = %v, want at least 1 artifact.created event", items)
	}
}
