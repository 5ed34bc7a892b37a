package daemon

import (
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ops-brain/opsd/internal/adapter/chatjson"
	"github.com/ops-brain/opsd/internal/event"
	"github.com/ops-brain/opsd/internal/index"
	"github.com/ops-brain/opsd/internal/jobs"
	"github.com/ops-brain/opsd/internal/pipeline"
	"github.com/ops-brain/opsd/internal/query"
)

func registerRoutes(mux *http.ServeMux, sc *ServerContext) {
	mux.HandleFunc("GET /health", handleHealth(sc))

	mux.HandleFunc("POST /v1/events:batch", handleEventsBatch(sc))
	mux.HandleFunc("GET /v1/events", handleEventsList(sc))
	mux.HandleFunc("GET /v1/events/{id}", handleEventGet(sc))

	mux.HandleFunc("POST /v1/sources", handleSourceCreate(sc))
	mux.HandleFunc("GET /v1/sources", handleSourceList(sc))
	mux.HandleFunc("GET /v1/sources/{name}", handleSourceGet(sc))
	mux.HandleFunc("DELETE /v1/sources/{name}", handleSourceDelete(sc))
	mux.HandleFunc("POST /v1/sources/{name}", handleSourceNameAction(sc))

	mux.HandleFunc("POST /v1/ingests/{name}", handleIngestRun(sc))

	mux.HandleFunc("POST /v1/views", handleViewCreate(sc))
	mux.HandleFunc("GET /v1/views", handleViewList(sc))
	mux.HandleFunc("GET /v1/views/{name}", handleViewGet(sc))
	mux.HandleFunc("DELETE /v1/views/{name}", handleViewDelete(sc))
	mux.HandleFunc("POST /v1/views/{name}", handleViewNameAction(sc))

	mux.HandleFunc("POST /v1/jobs", handleJobCreate(sc))
	mux.HandleFunc("GET /v1/jobs", handleJobList(sc))
	mux.HandleFunc("GET /v1/jobs/{name}", handleJobGet(sc))
	mux.HandleFunc("DELETE /v1/jobs/{name}", handleJobDelete(sc))
	mux.HandleFunc("POST /v1/jobs/{name}", handleJobNameAction(sc))
	mux.HandleFunc("GET /v1/jobs/{name}/runs", handleJobRuns(sc))

	mux.HandleFunc("GET /v1/artifacts", handleArtifactsList(sc))
	mux.HandleFunc("POST /v1/artifacts:pack", handleArtifactsPack(sc))
}

// --- health ---

func handleHealth(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version, err := index.GetSchemaVersion(sc.Store.Raw())
		if err != nil {
			version = ""
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":             true,
			"version":        index.SchemaVersion,
			"schema_version": version,
		})
	}
}

// --- events ---

type eventsBatchRequest struct {
	Events  []event.Draft `json:"events"`
	Options struct {
		Dedupe bool `json:"dedupe"`
		DryRun bool `json:"dry_run"`
	} `json:"options"`
}

func handleEventsBatch(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req eventsBatchRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		var results []pipeline.Result
		sc.WithWriteLock(func() {
			results = sc.Pipeline.IngestBatch(r.Context(), req.Events, pipeline.Options{
				Dedupe: req.Options.Dedupe,
				DryRun: req.Options.DryRun,
				NowISO: jobs.NowISO(sc.Config.Timezone),
			})
		})

		var inserted, skipped, failed int
		ids := make([]string, 0, len(results))
		errs := make([]string, 0)
		for _, res := range results {
			switch res.Status {
			case pipeline.StatusInserted:
				inserted++
				ids = append(ids, res.EventID)
			case pipeline.StatusSkipped:
				skipped++
			case pipeline.StatusFailed:
				failed++
				errs = append(errs, res.Error)
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"inserted": inserted,
			"skipped":  skipped,
			"failed":   failed,
			"results":  results,
			"new":      inserted,
			"errors":   errs,
			"ids":      ids,
		})
	}
}

// handleEventsList serves GET /v1/events directly against the store
// rather than through query.Engine.Run: the FTS-with-LIKE-fallback
// retry is CLI-only and undocumented on the HTTP surface.
func handleEventsList(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := index.QueryOptions{
			Types:      csvSplit(q.Get("type")),
			Tags:       csvSplit(q.Get("tag")),
			After:      q.Get("after"),
			Before:     q.Get("before"),
			Limit:      atoiDefault(q.Get("limit"), 50),
			Desc:       q.Get("order") != "asc",
			SnippetLen: sc.Config.MaxSnippetLen,
		}
		if text := q.Get("q"); text != "" {
			if sc.Config.FTSEnabled {
				opts.Text = text
			} else {
				opts.TextLike = text
			}
		}

		if q.Get("format") == "full" {
			events, err := sc.Store.ListEventsFiltered(r.Context(), opts)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": events})
			return
		}

		rows, err := sc.Store.ListSummaries(r.Context(), opts)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": rows})
	}
}

func handleEventGet(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		ev, found, err := sc.Store.GetEventByID(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// --- sources ---

func handleSourceCreate(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var src index.Source
		if err := readJSON(r, &src); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if src.Name == "" || src.Kind == "" {
			writeError(w, http.StatusBadRequest, "source requires name and kind")
			return
		}
		src.CreatedAt = jobs.NowISO(sc.Config.Timezone)
		var upsertErr error
		sc.WithWriteLock(func() { upsertErr = sc.Store.UpsertSource(r.Context(), src) })
		if upsertErr != nil {
			writeError(w, http.StatusBadRequest, upsertErr.Error())
			return
		}
		writeJSON(w, http.StatusOK, src)
	}
}

func handleSourceList(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		srcs, err := sc.Store.ListSources(r.Context())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": srcs})
	}
}

func handleSourceGet(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, found, err := sc.Store.GetSource(r.Context(), r.PathValue("name"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		writeJSON(w, http.StatusOK, src)
	}
}

func handleSourceDelete(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		sc.WithWriteLock(func() {
			_, _ = sc.Store.Raw().ExecContext(r.Context(), `DELETE FROM sources WHERE name = ?`, name)
		})
		writeJSON(w, http.StatusOK, map[string]any{"deleted": name})
	}
}

// handleSourceNameAction dispatches POST /v1/sources/{name}: only the
// ":test" suffix is defined, since plain creation is POST /v1/sources.
func handleSourceNameAction(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, _, ok := splitAction(r.PathValue("name"), "test")
		if !ok {
			writeError(w, http.StatusBadRequest, "unsupported source action")
			return
		}
		src, found, err := sc.Store.GetSource(r.Context(), name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		path, _ := src.Config["path"].(string)
		if path == "" {
			writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "source config missing path"})
			return
		}
		if _, err := chatjson.ReadFile(path); err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

// --- ingests ---

type ingestRunRequest struct {
	Tags   []string `json:"tags"`
	DryRun bool     `json:"dry_run"`
}

func handleIngestRun(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, _, ok := splitAction(r.PathValue("name"), "run")
		if !ok {
			writeError(w, http.StatusBadRequest, "unsupported ingest action")
			return
		}
		src, found, err := sc.Store.GetSource(r.Context(), name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		var req ingestRunRequest
		_ = readJSON(r, &req)

		if src.Kind != chatjson.Name {
			writeError(w, http.StatusBadRequest, "unsupported source kind "+src.Kind)
			return
		}
		path, _ := src.Config["path"].(string)
		if path == "" {
			writeError(w, http.StatusBadRequest, "source config missing path")
			return
		}
		records, err := chatjson.ReadFile(path)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		tags := append(append([]string{}, src.Tags...), req.Tags...)
		drafts := chatjson.ToDrafts(records, path, index.SchemaVersion, jobs.NowISO(sc.Config.Timezone), tags)

		var results []pipeline.Result
		sc.WithWriteLock(func() {
			results = sc.Pipeline.IngestBatch(r.Context(), drafts, pipeline.Options{
				Adapter: chatjson.Name, Dedupe: true, DryRun: req.DryRun, NowISO: jobs.NowISO(sc.Config.Timezone),
			})
		})
		writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
	}
}

// --- views ---

func handleViewCreate(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var v index.View
		if err := readJSON(r, &v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if v.Name == "" {
			writeError(w, http.StatusBadRequest, "view requires name")
			return
		}
		v.CreatedAt = jobs.NowISO(sc.Config.Timezone)
		var upsertErr error
		sc.WithWriteLock(func() { upsertErr = sc.Store.UpsertView(r.Context(), v) })
		if upsertErr != nil {
			writeError(w, http.StatusBadRequest, upsertErr.Error())
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleViewList(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := sc.Store.ListViews(r.Context())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": views})
	}
}

func handleViewGet(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, found, err := sc.Store.GetView(r.Context(), r.PathValue("name"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "view not found")
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleViewDelete(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		sc.WithWriteLock(func() {
			_, _ = sc.Store.Raw().ExecContext(r.Context(), `DELETE FROM views WHERE name = ?`, name)
		})
		writeJSON(w, http.StatusOK, map[string]any{"deleted": name})
	}
}

type viewQueryRequest struct {
	Filters struct {
		Type   []string `json:"type"`
		Tag    []string `json:"tag"`
		After  string   `json:"after"`
		Before string   `json:"before"`
	} `json:"filters"`
	Limit int `json:"limit"`
}

func handleViewNameAction(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, _, ok := splitAction(r.PathValue("name"), "query")
		if !ok {
			writeError(w, http.StatusBadRequest, "unsupported view action")
			return
		}
		v, found, err := sc.Store.GetView(r.Context(), name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "view not found")
			return
		}
		var req viewQueryRequest
		_ = readJSON(r, &req)

		storedFilters, desc := filtersFromViewQuery(v.Query)
		merged := query.MergeFilters(storedFilters, query.Filters{
			Types:  req.Filters.Type,
			Tags:   req.Filters.Tag,
			After:  req.Filters.After,
			Before: req.Filters.Before,
		})
		limit := req.Limit
		if limit <= 0 {
			limit = 50
		}
		rows, err := sc.Store.ListSummaries(r.Context(), index.QueryOptions{
			Types: merged.Types, Tags: merged.Tags, After: merged.After, Before: merged.Before,
			Limit: limit, Desc: desc, SnippetLen: sc.Config.MaxSnippetLen,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": rows})
	}
}

// --- jobs ---

func handleJobCreate(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var j index.Job
		if err := readJSON(r, &j); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if j.Name == "" || j.Kind == "" {
			writeError(w, http.StatusBadRequest, "job requires name and kind")
			return
		}
		j.CreatedAt = jobs.NowISO(sc.Config.Timezone)
		var upsertErr error
		sc.WithWriteLock(func() { upsertErr = sc.Store.UpsertJob(r.Context(), j) })
		if upsertErr != nil {
			writeError(w, http.StatusBadRequest, upsertErr.Error())
			return
		}
		writeJSON(w, http.StatusOK, j)
	}
}

func handleJobList(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := sc.Store.ListJobs(r.Context())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": list})
	}
}

func handleJobGet(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, found, err := sc.Store.GetJob(r.Context(), r.PathValue("name"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, j)
	}
}

func handleJobDelete(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		sc.WithWriteLock(func() {
			_, _ = sc.Store.Raw().ExecContext(r.Context(), `DELETE FROM jobs WHERE name = ?`, name)
		})
		writeJSON(w, http.StatusOK, map[string]any{"deleted": name})
	}
}

func handleJobNameAction(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, _, ok := splitAction(r.PathValue("name"), "run")
		if !ok {
			writeError(w, http.StatusBadRequest, "unsupported job action")
			return
		}
		j, found, err := sc.Store.GetJob(r.Context(), name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}

		var run index.JobRun
		var runErr error
		sc.WithWriteLock(func() {
			run, runErr = jobs.Execute(r.Context(), sc.Store, sc.Jobs, j.Name, j.Kind, j.Config, func() string { return jobs.NowISO(sc.Config.Timezone) })
		})
		if runErr != nil {
			writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": runErr.Error(), "run": run})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "run": run})
	}
}

func handleJobRuns(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := sc.Store.ListJobRuns(r.Context(), r.PathValue("name"), atoiDefault(r.URL.Query().Get("limit"), 50))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": runs})
	}
}

// --- artifacts ---

func handleArtifactsList(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := index.QueryOptions{
			Types:  []string{"artifact.created"},
			Tags:   csvSplit(q.Get("tag")),
			After:  q.Get("after"),
			Before: q.Get("before"),
			Desc:   true,
			Limit:  200,
		}
		events, err := sc.Store.ListEventsFiltered(r.Context(), opts)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": events})
	}
}

type artifactsPackRequest struct {
	Tag    string `json:"tag"`
	OutDir string `json:"out_dir"`
}

func handleArtifactsPack(sc *ServerContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req artifactsPackRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.Tag == "" || req.OutDir == "" {
			writeError(w, http.StatusBadRequest, "artifact pack requires tag and out_dir")
			return
		}
		var out jobs.Output
		var err error
		sc.WithWriteLock(func() {
			out, err = sc.Jobs.Run(r.Context(), "artifact_pack", map[string]any{"tag": req.Tag, "out_dir": req.OutDir})
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		outDir, _ := out["out_dir"].(string)
		writeJSON(w, http.StatusOK, map[string]any{
			"pack_path":   filepath.Join(outDir, "pack.json"),
			"readme_path": filepath.Join(outDir, "README.md"),
			"assets":      out["assets_found"],
		})
	}
}

// --- shared helpers ---

func csvSplit(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	sort.Strings(out) // stable, deterministic order for IN-list construction
	return out
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// splitAction recognizes the "{name}:verb" path-segment convention
// (e.g. "mysource:test"), since Go's ServeMux wildcards match a whole
// segment and cannot express a literal suffix within one.
func splitAction(segment, verb string) (name, action string, ok bool) {
	suffix := ":" + verb
	if !strings.HasSuffix(segment, suffix) {
		return "", "", false
	}
	return strings.TrimSuffix(segment, suffix), verb, true
}

func filtersFromViewQuery(q map[string]any) (query.Filters, bool) {
	return jobs.FiltersFromView(q)
}
