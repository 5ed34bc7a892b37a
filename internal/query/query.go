// Package query implements the event query engine: filter composition,
// FTS-with-LIKE-fallback search, and saved-view merge semantics.
package query

import (
	"context"

	"github.com/ops-brain/opsd/internal/event"
	"github.com/ops-brain/opsd/internal/index"
)

// Format selects what Run returns: summary rows (the default) or
// reconstructed events with their refs subcollection.
const (
	FormatSummary = "summary"
	FormatFull    = "full"
)

// Filters is a request's (or a view's) query parameters.
type Filters struct {
	Types  []string
	Tags   []string
	After  string
	Before string
}

// Request is the full input to Run: filters plus the free-text query,
// paging, ordering, and output-format controls.
type Request struct {
	Filters
	Q          string
	Limit      int
	Desc       bool
	SnippetLen int
	// Format is FormatSummary (the default, when empty) or FormatFull.
	Format string
}

// Result is Run's output: exactly one of Summaries or Full is
// populated, per the request's Format.
type Result struct {
	Summaries []index.SummaryRow
	Full      []*event.Event
}

// Len reports how many rows/events Result carries, regardless of
// format.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Summaries) + len(r.Full)
}

// Engine runs queries against the index, using LIKE instead of FTS when
// ftsEnabled is false, and falling back to LIKE when FTS yields nothing.
type Engine struct {
	store      *index.Store
	ftsEnabled bool
}

// New builds a query Engine. ftsEnabled mirrors ops.yml's index.fts
// setting.
func New(store *index.Store, ftsEnabled bool) *Engine {
	return &Engine{store: store, ftsEnabled: ftsEnabled}
}

// Run executes req, returning summary rows or full events (per
// req.Format) ordered by ts.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	opts := index.QueryOptions{
		Types:      req.Types,
		Tags:       req.Tags,
		After:      req.After,
		Before:     req.Before,
		Limit:      req.Limit,
		Desc:       req.Desc,
		SnippetLen: req.SnippetLen,
	}
	full := req.Format == FormatFull

	if req.Q == "" {
		return e.fetch(ctx, opts, full)
	}

	if e.ftsEnabled {
		opts.Text = req.Q
		res, err := e.fetch(ctx, opts, full)
		if err != nil {
			return nil, err
		}
		if res.Len() > 0 {
			return res, nil
		}
		// Best-effort fallback: FTS found nothing, try LIKE.
		opts.Text = ""
		opts.TextLike = req.Q
		return e.fetchLike(ctx, opts, full)
	}

	opts.TextLike = req.Q
	return e.fetchLike(ctx, opts, full)
}

func (e *Engine) fetch(ctx context.Context, opts index.QueryOptions, full bool) (*Result, error) {
	if full {
		events, err := e.store.ListEventsFiltered(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &Result{Full: events}, nil
	}
	rows, err := e.store.ListSummaries(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Result{Summaries: rows}, nil
}

func (e *Engine) fetchLike(ctx context.Context, opts index.QueryOptions, full bool) (*Result, error) {
	if full {
		events, err := e.store.ListEventsFilteredLike(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &Result{Full: events}, nil
	}
	rows, err := e.store.ListSummariesLike(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Result{Summaries: rows}, nil
}

// MergeFilters combines a saved view's stored filters with a request's
// filters per the view-merge rule: type intersects (or whichever is
// set), tag is an ordered union deduped by first occurrence (or
// whichever is set), after takes the max, before takes the min.
func MergeFilters(stored, request Filters) Filters {
	return Filters{
		Types:  mergeTypes(stored.Types, request.Types),
		Tags:   mergeTags(stored.Tags, request.Tags),
		After:  maxString(stored.After, request.After),
		Before: minString(stored.Before, request.Before),
	}
}

// MergeOrder picks the request's order if supplied, else the view's.
func MergeOrder(storedDesc *bool, requestDesc *bool) bool {
	if requestDesc != nil {
		return *requestDesc
	}
	if storedDesc != nil {
		return *storedDesc
	}
	return true // default desc
}

func mergeTypes(stored, request []string) []string {
	if len(stored) == 0 {
		return request
	}
	if len(request) == 0 {
		return stored
	}
	storedSet := make(map[string]bool, len(stored))
	for _, t := range stored {
		storedSet[t] = true
	}
	var out []string
	for _, t := range request {
		if storedSet[t] {
			out = append(out, t)
		}
	}
	return out
}

func mergeTags(stored, request []string) []string {
	if len(stored) == 0 {
		return request
	}
	if len(request) == 0 {
		return stored
	}
	seen := make(map[string]bool, len(stored)+len(request))
	var out []string
	for _, t := range stored {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range request {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func maxString(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case a >= b:
		return a
	default:
		return b
	}
}

func minString(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case a <= b:
		return a
	default:
		return b
	}
}
