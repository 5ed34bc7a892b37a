package index

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ops-brain/opsd/internal/event"
	"github.com/ops-brain/opsd/internal/opserr"
)

// SummaryRow is a lightweight projection of an event for list views.
type SummaryRow struct {
	ID      string      `json:"id"`
	TS      string      `json:"ts"`
	Type    string      `json:"type"`
	Tags    []string    `json:"tags,omitempty"`
	Snippet string      `json:"snippet"`
	Refs    []event.Ref `json:"refs,omitempty"`
}

// QueryOptions parameterizes ListSummaries.
type QueryOptions struct {
	Types      []string
	Tags       []string
	After      string
	Before     string
	Text       string // FTS MATCH query; empty means no text filter
	TextLike   string // fallback LIKE pattern, used when Text yields nothing or FTS is disabled
	Limit      int
	Desc       bool
	SnippetLen int
}

// ListSummaries runs the composed filter and returns summary rows.
// When opts.Text is set it queries through events_fts; callers decide
// whether to fall back to TextLike if this returns zero rows.
func (s *Store) ListSummaries(ctx context.Context, opts QueryOptions) ([]SummaryRow, error) {
	query, args := buildSummaryQuery(opts, opts.Text != "")
	return s.runSummaryQuery(ctx, query, args, opts.SnippetLen)
}

// ListSummariesLike is the LIKE-based fallback/offline-search path.
func (s *Store) ListSummariesLike(ctx context.Context, opts QueryOptions) ([]SummaryRow, error) {
	query, args := buildSummaryQuery(opts, false)
	return s.runSummaryQuery(ctx, query, args, opts.SnippetLen)
}

func (s *Store) runSummaryQuery(ctx context.Context, query string, args []any, snippetLen int) ([]SummaryRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, opserr.DatabaseWrap(err, "query events")
	}

	var ids []string
	var out []SummaryRow
	for rows.Next() {
		var id, ts, typ, tagsJSON, text string
		if err := rows.Scan(&id, &ts, &typ, &tagsJSON, &text); err != nil {
			_ = rows.Close()
			return nil, opserr.DatabaseWrap(err, "scan event summary")
		}
		var tags []string
		if tagsJSON != "" {
			if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
				_ = rows.Close()
				return nil, opserr.DatabaseWrap(err, "unmarshal tags")
			}
		}
		snippet := text
		if snippetLen > 0 && len(snippet) > snippetLen {
			snippet = snippet[:snippetLen]
		}
		ids = append(ids, id)
		out = append(out, SummaryRow{ID: id, TS: ts, Type: typ, Tags: tags, Snippet: snippet})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	// Per spec, summary rows carry refs too: one lookup per row, same
	// N+1 pattern GetEventByID/ListEventsFiltered already use.
	for i, id := range ids {
		refs, err := s.getRefs(ctx, id)
		if err != nil {
			return nil, err
		}
		out[i].Refs = refs
	}
	return out, nil
}

// ListEventsFiltered returns full events (with refs) matching opts,
// used by jobs that need payload/refs rather than a text snippet (e.g.
// artifact_pack assembling a pack from tagged events) and by the
// query engine's format=full path. Queries events_fts when opts.Text
// is set, mirroring ListSummaries.
func (s *Store) ListEventsFiltered(ctx context.Context, opts QueryOptions) ([]*event.Event, error) {
	return s.listEventsFiltered(ctx, opts, opts.Text != "")
}

// ListEventsFilteredLike is the LIKE-based fallback/offline-search path
// for format=full, mirroring ListSummariesLike.
func (s *Store) ListEventsFilteredLike(ctx context.Context, opts QueryOptions) ([]*event.Event, error) {
	return s.listEventsFiltered(ctx, opts, false)
}

func (s *Store) listEventsFiltered(ctx context.Context, opts QueryOptions, useFTS bool) ([]*event.Event, error) {
	query, args := buildIDQuery(opts, useFTS)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, opserr.DatabaseWrap(err, "query event ids")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, opserr.DatabaseWrap(err, "scan event id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	out := make([]*event.Event, 0, len(ids))
	for _, id := range ids {
		ev, found, err := s.GetEventByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, ev)
		}
	}
	return out, nil
}

func buildIDQuery(opts QueryOptions, useFTS bool) (string, []any) {
	query, args := buildSummaryQuery(opts, useFTS)
	query = strings.Replace(query, "SELECT e.id, e.ts, e.type, e.tags_json, e.text FROM events e", "SELECT e.id FROM events e", 1)
	return query, args
}

func buildSummaryQuery(opts QueryOptions, useFTS bool) (string, []any) {
	var args []any
	base := `SELECT e.id, e.ts, e.type, e.tags_json, e.text FROM events e`
	if useFTS {
		base += ` JOIN events_fts f ON f.rowid = e.rowid`
	}

	var where []string
	if useFTS {
		where = append(where, "events_fts MATCH ?")
		args = append(args, opts.Text)
	} else if opts.TextLike != "" {
		where = append(where, "e.text LIKE ?")
		args = append(args, "%"+opts.TextLike+"%")
	}
	if len(opts.Types) > 0 {
		placeholders := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		where = append(where, "e.type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(opts.Tags) > 0 {
		var tagClauses []string
		for _, tag := range opts.Tags {
			tagClauses = append(tagClauses, "e.tags_json LIKE ?")
			args = append(args, "%\""+tag+"\"%")
		}
		where = append(where, "("+strings.Join(tagClauses, " OR ")+")")
	}
	if opts.After != "" {
		where = append(where, "e.ts >= ?")
		args = append(args, opts.After)
	}
	if opts.Before != "" {
		where = append(where, "e.ts <= ?")
		args = append(args, opts.Before)
	}

	query := base
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	order := "DESC"
	if !opts.Desc {
		order = "ASC"
	}
	query += " ORDER BY e.ts " + order
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	return query, args
}
