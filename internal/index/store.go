package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ops-brain/opsd/internal/event"
	"github.com/ops-brain/opsd/internal/index/safedb"
	"github.com/ops-brain/opsd/internal/opserr"
)

// Store is the index's CRUD surface, scoped to a context-aware
// connection so every call carries the caller's deadline.
type Store struct {
	db *safedb.DB
}

// NewStore wraps an opened *sql.DB for use by the pipeline, query
// engine, and job engine.
func NewStore(db *sql.DB) *Store {
	return &Store{db: safedb.New(db)}
}

// Raw exposes the underlying *sql.DB for schema init/rebuild only.
func (s *Store) Raw() *sql.DB { return s.db.Raw() }

// InsertResult reports whether an insert happened or was skipped
// because the dedupe key already existed.
type InsertResult struct {
	Inserted   bool
	ExistingID string
}

// HasDedupeKey reports whether key is already recorded, returning the
// event id it belongs to if so.
func (s *Store) HasDedupeKey(ctx context.Context, key string) (eventID string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT event_id FROM dedupe WHERE dedupe_key = ?`, key).Scan(&eventID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, opserr.DatabaseWrap(err, "lookup dedupe key")
	}
	return eventID, true, nil
}

// InsertEvent writes ev, its refs, and (if non-nil) its dedupe row in a
// single transaction.
func (s *Store) InsertEvent(ctx context.Context, ev *event.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return opserr.DatabaseWrap(err, "begin insert transaction")
	}
	defer func() { _ = tx.Rollback() }()

	tagsJSON, err := json.Marshal(orEmptySlice(ev.Tags))
	if err != nil {
		return opserr.DatabaseWrap(err, "marshal tags")
	}
	payloadJSON, err := json.Marshal(orEmptyMap(ev.Payload))
	if err != nil {
		return opserr.DatabaseWrap(err, "marshal payload")
	}
	sourceMetaJSON, err := json.Marshal(orEmptyMap(ev.Source.Meta))
	if err != nil {
		return opserr.DatabaseWrap(err, "marshal source meta")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (
			id, schema_version, ts, type, tags_json, text, payload_json,
			source_kind, source_locator, source_meta_json,
			hash_algo, hash_value, dedupe_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SchemaVersion, ev.TS, ev.Type, string(tagsJSON), ev.Text, string(payloadJSON),
		ev.Source.Kind, ev.Source.Locator, string(sourceMetaJSON),
		ev.Hash.Algo, ev.Hash.Value, nullableString(ev.DedupeKey), ev.CreatedAt,
	)
	if err != nil {
		return opserr.DatabaseWrap(err, "insert event %s", ev.ID)
	}

	for _, ref := range ev.Refs {
		spanJSON, err := json.Marshal(spanOf(ref))
		if err != nil {
			return opserr.DatabaseWrap(err, "marshal ref span")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO refs (event_id, ref_kind, uri, span_json, digest_algo, digest_value)
			VALUES (?, ?, ?, ?, ?, ?)`,
			ev.ID, ref.Kind, ref.URI, string(spanJSON), nullableEmptyString(ref.DigestAlgo), nullableEmptyString(ref.DigestValue),
		)
		if err != nil {
			return opserr.DatabaseWrap(err, "insert ref for event %s", ev.ID)
		}
	}

	if ev.DedupeKey != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO dedupe (dedupe_key, event_id, first_seen_ts) VALUES (?, ?, ?)`,
			*ev.DedupeKey, ev.ID, ev.TS,
		)
		if err != nil {
			return opserr.DatabaseWrap(err, "insert dedupe row for event %s", ev.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return opserr.DatabaseWrap(err, "commit insert transaction")
	}
	return nil
}

// eventRow mirrors the events table's columns for scanning.
type eventRow struct {
	rowid          int64
	id             string
	schemaVersion  string
	ts             string
	typ            string
	tagsJSON       string
	text           string
	payloadJSON    string
	sourceKind     string
	sourceLocator  string
	sourceMetaJSON string
	hashAlgo       string
	hashValue      string
	dedupeKey      sql.NullString
	createdAt      string
}

func scanEventRow(scanner interface {
	Scan(dest ...any) error
}) (*eventRow, error) {
	var r eventRow
	err := scanner.Scan(
		&r.rowid, &r.id, &r.schemaVersion, &r.ts, &r.typ, &r.tagsJSON, &r.text, &r.payloadJSON,
		&r.sourceKind, &r.sourceLocator, &r.sourceMetaJSON, &r.hashAlgo, &r.hashValue, &r.dedupeKey, &r.createdAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *eventRow) toEvent() (*event.Event, error) {
	var tags []string
	if err := json.Unmarshal([]byte(r.tagsJSON), &tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags for event %s: %w", r.id, err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(r.payloadJSON), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload for event %s: %w", r.id, err)
	}
	var sourceMeta map[string]any
	if err := json.Unmarshal([]byte(r.sourceMetaJSON), &sourceMeta); err != nil {
		return nil, fmt.Errorf("unmarshal source meta for event %s: %w", r.id, err)
	}
	ev := &event.Event{
		SchemaVersion: r.schemaVersion,
		ID:            r.id,
		TS:            r.ts,
		Type:          r.typ,
		Tags:          tags,
		Text:          r.text,
		Payload:       payload,
		Source:        event.Source{Kind: r.sourceKind, Locator: r.sourceLocator, Meta: sourceMeta},
		Hash:          event.Hash{Algo: r.hashAlgo, Value: r.hashValue},
		CreatedAt:     r.createdAt,
	}
	if r.dedupeKey.Valid {
		v := r.dedupeKey.String
		ev.DedupeKey = &v
	}
	return ev, nil
}

const eventColumns = `rowid, id, schema_version, ts, type, tags_json, text, payload_json,
		source_kind, source_locator, source_meta_json, hash_algo, hash_value, dedupe_key, created_at`

// GetEventByID fetches a single event with its refs, or (nil, false) if
// it does not exist.
func (s *Store) GetEventByID(ctx context.Context, id string) (*event.Event, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	r, err := scanEventRow(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, opserr.DatabaseWrap(err, "get event %s", id)
	}
	ev, err := r.toEvent()
	if err != nil {
		return nil, false, opserr.DatabaseWrap(err, "decode event %s", id)
	}
	refs, err := s.getRefs(ctx, id)
	if err != nil {
		return nil, false, err
	}
	ev.Refs = refs
	return ev, true, nil
}

func (s *Store) getRefs(ctx context.Context, eventID string) ([]event.Ref, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ref_kind, uri, span_json, digest_algo, digest_value
		FROM refs WHERE event_id = ? ORDER BY id ASC`, eventID)
	if err != nil {
		return nil, opserr.DatabaseWrap(err, "query refs for event %s", eventID)
	}
	defer func() { _ = rows.Close() }()

	var refs []event.Ref
	for rows.Next() {
		var kind, uri, spanJSON string
		var digestAlgo, digestValue sql.NullString
		if err := rows.Scan(&kind, &uri, &spanJSON, &digestAlgo, &digestValue); err != nil {
			return nil, opserr.DatabaseWrap(err, "scan ref for event %s", eventID)
		}
		ref := event.Ref{Kind: kind, URI: uri, DigestAlgo: digestAlgo.String, DigestValue: digestValue.String}
		var span struct {
			Idx *int `json:"idx"`
		}
		if spanJSON != "" && spanJSON != "{}" {
			if err := json.Unmarshal([]byte(spanJSON), &span); err != nil {
				return nil, fmt.Errorf("unmarshal span for event %s: %w", eventID, err)
			}
			ref.Span = &event.Span{Idx: span.Idx}
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// CountEvents returns the total row count in events, used by
// rebuild-consistency checks.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	return s.countTable(ctx, "events")
}

// CountDedupe returns the total row count in dedupe.
func (s *Store) CountDedupe(ctx context.Context) (int, error) {
	return s.countTable(ctx, "dedupe")
}

func (s *Store) countTable(ctx context.Context, table string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n) //nolint:gosec // table is one of a fixed internal set, never user input
	if err != nil {
		return 0, opserr.DatabaseWrap(err, "count %s", table)
	}
	return n, nil
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableEmptyString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func spanOf(ref event.Ref) map[string]any {
	m := map[string]any{}
	if ref.Span != nil && ref.Span.Idx != nil {
		m["idx"] = *ref.Span.Idx
	}
	return m
}
