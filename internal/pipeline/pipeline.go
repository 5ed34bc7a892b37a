// Package pipeline implements the per-draft ingest algorithm: validate,
// dedupe, hash, append to the canonical log, then index.
package pipeline

import (
	"context"
	"fmt"

	"github.com/ops-brain/opsd/internal/canon"
	"github.com/ops-brain/opsd/internal/canonlog"
	"github.com/ops-brain/opsd/internal/event"
	"github.com/ops-brain/opsd/internal/id"
	"github.com/ops-brain/opsd/internal/index"
)

// Status is the per-draft outcome of a batch ingest.
type Status string

const (
	StatusInserted Status = "inserted"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Result is the outcome of processing a single draft.
type Result struct {
	Status     Status
	EventID    string
	ExistingID string
	Error      string
}

// Options configures a batch ingest.
type Options struct {
	// Adapter names the source adapter used for dedupe-key derivation
	// (e.g. "chat_json_file") of chat-message drafts. When empty, the
	// draft's source kind is used instead.
	Adapter string
	// Dedupe enables the insert-time dedupe-table lookup that suppresses
	// previously-seen drafts. Dedupe-key computation itself is
	// unconditional for chat-kind drafts (schema invariant); this flag
	// only controls whether a match against that key is looked up.
	Dedupe bool
	// DryRun runs validation, dedupe lookup, and hashing but skips the
	// log append and index insert; statuses report what *would* happen.
	DryRun bool
	// NowISO supplies created_at for newly inserted events.
	NowISO string
}

// Pipeline wires together the canonical log and index store used by
// Ingest. Callers are expected to hold the appropriate write lock
// (daemon-wide mutex or cross-process advisory lock) for the duration
// of a batch; Ingest itself does not lock.
type Pipeline struct {
	log   *canonlog.Writer
	store *index.Store
}

// New builds a Pipeline over an already-open canonical log writer and
// index store.
func New(log *canonlog.Writer, store *index.Store) *Pipeline {
	return &Pipeline{log: log, store: store}
}

// IngestBatch processes drafts in receive order, one at a time, so that
// canonical-log append order matches insertion order within the batch.
func (p *Pipeline) IngestBatch(ctx context.Context, drafts []event.Draft, opts Options) []Result {
	results := make([]Result, len(drafts))
	for i, draft := range drafts {
		results[i] = p.ingestOne(ctx, draft, opts)
	}
	return results
}

func (p *Pipeline) ingestOne(ctx context.Context, draft event.Draft, opts Options) Result {
	if err := validate(draft); err != nil {
		return Result{Status: StatusFailed, Error: err.Error()}
	}

	dedupeKey, err := resolveDedupeKey(draft, opts)
	if err != nil {
		return Result{Status: StatusFailed, Error: err.Error()}
	}

	if opts.Dedupe && dedupeKey != nil {
		existingID, found, err := p.store.HasDedupeKey(ctx, *dedupeKey)
		if err != nil {
			return Result{Status: StatusFailed, Error: err.Error()}
		}
		if found {
			return Result{Status: StatusSkipped, ExistingID: existingID}
		}
	}

	core := draft.Core()
	algo, value, err := canon.Hash(core)
	if err != nil {
		return Result{Status: StatusFailed, Error: fmt.Sprintf("hash event core: %v", err)}
	}

	ev := &event.Event{
		SchemaVersion: draft.SchemaVersion,
		ID:            id.New(),
		TS:            draft.TS,
		Type:          draft.Type,
		Tags:          dedupeTags(draft.Tags),
		Text:          draft.Text,
		Payload:       draft.Payload,
		Source:        draft.Source,
		Refs:          draft.Refs,
		Hash:          event.Hash{Algo: algo, Value: value},
		DedupeKey:     dedupeKey,
		CreatedAt:     opts.NowISO,
	}

	if opts.DryRun {
		return Result{Status: StatusInserted, EventID: ev.ID}
	}

	if err := p.log.Append(ev); err != nil {
		return Result{Status: StatusFailed, Error: fmt.Sprintf("append canonical log: %v", err)}
	}

	if err := p.store.InsertEvent(ctx, ev); err != nil {
		// The log append already succeeded: the event is durable and
		// will be recovered by index_rebuild. Do not attempt to roll
		// back the log.
		return Result{Status: StatusFailed, Error: fmt.Sprintf("insert index row: %v", err)}
	}

	return Result{Status: StatusInserted, EventID: ev.ID}
}

func resolveDedupeKey(draft event.Draft, opts Options) (*string, error) {
	if draft.DedupeKey != nil {
		return draft.DedupeKey, nil
	}
	if !isChatKind(draft.Type) {
		return nil, nil
	}
	idx, ok := draft.DedupeIdx()
	if !ok {
		return nil, fmt.Errorf("chat-kind draft missing refs[0].span.idx for dedupe key")
	}
	adapter := opts.Adapter
	if adapter == "" {
		adapter = draft.Source.Kind
	}
	key := canon.DedupeKey(adapter, draft.Source.Locator, idx, draft.DedupeContent())
	return &key, nil
}

func isChatKind(eventType string) bool {
	return eventType == "chat.message"
}

func dedupeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func validate(draft event.Draft) error {
	if draft.SchemaVersion == "" {
		return fmt.Errorf("draft missing schema_version")
	}
	if draft.TS == "" {
		return fmt.Errorf("draft missing ts")
	}
	if draft.Type == "" {
		return fmt.Errorf("draft missing type")
	}
	if draft.Source.Kind == "" || draft.Source.Locator == "" {
		return fmt.Errorf("draft source requires both kind and locator")
	}
	if draft.Refs == nil {
		return fmt.Errorf("draft missing refs")
	}
	if draft.Text == "" {
		return fmt.Errorf("draft missing text")
	}
	if draft.Payload == nil {
		return fmt.Errorf("draft missing payload")
	}
	return nil
}
