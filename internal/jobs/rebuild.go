package jobs

import (
	"context"
	"fmt"

	"github.com/ops-brain/opsd/internal/canon"
	"github.com/ops-brain/opsd/internal/canonlog"
	"github.com/ops-brain/opsd/internal/event"
	"github.com/ops-brain/opsd/internal/index"
)

// IndexRebuild replays the canonical log against the index, the
// recovery path for the consistency hinge: the log is source of truth,
// the index is regenerable from it.
type IndexRebuild struct {
	env *Env
}

func (j *IndexRebuild) Run(ctx context.Context, config map[string]any) (Output, error) {
	wipe := boolConfig(config, "wipe", false)
	rebuildFTS := boolConfig(config, "fts", false)

	if wipe {
		if err := index.Wipe(j.env.Store.Raw()); err != nil {
			return nil, err
		}
	}

	reader := canonlog.NewReader(j.env.LogPath)
	events, parseErrors, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read canonical log: %w", err)
	}

	var processed, inserted, skipped int
	for _, ev := range events {
		processed++
		_, found, err := j.env.Store.GetEventByID(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		if found {
			skipped++
			continue
		}

		backfillDedupeKey(ev)

		if err := j.env.Store.InsertEvent(ctx, ev); err != nil {
			return nil, fmt.Errorf("insert event %s during rebuild: %w", ev.ID, err)
		}
		inserted++
	}

	if rebuildFTS {
		if _, err := j.env.Store.Raw().ExecContext(ctx, `INSERT INTO events_fts(events_fts) VALUES('rebuild')`); err != nil {
			return nil, fmt.Errorf("rebuild fts index: %w", err)
		}
	}

	return Output{
		"processed":    processed,
		"inserted":     inserted,
		"skipped":      skipped,
		"parse_errors": parseErrors,
	}, nil
}

// backfillDedupeKey recomputes a chat.message event's dedupe_key when a
// log line predates that field, using the same derivation the pipeline
// uses for fresh ingests.
func backfillDedupeKey(ev *event.Event) {
	if ev.DedupeKey != nil || ev.Type != "chat.message" {
		return
	}
	idx, ok := refIdx(ev.Refs)
	if !ok {
		return
	}
	content, ok := ev.Payload["content"].(string)
	if !ok {
		content = ev.Text
	}
	key := canon.DedupeKey(ev.Source.Kind, ev.Source.Locator, idx, content)
	ev.DedupeKey = &key
}

func refIdx(refs []event.Ref) (int, bool) {
	if len(refs) == 0 || refs[0].Span == nil || refs[0].Span.Idx == nil {
		return 0, false
	}
	return *refs[0].Span.Idx, true
}
