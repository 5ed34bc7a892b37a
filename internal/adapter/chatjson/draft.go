package chatjson

import (
	"github.com/ops-brain/opsd/internal/canon"
	"github.com/ops-brain/opsd/internal/event"
)

// ToDrafts converts adapter records into event drafts of type
// chat.message, tagging every draft with tags (deduplicated by the
// pipeline) and stamping ts/schema_version/source for each.
func ToDrafts(records []Indexed, locator, schemaVersion, fallbackTS string, tags []string) []event.Draft {
	drafts := make([]event.Draft, len(records))
	for i, rec := range records {
		idx := rec.Idx
		ts := rec.Message.TS
		if ts == "" {
			ts = fallbackTS
		}
		payload := map[string]any{"content": rec.Message.Content}
		if rec.Message.Speaker != "" {
			payload["speaker"] = rec.Message.Speaker
		}
		if rec.Message.ThreadID != "" {
			payload["thread_id"] = rec.Message.ThreadID
		}
		drafts[i] = event.Draft{
			SchemaVersion: schemaVersion,
			TS:            ts,
			Type:          "chat.message",
			Tags:          tags,
			Text:          canon.NormalizeText(rec.Message.Content),
			Payload:       payload,
			Source:        event.Source{Kind: Name, Locator: locator},
			Refs: []event.Ref{{
				Kind: "chat_record",
				URI:  locator,
				Span: &event.Span{Idx: &idx},
			}},
		}
	}
	return drafts
}
