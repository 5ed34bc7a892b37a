// Package event defines the single first-class entity of the store.
package event

// Source identifies where an event came from.
type Source struct {
	Kind    string         `json:"kind"`
	Locator string         `json:"locator"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Span locates a record inside its source; Idx addresses a record by
// position for chat-kind adapters.
type Span struct {
	Idx *int `json:"idx,omitempty"`
}

// Ref points at supporting material for an event.
type Ref struct {
	Kind        string `json:"kind"`
	URI         string `json:"uri"`
	Span        *Span  `json:"span,omitempty"`
	DigestAlgo  string `json:"digest_algo,omitempty"`
	DigestValue string `json:"digest_value,omitempty"`
}

// Hash is the content hash of an event's core over all fields except
// id, hash, dedupe_key, and created_at.
type Hash struct {
	Algo  string `json:"algo"`
	Value string `json:"value"`
}

// Draft is the input to the pipeline: every Event field except id,
// hash, dedupe_key, and created_at.
type Draft struct {
	SchemaVersion string         `json:"schema_version"`
	TS            string         `json:"ts"`
	Type          string         `json:"type"`
	Tags          []string       `json:"tags,omitempty"`
	Text          string         `json:"text"`
	Payload       map[string]any `json:"payload"`
	Source        Source         `json:"source"`
	Refs          []Ref          `json:"refs"`

	// DedupeKey lets a caller (e.g. the rebuild path replaying a legacy
	// log line) supply a dedupe key directly instead of deriving one.
	DedupeKey *string `json:"dedupe_key,omitempty"`
}

// Event is the complete, persisted record: a Draft plus the fields the
// pipeline assigns.
type Event struct {
	SchemaVersion string         `json:"schema_version"`
	ID            string         `json:"id"`
	TS            string         `json:"ts"`
	Type          string         `json:"type"`
	Tags          []string       `json:"tags,omitempty"`
	Text          string         `json:"text"`
	Payload       map[string]any `json:"payload"`
	Source        Source         `json:"source"`
	Refs          []Ref          `json:"refs"`
	Hash          Hash           `json:"hash"`
	DedupeKey     *string        `json:"dedupe_key,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

// Core returns the canonicalizable representation of the event's core:
// every field except id, hash, dedupe_key, and created_at. Numbers pass through
// Draft.Payload verbatim (callers must decode with json.Number to keep
// hashing stable across int/float boundaries).
func (e Event) Core() map[string]any {
	return coreOf(e.SchemaVersion, e.TS, e.Type, e.Tags, e.Text, e.Payload, e.Source, e.Refs)
}

// Core returns the canonicalizable core of a draft, using the same
// field set as Event.Core so that hashing a draft and hashing the
// resulting event agree.
func (d Draft) Core() map[string]any {
	return coreOf(d.SchemaVersion, d.TS, d.Type, d.Tags, d.Text, d.Payload, d.Source, d.Refs)
}

func coreOf(schemaVersion, ts, typ string, tags []string, text string, payload map[string]any, source Source, refs []Ref) map[string]any {
	tagsAny := make([]any, len(tags))
	for i, t := range tags {
		tagsAny[i] = t
	}
	refsAny := make([]any, len(refs))
	for i, r := range refs {
		m := map[string]any{"kind": r.Kind, "uri": r.URI}
		if r.Span != nil {
			span := map[string]any{}
			if r.Span.Idx != nil {
				span["idx"] = *r.Span.Idx
			}
			m["span"] = span
		}
		if r.DigestAlgo != "" {
			m["digest_algo"] = r.DigestAlgo
		}
		if r.DigestValue != "" {
			m["digest_value"] = r.DigestValue
		}
		refsAny[i] = m
	}
	src := map[string]any{"kind": source.Kind, "locator": source.Locator}
	if source.Meta != nil {
		src["meta"] = source.Meta
	}
	payloadAny := map[string]any{}
	for k, v := range payload {
		payloadAny[k] = v
	}
	return map[string]any{
		"schema_version": schemaVersion,
		"ts":             ts,
		"type":           typ,
		"tags":           tagsAny,
		"text":           text,
		"payload":        payloadAny,
		"source":         src,
		"refs":           refsAny,
	}
}

// DedupeIdx extracts the idx span from the first ref, if present, for
// dedupe-key derivation of chat-kind drafts.
func (d Draft) DedupeIdx() (int, bool) {
	if len(d.Refs) == 0 || d.Refs[0].Span == nil || d.Refs[0].Span.Idx == nil {
		return 0, false
	}
	return *d.Refs[0].Span.Idx, true
}

// DedupeContent resolves the text used to derive a dedupe key: the
// payload's "content" field if present as a string, else Text.
func (d Draft) DedupeContent() string {
	if v, ok := d.Payload["content"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return d.Text
}
