// Package chatjson adapts chat-export files into event drafts. Two
// encodings are accepted: a JSON array of message objects, or
// newline-delimited JSON objects.
package chatjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/ops-brain/opsd/internal/opserr"
)

// Message is one chat record as read from the source file.
type Message struct {
	TS       string `json:"ts,omitempty"`
	Speaker  string `json:"speaker,omitempty"`
	Content  string `json:"content"`
	ThreadID string `json:"thread_id,omitempty"`
}

// Indexed pairs a Message with its position in the source file, the
// unit the adapter yields in file order.
type Indexed struct {
	Idx     int
	Message Message
}

// ReadFile parses path as either a JSON array or newline-delimited
// JSON, returning records in file order.
func ReadFile(path string) ([]Indexed, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304 - path supplied by CLI/adapter config
	if err != nil {
		return nil, opserr.AdapterWrap(err, "read chat-json source %s", path)
	}
	return Parse(data, path)
}

// Parse decodes data (from sourcePath, used only for error context) as
// either a JSON array or newline-delimited JSON.
func Parse(data []byte, sourcePath string) ([]Indexed, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var messages []Message
		if err := json.Unmarshal(trimmed, &messages); err != nil {
			return nil, opserr.Adapter("parse chat-json array in %s: %v", sourcePath, err)
		}
		out := make([]Indexed, len(messages))
		for i, m := range messages {
			if m.Content == "" {
				return nil, opserr.Adapter("chat-json record %d in %s missing required field content", i, sourcePath)
			}
			out[i] = Indexed{Idx: i, Message: m}
		}
		return out, nil
	}

	var out []Indexed
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	idx := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var m Message
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			return nil, opserr.Adapter("parse chat-json line %d in %s: %v", idx, sourcePath, err)
		}
		if m.Content == "" {
			return nil, opserr.Adapter("chat-json record %d in %s missing required field content", idx, sourcePath)
		}
		out = append(out, Indexed{Idx: idx, Message: m})
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, opserr.AdapterWrap(err, "scan chat-json source %s", sourcePath)
	}
	return out, nil
}

// Name is the adapter's identity for dedupe-key and source-kind
// purposes.
const Name = "chat_json_file"
