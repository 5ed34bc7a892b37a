// Package canon implements canonical JSON hashing and dedupe-key
// derivation for events.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Hash computes the SHA-256 hex digest of the canonical JSON encoding of
// core. Canonical encoding sorts object keys recursively by Unicode
// codepoint, preserves array order, uses minimal separators, and never
// escapes non-ASCII UTF-8.
func Hash(core any) (algo, value string, err error) {
	data, err := Canonicalize(core)
	if err != nil {
		return "", "", err
	}
	sum := sha256.Sum256(data)
	return "sha256", hex.EncodeToString(sum[:]), nil
}

// Canonicalize converts a JSON-compatible value into its canonical byte
// encoding: sorted object keys, no insignificant whitespace, UTF-8
// preserved rather than \u-escaped.
func Canonicalize(v any) ([]byte, error) {
	return canonicalizeValue(v)
}

func canonicalizeValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case string:
		return marshalNoEscape(val)
	case json.Number:
		return []byte(val.String()), nil
	case float64, int, int64:
		return marshalNoEscape(val)
	case []any:
		return canonicalizeArray(val)
	case map[string]any:
		return canonicalizeObject(val)
	default:
		return nil, fmt.Errorf("canon: unsupported type %T", v)
	}
}

func canonicalizeArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := canonicalizeValue(elem)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func canonicalizeObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalNoEscape(key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := canonicalizeValue(obj[key])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalNoEscape JSON-encodes v without HTML-escaping and without a
// trailing newline, the way json.Marshal would but with SetEscapeHTML(false).
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

var trailingSpaceTabRe = regexp.MustCompile(`[ \t]+$`)
var runsOfSpaceTabRe = regexp.MustCompile(`[ \t]+`)

// NormalizeText canonicalizes line endings and trailing/runs of
// horizontal whitespace so that cosmetically different copies of the
// same message hash identically.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = trailingSpaceTabRe.ReplaceAllString(line, "")
	}
	joined := strings.Join(lines, "\n")
	return runsOfSpaceTabRe.ReplaceAllString(joined, " ")
}

// DedupeKey computes the SHA-256 hex fingerprint of a chat record, used
// to suppress re-ingestion of the same source material.
func DedupeKey(adapter, locator string, idx int, content string) string {
	material := fmt.Sprintf("%s|%s|idx:%d|%s", adapter, locator, idx, NormalizeText(content))
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}
