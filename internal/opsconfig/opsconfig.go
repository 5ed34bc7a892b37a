// Package opsconfig loads and writes the workspace's ops.yml: a small
// indentation-based map of scalars, with no lists or inline
// collections. The parser is a trimmed variant of the pack's
// indent-stack YAML-subset parser, scoped down to exactly what this
// config needs.
package opsconfig

import (
	"os"
	"strconv"
	"strings"

	"github.com/ops-brain/opsd/internal/opserr"
)

// Config is the fully resolved workspace configuration.
type Config struct {
	Workspace        string
	Timezone         string
	DefaultRedaction bool
	FTSEnabled       bool
	MaxSnippetLen    int
}

// DefaultText is written by `ops init` when no config exists yet.
const DefaultText = `workspace: "./data"
timezone: "Asia/Tokyo"
privacy:
  default_redaction: false
index:
  fts: true
  max_snippet_len: 160
`

// WriteDefault writes DefaultText to path, failing if the file already
// exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return opserr.Config("config file already exists: %s", path)
	}
	if err := os.WriteFile(path, []byte(DefaultText), 0600); err != nil {
		return opserr.ConfigWrap(err, "write default config %s", path)
	}
	return nil
}

// Load reads and parses the ops.yml at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304 - path supplied by CLI flag/workspace resolution
	if err != nil {
		if os.IsNotExist(err) {
			return nil, opserr.Config("config file not found: %s", path)
		}
		return nil, opserr.ConfigWrap(err, "read config %s", path)
	}

	root, err := parse(string(data))
	if err != nil {
		return nil, err
	}

	workspace, ok := root["workspace"].(string)
	if !ok || workspace == "" {
		return nil, opserr.Config("config missing required field: workspace")
	}
	timezone, ok := root["timezone"].(string)
	if !ok || timezone == "" {
		return nil, opserr.Config("config missing required field: timezone")
	}

	defaultRedaction := false
	if privacy, ok := root["privacy"].(map[string]any); ok {
		if v, ok := privacy["default_redaction"].(bool); ok {
			defaultRedaction = v
		}
	}

	ftsEnabled := true
	maxSnippetLen := 160
	if index, ok := root["index"].(map[string]any); ok {
		if v, ok := index["fts"].(bool); ok {
			ftsEnabled = v
		}
		if v, ok := index["max_snippet_len"].(int); ok {
			maxSnippetLen = v
		}
	}

	return &Config{
		Workspace:        workspace,
		Timezone:         timezone,
		DefaultRedaction: defaultRedaction,
		FTSEnabled:       ftsEnabled,
		MaxSnippetLen:    maxSnippetLen,
	}, nil
}

// parse turns ops.yml text into a tree of map[string]any / scalar
// leaves, using two-space indentation to track nesting. It supports
// exactly the shape ops.yml needs: no lists, no inline collections.
func parse(text string) (map[string]any, error) {
	root := map[string]any{}
	type frame struct {
		indent int
		m      map[string]any
	}
	stack := []frame{{indent: -1, m: root}}

	for lineNo, raw := range strings.Split(text, "\n") {
		line := stripComment(raw)
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := countIndent(line)
		key, value, ok := splitKeyValue(strings.TrimSpace(line))
		if !ok {
			return nil, opserr.Config("invalid config line %d: %q", lineNo+1, raw)
		}

		for len(stack) > 1 && indent <= stack[len(stack)-1].indent {
			stack = stack[:len(stack)-1]
		}
		current := stack[len(stack)-1].m

		if strings.TrimSpace(value) == "" {
			nested := map[string]any{}
			current[key] = nested
			stack = append(stack, frame{indent: indent, m: nested})
			continue
		}
		current[key] = parseScalar(value)
	}
	return root, nil
}

func stripComment(line string) string {
	inQuotes := false
	for i, r := range line {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case '#':
			if !inQuotes {
				return line[:i]
			}
		}
	}
	return line
}

func countIndent(line string) int {
	n := 0
	for _, r := range line {
		if r != ' ' {
			break
		}
		n++
	}
	return n
}

func splitKeyValue(s string) (key, value string, ok bool) {
	idx := strings.Index(s, ":")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:idx]), s[idx+1:], true
}

func parseScalar(raw string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	if strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) && len(v) >= 2 {
		return v[1 : len(v)-1]
	}
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return v
}
