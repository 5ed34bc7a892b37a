package jobs

import "github.com/ops-brain/opsd/internal/query"

// FiltersFromView extracts the Filters and desc-order flag a saved
// view's Query map encodes, the shape EnsureBuiltinViews and the view
// CRUD handlers produce: {"kind":"events_query","filters":{...},"order":"desc"|"asc"}.
func FiltersFromView(q map[string]any) (query.Filters, bool) {
	return filtersFromView(q)
}

func filtersFromView(q map[string]any) (query.Filters, bool) {
	var f query.Filters
	desc := true

	raw, _ := q["filters"].(map[string]any)
	if raw != nil {
		f.Types = anySliceToStrings(raw["type"])
		f.Tags = anySliceToStrings(raw["tag"])
		if s, ok := raw["after"].(string); ok {
			f.After = s
		}
		if s, ok := raw["before"].(string); ok {
			f.Before = s
		}
	}
	if order, ok := q["order"].(string); ok {
		desc = order != "asc"
	}
	return f, desc
}

func anySliceToStrings(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
