package query

import (
	"context"

	"github.com/ops-brain/opsd/internal/index"
)

// BuiltinViews are ensured to exist at daemon start, each with empty
// filters and desc order.
var BuiltinViews = []string{"timeline", "tag_timeline"}

// EnsureBuiltinViews creates any of BuiltinViews that do not already
// exist, leaving existing definitions (including user edits) alone.
func EnsureBuiltinViews(ctx context.Context, store *index.Store, nowISO string) error {
	for _, name := range BuiltinViews {
		_, found, err := store.GetView(ctx, name)
		if err != nil {
			return err
		}
		if found {
			continue
		}
		err = store.UpsertView(ctx, index.View{
			Name:        name,
			Description: "built-in view",
			Query: map[string]any{
				"kind":    "events_query",
				"filters": map[string]any{},
				"order":   "desc",
			},
			CreatedAt: nowISO,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
