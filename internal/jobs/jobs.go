// Package jobs implements the named, kind-dispatched background jobs
// that operate on the index and canonical log: daily_digest,
// artifact_pack, and index_rebuild.
package jobs

import (
	"context"
	"fmt"

	"github.com/ops-brain/opsd/internal/canonlog"
	"github.com/ops-brain/opsd/internal/index"
	"github.com/ops-brain/opsd/internal/pipeline"
	"github.com/ops-brain/opsd/internal/query"
)

// Output is what a Runner reports back for a job_runs row's output_json.
type Output map[string]any

// Runner executes one job kind against the shared store/log/engine.
type Runner interface {
	Run(ctx context.Context, config map[string]any) (Output, error)
}

// Env bundles the collaborators every job kind needs: the index store
// for reads/writes, the canonical log for rebuild replay, the query
// engine for view-backed searches, the pipeline for re-inserting
// rebuilt events, the workspace root for resolving out_dir, and the
// workspace timezone for day-boundary arithmetic.
type Env struct {
	Store     *index.Store
	Log       *canonlog.Writer
	LogPath   string
	Engine    *query.Engine
	Pipeline  *pipeline.Pipeline
	Workspace string
	Timezone  string
}

// Registry maps a job kind string to the Runner that handles it,
// mirroring the teacher's dispatch-by-string-kind pattern for routing
// MCP tool calls to handlers.
type Registry struct {
	runners map[string]Runner
}

// NewRegistry builds the standard registry: daily_digest, artifact_pack,
// and index_rebuild, wired against env.
func NewRegistry(env *Env) *Registry {
	return &Registry{runners: map[string]Runner{
		"daily_digest":  &DailyDigest{env: env},
		"artifact_pack": &ArtifactPack{env: env},
		"index_rebuild": &IndexRebuild{env: env},
	}}
}

// Run dispatches to the runner registered for kind.
func (r *Registry) Run(ctx context.Context, kind string, config map[string]any) (Output, error) {
	runner, ok := r.runners[kind]
	if !ok {
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
	return runner.Run(ctx, config)
}

// Kinds lists the registered job kinds, for validation at job-create
// time.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.runners))
	for k := range r.runners {
		kinds = append(kinds, k)
	}
	return kinds
}

func stringConfig(config map[string]any, key string) (string, bool) {
	v, ok := config[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func boolConfig(config map[string]any, key string, def bool) bool {
	v, ok := config[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func stringSliceConfig(config map[string]any, key string) []string {
	v, ok := config[key]
	if !ok {
		return nil
	}
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
