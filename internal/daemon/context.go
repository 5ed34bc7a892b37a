// Package daemon implements the HTTP server: request routing, the
// process-wide write mutex, and the startup/shutdown lifecycle.
package daemon

import (
	"log/slog"
	"sync"

	"github.com/ops-brain/opsd/internal/canonlog"
	"github.com/ops-brain/opsd/internal/index"
	"github.com/ops-brain/opsd/internal/jobs"
	"github.com/ops-brain/opsd/internal/lock"
	"github.com/ops-brain/opsd/internal/opsconfig"
	"github.com/ops-brain/opsd/internal/pipeline"
	"github.com/ops-brain/opsd/internal/query"
)

// ServerContext bundles every piece of process-wide mutable state a
// handler needs: the write mutex, the instance lock, and the resolved
// config/collaborators. Handlers receive a *ServerContext rather than
// reading package-level globals, mirroring how the teacher's own
// Lifecycle/Server hold their process-wide fields as struct members.
type ServerContext struct {
	Config    *opsconfig.Config
	Workspace string

	Store    *index.Store
	Log      *canonlog.Writer
	LogPath  string
	Engine   *query.Engine
	Pipeline *pipeline.Pipeline
	Jobs     *jobs.Registry

	// WriteMu serializes every handler that mutates the canonical log or
	// index. Readers never take it.
	WriteMu sync.Mutex

	// InstanceLock is held for the daemon's entire lifetime; released on
	// graceful shutdown and automatically by the OS on any exit.
	InstanceLock *lock.Lock

	Logger *slog.Logger
}

// WithWriteLock runs fn while holding the write mutex, for handlers
// that append to the canonical log or mutate the index.
func (sc *ServerContext) WithWriteLock(fn func()) {
	sc.WriteMu.Lock()
	defer sc.WriteMu.Unlock()
	fn()
}
