package cliutil

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ops-brain/opsd/internal/canonlog"
	"github.com/ops-brain/opsd/internal/index"
	"github.com/ops-brain/opsd/internal/jobs"
	"github.com/ops-brain/opsd/internal/lock"
	"github.com/ops-brain/opsd/internal/opsconfig"
	"github.com/ops-brain/opsd/internal/opserr"
	"github.com/ops-brain/opsd/internal/pipeline"
	"github.com/ops-brain/opsd/internal/query"
)

// DefaultLockTimeout is used when OPS_LOCK_TIMEOUT is unset or invalid.
const DefaultLockTimeout = 10 * time.Second

// LockTimeout reads OPS_LOCK_TIMEOUT (seconds) per §5, falling back to
// DefaultLockTimeout.
func LockTimeout() time.Duration {
	v := os.Getenv("OPS_LOCK_TIMEOUT")
	if v == "" {
		return DefaultLockTimeout
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return DefaultLockTimeout
	}
	return time.Duration(secs) * time.Second
}

// Offline bundles the collaborators a CLI command needs when the
// daemon is unreachable and it falls back to opening the index
// directly, as §4.H describes. Restricted to read operations and the
// local ingest path; CRUD on sources/views/jobs and job run require
// the daemon and are not exposed here.
type Offline struct {
	Config    *opsconfig.Config
	Workspace string
	Store     *index.Store
	Engine    *query.Engine
	Pipeline  *pipeline.Pipeline
	LogPath   string

	log  *canonlog.Writer
	lock *lock.Lock
}

// OpenOffline resolves the workspace from cfg, opens the index and
// canonical log, and (when write is true) acquires the offline-CLI
// write lock with poll-until-timeout semantics. Callers must call
// Close when done.
func OpenOffline(cfg *opsconfig.Config, configPath string, write bool) (*Offline, error) {
	workspace := cfg.Workspace
	if !filepath.IsAbs(workspace) {
		workspace = filepath.Join(filepath.Dir(configPath), workspace)
	}
	canonicalDir := filepath.Join(workspace, "canonical")
	logPath := filepath.Join(canonicalDir, "events.jsonl")
	indexDir := filepath.Join(workspace, "index")
	dbPath := filepath.Join(indexDir, "brain.sqlite")
	lockPath := filepath.Join(canonicalDir, ".ops.lock")

	if err := os.MkdirAll(indexDir, 0750); err != nil {
		return nil, opserr.IOWrap(err, "create index dir")
	}

	var l *lock.Lock
	if write {
		if err := os.MkdirAll(canonicalDir, 0750); err != nil {
			return nil, opserr.IOWrap(err, "create canonical dir")
		}
		acquired, err := lock.AcquireWithTimeout(lockPath, LockTimeout())
		if err != nil {
			return nil, opserr.IOWrap(err, "acquire offline write lock")
		}
		l = acquired
	}

	db, err := index.OpenDB(dbPath)
	if err != nil {
		if l != nil {
			_ = l.Release()
		}
		return nil, err
	}
	if err := index.InitDB(db); err != nil {
		_ = db.Close()
		if l != nil {
			_ = l.Release()
		}
		return nil, err
	}
	store := index.NewStore(db)

	logWriter, logErr := canonlog.NewWriter(logPath)
	if logErr != nil {
		_ = db.Close()
		if l != nil {
			_ = l.Release()
		}
		return nil, logErr
	}

	engine := query.New(store, cfg.FTSEnabled)
	pl := pipeline.New(logWriter, store)

	return &Offline{
		Config:    cfg,
		Workspace: workspace,
		Store:     store,
		Engine:    engine,
		Pipeline:  pl,
		LogPath:   logPath,
		log:       logWriter,
		lock:      l,
	}, nil
}

// Close releases whatever OpenOffline acquired: the canonical log, the
// index handle, and, if held, the offline write lock.
func (o *Offline) Close() error {
	var firstErr error
	if err := o.log.Close(); err != nil {
		firstErr = err
	}
	if err := o.Store.Raw().Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if o.lock != nil {
		if err := o.lock.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NowISO matches the daemon's timestamp source so offline-ingested
// events carry the same created_at shape as ones ingested via HTTP,
// rendered in the workspace's configured timezone.
func NowISO(tz string) string { return jobs.NowISO(tz) }
