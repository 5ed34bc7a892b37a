package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ops-brain/opsd/internal/canonlog"
	"github.com/ops-brain/opsd/internal/index"
	"github.com/ops-brain/opsd/internal/jobs"
	"github.com/ops-brain/opsd/internal/lock"
	"github.com/ops-brain/opsd/internal/obslog"
	"github.com/ops-brain/opsd/internal/opsconfig"
	"github.com/ops-brain/opsd/internal/pipeline"
	"github.com/ops-brain/opsd/internal/query"
)

// Lifecycle owns the daemon's startup and shutdown sequence: load
// config, resolve workspace paths, open the log/index, acquire the
// instance lock, serve, and release everything on shutdown.
type Lifecycle struct {
	sc     *ServerContext
	server *Server
}

// Boot runs §4.G's startup sequence: load config → resolve workspace
// paths → ensure dirs/log/index → ensure built-in views → acquire the
// instance lock (non-blocking) → build the server. It does not start
// serving; call Run for that.
func Boot(configPath, addr, logLevel string) (*Lifecycle, error) {
	cfg, err := opsconfig.Load(configPath)
	if err != nil {
		return nil, err
	}

	workspace := cfg.Workspace
	if !filepath.IsAbs(workspace) {
		workspace = filepath.Join(filepath.Dir(configPath), workspace)
	}
	canonicalDir := filepath.Join(workspace, "canonical")
	logPath := filepath.Join(canonicalDir, "events.jsonl")
	indexDir := filepath.Join(workspace, "index")
	dbPath := filepath.Join(indexDir, "brain.sqlite")
	lockPath := filepath.Join(canonicalDir, ".opsd.lock")

	if err := os.MkdirAll(canonicalDir, 0750); err != nil {
		return nil, fmt.Errorf("create canonical dir: %w", err)
	}
	if err := os.MkdirAll(indexDir, 0750); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	instanceLock, err := lock.AcquireNoWait(lockPath)
	if err != nil {
		return nil, fmt.Errorf("daemon already running: %w", err)
	}

	logWriter, err := canonlog.NewWriter(logPath)
	if err != nil {
		_ = instanceLock.Release()
		return nil, err
	}

	db, err := index.OpenDB(dbPath)
	if err != nil {
		_ = logWriter.Close()
		_ = instanceLock.Release()
		return nil, err
	}
	if err := index.InitDB(db); err != nil {
		_ = db.Close()
		_ = logWriter.Close()
		_ = instanceLock.Release()
		return nil, err
	}
	store := index.NewStore(db)

	logger := obslog.New(logLevel)

	ctx := context.Background()
	if err := query.EnsureBuiltinViews(ctx, store, jobs.NowISO(cfg.Timezone)); err != nil {
		_ = db.Close()
		_ = logWriter.Close()
		_ = instanceLock.Release()
		return nil, err
	}

	engine := query.New(store, cfg.FTSEnabled)
	pl := pipeline.New(logWriter, store)
	jobEnv := &jobs.Env{
		Store:     store,
		Log:       logWriter,
		LogPath:   logPath,
		Engine:    engine,
		Pipeline:  pl,
		Workspace: workspace,
		Timezone:  cfg.Timezone,
	}

	sc := &ServerContext{
		Config:       cfg,
		Workspace:    workspace,
		Store:        store,
		Log:          logWriter,
		LogPath:      logPath,
		Engine:       engine,
		Pipeline:     pl,
		Jobs:         jobs.NewRegistry(jobEnv),
		InstanceLock: instanceLock,
		Logger:       logger,
	}

	if addr == "" {
		addr = DefaultAddr
	}

	return &Lifecycle{sc: sc, server: NewServer(addr, sc)}, nil
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM, then
// shuts down gracefully and releases the instance lock.
func (l *Lifecycle) Run() error {
	if err := l.server.Start(l.sc); err != nil {
		_ = l.Close()
		return err
	}
	l.sc.Logger.Info("daemon listening", "addr", l.server.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	l.sc.Logger.Info("shutting down")
	return l.Close()
}

// Close stops the HTTP server and releases every resource Boot
// acquired, in reverse order. Safe to call once after Boot, whether or
// not Run was ever called.
func (l *Lifecycle) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(l.server.Stop())
	record(l.sc.Log.Close())
	record(l.sc.Store.Raw().Close())
	record(l.sc.InstanceLock.Release())
	return firstErr
}

// Logger exposes the lifecycle's logger, for callers (e.g. main) that
// want to log before or after Run.
func (l *Lifecycle) Logger() *slog.Logger { return l.sc.Logger }

// Context returns the server context, for tests that want to drive
// handlers directly without going over HTTP.
func (l *Lifecycle) Context() *ServerContext { return l.sc }
