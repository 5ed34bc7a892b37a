// Package canonlog implements the append-only canonical event log: the
// source of truth that the index is rebuilt from.
package canonlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ops-brain/opsd/internal/event"
)

// Writer appends events to a single JSONL file. Each Append is
// serialized in-process by mu and durable on return: write, flush,
// fsync is the commit point of record. Cross-process writers are kept
// disjoint by the daemon's instance lock / offline CLI's advisory lock,
// so the writer itself does not flock.
type Writer struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// NewWriter opens (creating if necessary) the canonical log at path for
// appending.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create canonical log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // G304 - path from workspace config
	if err != nil {
		return nil, fmt.Errorf("open canonical log: %w", err)
	}
	return &Writer{path: path, file: f}, nil
}

// Append marshals ev, writes one JSON line, and fsyncs before
// returning. A failed Append leaves the file exactly as it was before
// the call: no partial line is left behind under normal failure modes
// because the write of a single short line is atomic at the OS level
// and fsync only follows a successful write.
func (w *Writer) Append(ev *event.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')

	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("fsync canonical log: %w", err)
	}
	return nil
}

// Close releases the underlying file handle.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Path returns the file path the writer appends to.
func (w *Writer) Path() string { return w.path }

// Reader reads the canonical log back for replay / rebuild.
type Reader struct {
	path string
}

// NewReader opens a reader over the canonical log at path. It is not an
// error for the file to be absent; ReadAll then returns no events.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// ReadAll reads every line of the canonical log, tolerating blank lines
// and counting (but not failing on) JSON-parse errors.
func (r *Reader) ReadAll() (events []*event.Event, parseErrors int, err error) {
	f, err := os.Open(r.path) //nolint:gosec // G304 - path from workspace config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open canonical log: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev event.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			parseErrors++
			continue
		}
		events = append(events, &ev)
	}
	if err := scanner.Err(); err != nil {
		return events, parseErrors, fmt.Errorf("scan canonical log: %w", err)
	}
	return events, parseErrors, nil
}

// Stream reads the canonical log and delivers events on a channel,
// closing it when the file is exhausted or ctx is canceled.
func (r *Reader) Stream(ctx context.Context) <-chan *event.Event {
	ch := make(chan *event.Event)
	go func() {
		defer close(ch)
		f, err := os.Open(r.path) //nolint:gosec // G304 - path from workspace config
		if err != nil {
			return
		}
		defer func() { _ = f.Close() }()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var ev event.Event
			if err := json.Unmarshal(line, &ev); err != nil {
				continue
			}
			select {
			case ch <- &ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
