package index

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/ops-brain/opsd/internal/opserr"
)

// Source is a named adapter configuration.
type Source struct {
	Name      string         `json:"name"`
	Kind      string         `json:"kind"`
	Config    map[string]any `json:"config"`
	Tags      []string       `json:"tags,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// View is a named saved query.
type View struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Query       map[string]any `json:"query"`
	CreatedAt   string         `json:"created_at"`
}

// Job is a named job configuration.
type Job struct {
	Name      string         `json:"name"`
	Kind      string         `json:"kind"`
	Config    map[string]any `json:"config"`
	Enabled   bool           `json:"enabled"`
	CreatedAt string         `json:"created_at"`
}

// JobRun is one execution record for a Job.
type JobRun struct {
	ID         string         `json:"id"`
	JobName    string         `json:"job_name"`
	StartedAt  string         `json:"started_at"`
	FinishedAt *string        `json:"finished_at,omitempty"`
	Status     string         `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	Error      *string        `json:"error,omitempty"`
}

// UpsertSource creates or replaces a named source.
func (s *Store) UpsertSource(ctx context.Context, src Source) error {
	configJSON, err := json.Marshal(orEmptyMap(src.Config))
	if err != nil {
		return opserr.DatabaseWrap(err, "marshal source config")
	}
	tagsJSON, err := json.Marshal(orEmptySlice(src.Tags))
	if err != nil {
		return opserr.DatabaseWrap(err, "marshal source tags")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sources (name, kind, config_json, tags_json, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET kind = excluded.kind, config_json = excluded.config_json, tags_json = excluded.tags_json`,
		src.Name, src.Kind, string(configJSON), string(tagsJSON), src.CreatedAt,
	)
	if err != nil {
		return opserr.DatabaseWrap(err, "upsert source %s", src.Name)
	}
	return nil
}

// GetSource fetches a named source.
func (s *Store) GetSource(ctx context.Context, name string) (*Source, bool, error) {
	var src Source
	var configJSON, tagsJSON string
	err := s.db.QueryRowContext(ctx, `SELECT name, kind, config_json, tags_json, created_at FROM sources WHERE name = ?`, name).
		Scan(&src.Name, &src.Kind, &configJSON, &tagsJSON, &src.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, opserr.DatabaseWrap(err, "get source %s", name)
	}
	if err := json.Unmarshal([]byte(configJSON), &src.Config); err != nil {
		return nil, false, opserr.DatabaseWrap(err, "unmarshal source config")
	}
	if err := json.Unmarshal([]byte(tagsJSON), &src.Tags); err != nil {
		return nil, false, opserr.DatabaseWrap(err, "unmarshal source tags")
	}
	return &src, true, nil
}

// ListSources returns every source, ordered by name.
func (s *Store) ListSources(ctx context.Context) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, kind, config_json, tags_json, created_at FROM sources ORDER BY name ASC`)
	if err != nil {
		return nil, opserr.DatabaseWrap(err, "list sources")
	}
	defer func() { _ = rows.Close() }()

	var out []Source
	for rows.Next() {
		var src Source
		var configJSON, tagsJSON string
		if err := rows.Scan(&src.Name, &src.Kind, &configJSON, &tagsJSON, &src.CreatedAt); err != nil {
			return nil, opserr.DatabaseWrap(err, "scan source")
		}
		_ = json.Unmarshal([]byte(configJSON), &src.Config)
		_ = json.Unmarshal([]byte(tagsJSON), &src.Tags)
		out = append(out, src)
	}
	return out, rows.Err()
}

// UpsertView creates or replaces a named view.
func (s *Store) UpsertView(ctx context.Context, v View) error {
	queryJSON, err := json.Marshal(orEmptyMap(v.Query))
	if err != nil {
		return opserr.DatabaseWrap(err, "marshal view query")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO views (name, description, query_json, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET description = excluded.description, query_json = excluded.query_json`,
		v.Name, v.Description, string(queryJSON), v.CreatedAt,
	)
	if err != nil {
		return opserr.DatabaseWrap(err, "upsert view %s", v.Name)
	}
	return nil
}

// GetView fetches a named view.
func (s *Store) GetView(ctx context.Context, name string) (*View, bool, error) {
	var v View
	var queryJSON string
	err := s.db.QueryRowContext(ctx, `SELECT name, description, query_json, created_at FROM views WHERE name = ?`, name).
		Scan(&v.Name, &v.Description, &queryJSON, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, opserr.DatabaseWrap(err, "get view %s", name)
	}
	if err := json.Unmarshal([]byte(queryJSON), &v.Query); err != nil {
		return nil, false, opserr.DatabaseWrap(err, "unmarshal view query")
	}
	return &v, true, nil
}

// ListViews returns every view, ordered by name.
func (s *Store) ListViews(ctx context.Context) ([]View, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, description, query_json, created_at FROM views ORDER BY name ASC`)
	if err != nil {
		return nil, opserr.DatabaseWrap(err, "list views")
	}
	defer func() { _ = rows.Close() }()

	var out []View
	for rows.Next() {
		var v View
		var queryJSON string
		if err := rows.Scan(&v.Name, &v.Description, &queryJSON, &v.CreatedAt); err != nil {
			return nil, opserr.DatabaseWrap(err, "scan view")
		}
		_ = json.Unmarshal([]byte(queryJSON), &v.Query)
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpsertJob creates or replaces a named job.
func (s *Store) UpsertJob(ctx context.Context, j Job) error {
	configJSON, err := json.Marshal(orEmptyMap(j.Config))
	if err != nil {
		return opserr.DatabaseWrap(err, "marshal job config")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (name, kind, config_json, enabled, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET kind = excluded.kind, config_json = excluded.config_json, enabled = excluded.enabled`,
		j.Name, j.Kind, string(configJSON), boolToInt(j.Enabled), j.CreatedAt,
	)
	if err != nil {
		return opserr.DatabaseWrap(err, "upsert job %s", j.Name)
	}
	return nil
}

// GetJob fetches a named job.
func (s *Store) GetJob(ctx context.Context, name string) (*Job, bool, error) {
	var j Job
	var configJSON string
	var enabled int
	err := s.db.QueryRowContext(ctx, `SELECT name, kind, config_json, enabled, created_at FROM jobs WHERE name = ?`, name).
		Scan(&j.Name, &j.Kind, &configJSON, &enabled, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, opserr.DatabaseWrap(err, "get job %s", name)
	}
	j.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(configJSON), &j.Config); err != nil {
		return nil, false, opserr.DatabaseWrap(err, "unmarshal job config")
	}
	return &j, true, nil
}

// ListJobs returns every job, ordered by name.
func (s *Store) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, kind, config_json, enabled, created_at FROM jobs ORDER BY name ASC`)
	if err != nil {
		return nil, opserr.DatabaseWrap(err, "list jobs")
	}
	defer func() { _ = rows.Close() }()

	var out []Job
	for rows.Next() {
		var j Job
		var configJSON string
		var enabled int
		if err := rows.Scan(&j.Name, &j.Kind, &configJSON, &enabled, &j.CreatedAt); err != nil {
			return nil, opserr.DatabaseWrap(err, "scan job")
		}
		j.Enabled = enabled != 0
		_ = json.Unmarshal([]byte(configJSON), &j.Config)
		out = append(out, j)
	}
	return out, rows.Err()
}

// InsertJobRun records the start of a job execution.
func (s *Store) InsertJobRun(ctx context.Context, run JobRun) error {
	outputJSON, err := json.Marshal(orEmptyMap(run.Output))
	if err != nil {
		return opserr.DatabaseWrap(err, "marshal job run output")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_runs (id, job_name, started_at, finished_at, status, output_json, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.JobName, run.StartedAt, nullableString(run.FinishedAt), run.Status, string(outputJSON), nullableString(run.Error),
	)
	if err != nil {
		return opserr.DatabaseWrap(err, "insert job run %s", run.ID)
	}
	return nil
}

// FinishJobRun records completion of a job execution.
func (s *Store) FinishJobRun(ctx context.Context, id, finishedAt, status string, output map[string]any, runErr *string) error {
	outputJSON, err := json.Marshal(orEmptyMap(output))
	if err != nil {
		return opserr.DatabaseWrap(err, "marshal job run output")
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE job_runs SET finished_at = ?, status = ?, output_json = ?, error = ? WHERE id = ?`,
		finishedAt, status, string(outputJSON), nullableString(runErr), id,
	)
	if err != nil {
		return opserr.DatabaseWrap(err, "finish job run %s", id)
	}
	return nil
}

// ListJobRuns returns runs for jobName, most recent first.
func (s *Store) ListJobRuns(ctx context.Context, jobName string, limit int) ([]JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_name, started_at, finished_at, status, output_json, error
		FROM job_runs WHERE job_name = ? ORDER BY started_at DESC LIMIT ?`, jobName, limit)
	if err != nil {
		return nil, opserr.DatabaseWrap(err, "list job runs for %s", jobName)
	}
	defer func() { _ = rows.Close() }()

	var out []JobRun
	for rows.Next() {
		var run JobRun
		var finishedAt, runErr sql.NullString
		var outputJSON string
		if err := rows.Scan(&run.ID, &run.JobName, &run.StartedAt, &finishedAt, &run.Status, &outputJSON, &runErr); err != nil {
			return nil, opserr.DatabaseWrap(err, "scan job run")
		}
		if finishedAt.Valid {
			run.FinishedAt = &finishedAt.String
		}
		if runErr.Valid {
			run.Error = &runErr.String
		}
		_ = json.Unmarshal([]byte(outputJSON), &run.Output)
		out = append(out, run)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
