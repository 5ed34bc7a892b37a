package jobs

import (
	"context"
	"time"

	"github.com/ops-brain/opsd/internal/id"
	"github.com/ops-brain/opsd/internal/index"
)

// Execute runs the named job through reg, recording a job_runs row
// before and after execution: a "running" row is inserted first, then
// updated to "ok" or "failed" on completion. A failed run is observable
// but is never retried automatically, per the job-run lifecycle.
func Execute(ctx context.Context, store *index.Store, reg *Registry, jobName, kind string, config map[string]any, nowISO func() string) (index.JobRun, error) {
	run := index.JobRun{
		ID:        id.New(),
		JobName:   jobName,
		StartedAt: nowISO(),
		Status:    "running",
	}
	if err := store.InsertJobRun(ctx, run); err != nil {
		return run, err
	}

	output, runErr := reg.Run(ctx, kind, config)

	finishedAt := nowISO()
	status := "ok"
	var errMsg *string
	if runErr != nil {
		status = "failed"
		msg := runErr.Error()
		errMsg = &msg
	}
	if err := store.FinishJobRun(ctx, run.ID, finishedAt, status, map[string]any(output), errMsg); err != nil {
		return run, err
	}

	run.FinishedAt = &finishedAt
	run.Status = status
	run.Output = map[string]any(output)
	run.Error = errMsg
	return run, runErr
}

// NowISO returns the current instant in RFC3339, the format every
// event/job-run timestamp in this package uses, rendered in tz (ops.yml's
// timezone key). An unrecognized zone falls back to UTC rather than
// failing a timestamp helper.
func NowISO(tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format(time.RFC3339)
}
