package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
	"github.com/uinav/appgraph-backend/internal/platform/logger"
	"github.com/uinav/appgraph-backend/internal/services"
)

type Activities struct {
	Log      *logger.Logger
	Pipeline services.PipelineService
}

// Stage runs exactly one pipeline stage. The pipeline's operation ledger
// makes re-execution after an activity timeout converge, so this activity is
// safe under at-least-once delivery.
func (a *Activities) Stage(ctx context.Context, jobID string) (StageOutcome, error) {
	out := StageOutcome{JobID: strings.TrimSpace(jobID)}
	if a == nil || a.Pipeline == nil {
		return out, fmt.Errorf("extraction: activity not configured")
	}
	parsed, err := uuid.Parse(out.JobID)
	if err != nil || parsed == uuid.Nil {
		return out, fmt.Errorf("extraction: invalid job_id")
	}

	stopHB := startHeartbeat(ctx)
	defer stopHB()

	res, err := a.Pipeline.RunStage(ctx, parsed)
	if err != nil {
		if job, gerr := a.Pipeline.GetJob(ctx, parsed); gerr == nil {
			out.Stage = string(job.Phase)
		}
		return out, err
	}
	out.Stage = string(res.Stage)
	out.Phase = string(res.Phase)
	out.Skipped = res.Skipped
	out.Done = res.Done

	if job, err := a.Pipeline.GetJob(ctx, parsed); err == nil {
		out.Status = string(job.Status)
	}
	return out, nil
}

// Fail marks the job terminally failed once the workflow's retry budget for a
// stage is spent. The job's phase column still names the stage that was in
// flight, so the recorded error carries it even though the workflow never
// learned it.
func (a *Activities) Fail(ctx context.Context, req FailRequest) error {
	if a == nil || a.Pipeline == nil {
		return fmt.Errorf("extraction: activity not configured")
	}
	parsed, err := uuid.Parse(strings.TrimSpace(req.JobID))
	if err != nil || parsed == uuid.Nil {
		return fmt.Errorf("extraction: invalid job_id")
	}
	stage := ""
	if job, gerr := a.Pipeline.GetJob(ctx, parsed); gerr == nil {
		stage = string(job.Phase)
	}
	cause := &pkgerr.ExhaustedRetriesError{
		Stage:    stage,
		Attempts: req.Attempts,
		History:  []string{req.LastErr},
	}
	return a.Pipeline.FailJob(ctx, parsed, cause)
}

func startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		hb := time.NewTicker(10 * time.Second)
		defer hb.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-hb.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
