package extraction

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"
)

// Workflow drives one extraction job to a terminal state. The workflow id is
// the job id, so a duplicate start collapses into the running execution.
// Stage retries are handled here, not by Temporal's activity retry policy,
// because exhausting the budget must mark the job failed through an activity
// rather than silently abandoning it.
func Workflow(ctx workflow.Context) error {
	jobID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if jobID == "" {
		return fmt.Errorf("extraction: missing job_id")
	}

	const (
		maxStageAttempts     = 3
		stageBackoffBase     = 2 * time.Second
		stageBackoffMax      = time.Minute
		continueStageLimit   = 500
		continueHistoryLimit = 15000
	)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Hour,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         nil, // stage retries are handled at the workflow level
	})

	cancelCh := workflow.GetSignalChannel(ctx, SignalCancel)
	stageCount := 0

	for {
		stageCount++

		// A cancel request is persisted on the job row; draining the signal
		// here only makes the next stage boundary observe it promptly.
		var signaled bool
		for cancelCh.ReceiveAsync(&signaled) {
		}

		var out StageOutcome
		var err error
		backoff := stageBackoffBase
		for attempt := 1; ; attempt++ {
			err = workflow.ExecuteActivity(ctx, ActivityStage, jobID).Get(ctx, &out)
			if err == nil {
				break
			}
			if attempt >= maxStageAttempts {
				req := FailRequest{JobID: jobID, Attempts: attempt, LastErr: err.Error()}
				if ferr := workflow.ExecuteActivity(ctx, ActivityFail, req).Get(ctx, nil); ferr != nil {
					return ferr
				}
				return fmt.Errorf("extraction job failed (attempts=%d): %s", attempt, err.Error())
			}
			if serr := workflow.Sleep(ctx, backoff); serr != nil {
				return serr
			}
			backoff *= 2
			if backoff > stageBackoffMax {
				backoff = stageBackoffMax
			}
		}

		if out.Done {
			if strings.EqualFold(out.Status, "failed") {
				return fmt.Errorf("extraction job failed (phase=%s)", out.Phase)
			}
			return nil
		}

		if shouldContinueAsNew(ctx, stageCount, continueStageLimit, continueHistoryLimit) {
			return workflow.NewContinueAsNewError(ctx, Workflow)
		}
	}
}

func shouldContinueAsNew(ctx workflow.Context, stages, maxStages, maxHistory int) bool {
	if maxStages > 0 && stages >= maxStages {
		return true
	}
	info := workflow.GetInfo(ctx)
	if info == nil || maxHistory <= 0 {
		return false
	}
	return info.GetCurrentHistoryLength() >= maxHistory
}
