package extraction

import (
	"context"
	"errors"
	"testing"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"
)

func newEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	return env
}

func TestWorkflowRunsStagesToCompletion(t *testing.T) {
	env := newEnv(t)

	var stageCalls int
	env.RegisterActivityWithOptions(func(ctx context.Context, jobID string) (StageOutcome, error) {
		stageCalls++
		out := StageOutcome{JobID: jobID, Status: "running"}
		if stageCalls >= 3 {
			out.Status = "completed"
			out.Done = true
		}
		return out, nil
	}, activity.RegisterOptions{Name: ActivityStage})
	env.RegisterActivityWithOptions(func(ctx context.Context, req FailRequest) error {
		t.Errorf("fail activity must not run on the happy path, got %+v", req)
		return nil
	}, activity.RegisterOptions{Name: ActivityFail})

	env.ExecuteWorkflow(WorkflowName)

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("unexpected workflow error: %v", err)
	}
	if stageCalls != 3 {
		t.Errorf("expected 3 stage executions, got %d", stageCalls)
	}
}

func TestWorkflowMarksJobFailedAfterRetryBudget(t *testing.T) {
	env := newEnv(t)

	var stageCalls int
	env.RegisterActivityWithOptions(func(ctx context.Context, jobID string) (StageOutcome, error) {
		stageCalls++
		return StageOutcome{}, errors.New("stage blew up")
	}, activity.RegisterOptions{Name: ActivityStage})

	var failReq *FailRequest
	env.RegisterActivityWithOptions(func(ctx context.Context, req FailRequest) error {
		failReq = &req
		return nil
	}, activity.RegisterOptions{Name: ActivityFail})

	env.ExecuteWorkflow(WorkflowName)

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err == nil {
		t.Fatal("exhausted retries must surface as a workflow error")
	}
	if stageCalls != 3 {
		t.Errorf("expected 3 attempts, got %d", stageCalls)
	}
	if failReq == nil {
		t.Fatal("the terminal-failure activity must run")
	}
	if failReq.Attempts != 3 {
		t.Errorf("fail request should carry the attempt count, got %+v", failReq)
	}
}

func TestWorkflowPropagatesFailedJobStatus(t *testing.T) {
	env := newEnv(t)

	env.RegisterActivityWithOptions(func(ctx context.Context, jobID string) (StageOutcome, error) {
		// RunStage reports Done for terminal jobs; a failed status still has
		// to fail the workflow.
		return StageOutcome{JobID: jobID, Status: "failed", Phase: "failed", Done: true}, nil
	}, activity.RegisterOptions{Name: ActivityStage})
	env.RegisterActivityWithOptions(func(ctx context.Context, req FailRequest) error {
		return nil
	}, activity.RegisterOptions{Name: ActivityFail})

	env.ExecuteWorkflow(WorkflowName)

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err == nil {
		t.Fatal("a terminally failed job must fail the workflow")
	}
}
