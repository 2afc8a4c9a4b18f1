package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	types "github.com/uinav/appgraph-backend/internal/domain"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
	"github.com/uinav/appgraph-backend/internal/services"
)

// stubPipeline satisfies just enough of the pipeline for activity tests.
type stubPipeline struct {
	job       *types.ExtractionJob
	failCause error
}

func (s *stubPipeline) StartJob(ctx context.Context, desc types.SourceDescriptor) (*types.ExtractionJob, error) {
	return nil, errors.New("not implemented")
}

func (s *stubPipeline) RunStage(ctx context.Context, jobID uuid.UUID) (*services.StageResult, error) {
	return nil, errors.New("not implemented")
}

func (s *stubPipeline) RunToCompletion(ctx context.Context, jobID uuid.UUID) (*types.ExtractionJob, error) {
	return nil, errors.New("not implemented")
}

func (s *stubPipeline) FailJob(ctx context.Context, jobID uuid.UUID, cause error) error {
	s.failCause = cause
	return nil
}

func (s *stubPipeline) Cancel(ctx context.Context, jobID uuid.UUID) error { return nil }

func (s *stubPipeline) GetJob(ctx context.Context, jobID uuid.UUID) (*types.ExtractionJob, error) {
	return s.job, nil
}

func (s *stubPipeline) ListJobs(ctx context.Context, siteID string, limit int) ([]*types.ExtractionJob, error) {
	return nil, nil
}

// The workflow never learns which stage erred (an activity error carries no
// outcome), so the recorded failure must take its stage from the job row.
func TestFailActivityResolvesStageFromJob(t *testing.T) {
	id := uuid.New()
	stub := &stubPipeline{job: &types.ExtractionJob{ID: id, Phase: types.PhaseBuildingGraph}}
	a := &Activities{Pipeline: stub}

	if err := a.Fail(context.Background(), FailRequest{JobID: id.String(), Attempts: 3, LastErr: "boom"}); err != nil {
		t.Fatalf("fail activity: %v", err)
	}

	var exhausted *pkgerr.ExhaustedRetriesError
	if !errors.As(stub.failCause, &exhausted) {
		t.Fatalf("expected an exhausted-retries cause, got %v", stub.failCause)
	}
	if exhausted.Stage != string(types.PhaseBuildingGraph) {
		t.Errorf("stage should come from the job row, got %q", exhausted.Stage)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("attempt count lost, got %+v", exhausted)
	}
}

func TestFailActivityRejectsBadJobID(t *testing.T) {
	a := &Activities{Pipeline: &stubPipeline{}}
	if err := a.Fail(context.Background(), FailRequest{JobID: "not-a-uuid", Attempts: 1}); err == nil {
		t.Fatal("malformed job id must be rejected")
	}
}
