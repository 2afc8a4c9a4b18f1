package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/uinav/appgraph-backend/internal/domain"
	"github.com/uinav/appgraph-backend/internal/extract"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
	"github.com/uinav/appgraph-backend/internal/platform/envutil"
	"github.com/uinav/appgraph-backend/internal/platform/logger"
	"github.com/uinav/appgraph-backend/internal/repos"
)

// RetryConfig bounds per-stage retries. Sleep is replaceable so tests do not
// wait out real backoff.
type RetryConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Sleep       func(time.Duration)
}

func RetryConfigFromEnv() RetryConfig {
	return RetryConfig{
		MaxAttempts: envutil.Int("STAGE_MAX_ATTEMPTS", 3),
		BackoffBase: envutil.Millis("STAGE_BACKOFF_BASE_MS", 250),
		BackoffMax:  envutil.Millis("STAGE_BACKOFF_MAX_MS", 5000),
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 250 * time.Millisecond
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = c.BackoffBase
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
	return c
}

type StageResult struct {
	JobID    uuid.UUID      `json:"job_id"`
	Stage    types.JobPhase `json:"stage"`
	Phase    types.JobPhase `json:"phase"`
	Skipped  bool           `json:"skipped"`
	Done     bool           `json:"done"`
}

// PipelineService drives an extraction job through its stage sequence. Every
// stage is idempotent: work is keyed in the operation ledger, so at-least-once
// execution by the orchestrator converges to exactly-once effects.
type PipelineService interface {
	StartJob(ctx context.Context, desc types.SourceDescriptor) (*types.ExtractionJob, error)
	RunStage(ctx context.Context, jobID uuid.UUID) (*StageResult, error)
	RunToCompletion(ctx context.Context, jobID uuid.UUID) (*types.ExtractionJob, error)
	FailJob(ctx context.Context, jobID uuid.UUID, cause error) error
	Cancel(ctx context.Context, jobID uuid.UUID) error
	GetJob(ctx context.Context, jobID uuid.UUID) (*types.ExtractionJob, error)
	ListJobs(ctx context.Context, siteID string, limit int) ([]*types.ExtractionJob, error)
}

type pipelineService struct {
	db            *gorm.DB
	log           *logger.Logger
	jobs          repos.ExtractionJobRepo
	ledger        Ledger
	ingester      *IngesterSet
	builder       GraphBuilderService
	validator     ValidatorService
	screens       repos.ScreenRepo
	actions       repos.ActionRepo
	retry         RetryConfig
	verifyEnabled bool
	enrichEnabled bool
}

func NewPipelineService(
	db *gorm.DB,
	log *logger.Logger,
	jobs repos.ExtractionJobRepo,
	ledger Ledger,
	ingester *IngesterSet,
	builder GraphBuilderService,
	validator ValidatorService,
	screens repos.ScreenRepo,
	actions repos.ActionRepo,
	retry RetryConfig,
) PipelineService {
	return &pipelineService{
		db:            db,
		log:           log.With("service", "PipelineService"),
		jobs:          jobs,
		ledger:        ledger,
		ingester:      ingester,
		builder:       builder,
		validator:     validator,
		screens:       screens,
		actions:       actions,
		retry:         retry.normalized(),
		verifyEnabled: envutil.Bool("PIPELINE_VERIFY_ENABLED", true),
		enrichEnabled: envutil.Bool("PIPELINE_ENRICH_ENABLED", true),
	}
}

var stageOrder = []types.JobPhase{
	types.PhaseIngesting,
	types.PhaseExtractingScreens,
	types.PhaseExtractingTasks,
	types.PhaseExtractingActions,
	types.PhaseExtractingTransitions,
	types.PhaseBuildingGraph,
	types.PhaseVerifying,
	types.PhaseEnriching,
}

func nextStage(current types.JobPhase) types.JobPhase {
	for i, p := range stageOrder {
		if p == current {
			if i == len(stageOrder)-1 {
				return types.PhaseCompleted
			}
			return stageOrder[i+1]
		}
	}
	return types.PhaseCompleted
}

func (s *pipelineService) StartJob(ctx context.Context, desc types.SourceDescriptor) (*types.ExtractionJob, error) {
	if desc.SiteID == "" || desc.Type == "" {
		return nil, pkgerr.ErrInvalidArgument
	}
	job := &types.ExtractionJob{
		SiteID:     desc.SiteID,
		SourceType: desc.Type,
		SourceURI:  desc.URI,
	}
	created, err := s.jobs.Create(ctx, nil, job)
	if err != nil {
		return nil, pkgerr.Transient("document", "create_job", err)
	}
	s.log.Info("extraction job queued", "job_id", created.ID, "site_id", desc.SiteID, "source_type", desc.Type)
	return created, nil
}

// RunStage executes exactly one stage of the job. The phase column names the
// stage in flight; it advances only after the stage's ledger record exists,
// so a crash between execute and advance re-runs into a ledger hit.
func (s *pipelineService) RunStage(ctx context.Context, jobID uuid.UUID) (*StageResult, error) {
	job, err := s.jobs.GetByID(ctx, nil, jobID)
	if err != nil {
		return nil, pkgerr.Transient("document", "get_job", err)
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job %s", pkgerr.ErrNotFound, jobID)
	}
	if job.Terminal() {
		return &StageResult{JobID: jobID, Phase: job.Phase, Done: true}, nil
	}
	if job.CancelRequested {
		now := time.Now().UTC()
		if err := s.jobs.UpdateFields(ctx, nil, jobID, map[string]interface{}{
			"status":       types.JobStatusCanceled,
			"completed_at": &now,
		}); err != nil {
			return nil, pkgerr.Transient("document", "cancel_job", err)
		}
		s.log.Info("extraction job canceled", "job_id", jobID, "phase", job.Phase)
		return &StageResult{JobID: jobID, Phase: job.Phase, Done: true}, nil
	}

	stage := job.Phase
	if stage == types.PhaseQueued {
		stage = types.PhaseIngesting
		if err := s.jobs.UpdateFields(ctx, nil, jobID, map[string]interface{}{
			"status": types.JobStatusRunning,
			"phase":  stage,
		}); err != nil {
			return nil, pkgerr.Transient("document", "start_job", err)
		}
		job.Phase = stage
	}

	if s.skipStage(stage) {
		return s.advance(ctx, job, stage, true)
	}

	opID := s.operationID(job, stage)
	entry, err := s.ledger.Get(ctx, opID)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		s.log.Debug("stage already recorded; skipping execution",
			"job_id", jobID, "stage", stage, "operation_id", opID)
		return s.advance(ctx, job, stage, false)
	}

	output, counts, stageErrs, err := s.execute(ctx, job, stage)
	if err != nil {
		_ = s.jobs.IncrementAttempts(ctx, nil, jobID)
		_ = s.jobs.AppendErrors(ctx, nil, jobID, []string{fmt.Sprintf("%s: %v", stage, err)})
		s.log.Warn("stage failed", "job_id", jobID, "stage", stage, "error", err)
		return nil, err
	}
	if len(stageErrs) > 0 {
		if err := s.jobs.AppendErrors(ctx, nil, jobID, stageErrs); err != nil {
			return nil, pkgerr.Transient("document", "append_errors", err)
		}
	}
	if len(counts) > 0 {
		if err := s.jobs.MergeCounts(ctx, nil, jobID, counts); err != nil {
			return nil, pkgerr.Transient("document", "merge_counts", err)
		}
	}
	if err := s.ledger.Record(ctx, opID, output); err != nil {
		return nil, err
	}
	return s.advance(ctx, job, stage, false)
}

func (s *pipelineService) skipStage(stage types.JobPhase) bool {
	switch stage {
	case types.PhaseVerifying:
		return !s.verifyEnabled
	case types.PhaseEnriching:
		return !s.enrichEnabled
	default:
		return false
	}
}

func (s *pipelineService) advance(ctx context.Context, job *types.ExtractionJob, stage types.JobPhase, skipped bool) (*StageResult, error) {
	next := nextStage(stage)
	updates := map[string]interface{}{"phase": next}
	done := next == types.PhaseCompleted
	if done {
		now := time.Now().UTC()
		updates["status"] = types.JobStatusCompleted
		updates["completed_at"] = &now
	}
	if err := s.jobs.UpdateFields(ctx, nil, job.ID, updates); err != nil {
		return nil, pkgerr.Transient("document", "advance_phase", err)
	}
	if done {
		s.log.Info("extraction job completed", "job_id", job.ID, "site_id", job.SiteID)
	}
	return &StageResult{JobID: job.ID, Stage: stage, Phase: next, Skipped: skipped, Done: done}, nil
}

// RunToCompletion drives the job stage by stage with bounded exponential
// backoff per stage. It is the local, in-process counterpart of the durable
// workflow and shares all its semantics through RunStage.
func (s *pipelineService) RunToCompletion(ctx context.Context, jobID uuid.UUID) (*types.ExtractionJob, error) {
	for {
		var res *StageResult
		var err error
		backoff := s.retry.BackoffBase
		for attempt := 1; ; attempt++ {
			res, err = s.RunStage(ctx, jobID)
			if err == nil {
				break
			}
			if attempt >= s.retry.MaxAttempts {
				stage := types.PhaseFailed
				if job, gerr := s.jobs.GetByID(ctx, nil, jobID); gerr == nil && job != nil {
					stage = job.Phase
				}
				exhausted := &pkgerr.ExhaustedRetriesError{
					Stage:    string(stage),
					Attempts: attempt,
					History:  []string{err.Error()},
				}
				if ferr := s.FailJob(ctx, jobID, exhausted); ferr != nil {
					return nil, ferr
				}
				return s.GetJob(ctx, jobID)
			}
			s.retry.Sleep(backoff)
			backoff *= 2
			if backoff > s.retry.BackoffMax {
				backoff = s.retry.BackoffMax
			}
		}
		if res.Done {
			return s.GetJob(ctx, jobID)
		}
	}
}

func (s *pipelineService) FailJob(ctx context.Context, jobID uuid.UUID, cause error) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       types.JobStatusFailed,
		"phase":        types.PhaseFailed,
		"completed_at": &now,
	}
	if err := s.jobs.UpdateFields(ctx, nil, jobID, updates); err != nil {
		return pkgerr.Transient("document", "fail_job", err)
	}
	if cause != nil {
		_ = s.jobs.AppendErrors(ctx, nil, jobID, []string{cause.Error()})
	}
	s.log.Error("extraction job failed", "job_id", jobID, "error", cause)
	return nil
}

func (s *pipelineService) Cancel(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, nil, jobID)
	if err != nil {
		return pkgerr.Transient("document", "get_job", err)
	}
	if job == nil {
		return fmt.Errorf("%w: job %s", pkgerr.ErrNotFound, jobID)
	}
	if job.Terminal() {
		return fmt.Errorf("%w: job %s is already %s", pkgerr.ErrInvalidArgument, jobID, job.Status)
	}
	return s.jobs.RequestCancel(ctx, nil, jobID)
}

func (s *pipelineService) GetJob(ctx context.Context, jobID uuid.UUID) (*types.ExtractionJob, error) {
	job, err := s.jobs.GetByID(ctx, nil, jobID)
	if err != nil {
		return nil, pkgerr.Transient("document", "get_job", err)
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job %s", pkgerr.ErrNotFound, jobID)
	}
	return job, nil
}

func (s *pipelineService) ListJobs(ctx context.Context, siteID string, limit int) ([]*types.ExtractionJob, error) {
	jobs, err := s.jobs.ListBySite(ctx, nil, siteID, limit)
	if err != nil {
		return nil, pkgerr.Transient("document", "list_jobs", err)
	}
	return jobs, nil
}

func (s *pipelineService) operationID(job *types.ExtractionJob, stage types.JobPhase) string {
	input, _ := json.Marshal(types.SourceDescriptor{
		SiteID: job.SiteID,
		Type:   job.SourceType,
		URI:    job.SourceURI,
	})
	return OperationID(job.ID.String(), string(stage), input)
}

func (s *pipelineService) execute(ctx context.Context, job *types.ExtractionJob, stage types.JobPhase) (any, map[string]int, []string, error) {
	switch stage {
	case types.PhaseIngesting:
		src, err := s.ingester.Ingest(ctx, descriptorOf(job))
		if err != nil {
			return nil, nil, nil, err
		}
		counts := map[string]int{"pages": len(src.Pages), "instructions": len(src.Instructions)}
		return src, counts, nil, nil

	case types.PhaseExtractingScreens:
		src, err := s.source(ctx, job)
		if err != nil {
			return nil, nil, nil, err
		}
		res := extract.ExtractScreens(src)
		return res.Screens, map[string]int{"screens_extracted": len(res.Screens)}, errStrings(res.Failures), nil

	case types.PhaseExtractingTasks:
		src, err := s.source(ctx, job)
		if err != nil {
			return nil, nil, nil, err
		}
		res := extract.ExtractTasks(src)
		return res.Tasks, map[string]int{"tasks_extracted": len(res.Tasks)}, errStrings(res.Failures), nil

	case types.PhaseExtractingActions:
		src, err := s.source(ctx, job)
		if err != nil {
			return nil, nil, nil, err
		}
		res := extract.ExtractActions(src)
		return res.Actions, map[string]int{"actions_extracted": len(res.Actions)}, errStrings(res.Failures), nil

	case types.PhaseExtractingTransitions:
		src, err := s.source(ctx, job)
		if err != nil {
			return nil, nil, nil, err
		}
		res := extract.ExtractTransitions(src)
		return res.Transitions, map[string]int{"transitions_extracted": len(res.Transitions)}, errStrings(res.Failures), nil

	case types.PhaseBuildingGraph:
		return s.buildGraph(ctx, job)

	case types.PhaseVerifying:
		resolved, err := s.verifySignatures(ctx, job.SiteID)
		if err != nil {
			return nil, nil, nil, err
		}
		report, err := s.validator.Validate(ctx, job.SiteID)
		if err != nil {
			return nil, nil, nil, err
		}
		var errs []string
		for _, issue := range report.Issues {
			if issue.Severity == pkgerr.SeverityCritical {
				errs = append(errs, issue.Error())
			}
		}
		counts := map[string]int{
			"validation_checks_passed": report.ChecksPassed,
			"validation_issues":        len(report.Issues),
			"signatures_disambiguated": resolved,
		}
		return report, counts, errs, nil

	case types.PhaseEnriching:
		return s.enrich(ctx, job)

	default:
		return nil, nil, nil, fmt.Errorf("%w: unknown stage %q", pkgerr.ErrInvalidArgument, stage)
	}
}

func descriptorOf(job *types.ExtractionJob) types.SourceDescriptor {
	return types.SourceDescriptor{SiteID: job.SiteID, Type: job.SourceType, URI: job.SourceURI}
}

// source returns the ingested input for the job, from the ledger when the
// ingest stage already ran, re-ingesting when the entry expired.
func (s *pipelineService) source(ctx context.Context, job *types.ExtractionJob) (extract.NormalizedSource, error) {
	opID := s.operationID(job, types.PhaseIngesting)
	entry, err := s.ledger.Get(ctx, opID)
	if err != nil {
		return extract.NormalizedSource{}, err
	}
	if entry != nil && len(entry.Output) > 0 {
		var src extract.NormalizedSource
		if err := json.Unmarshal(entry.Output, &src); err == nil {
			return src, nil
		}
		s.log.Warn("undecodable ingest record; re-ingesting", "job_id", job.ID, "operation_id", opID)
	}
	src, err := s.ingester.Ingest(ctx, descriptorOf(job))
	if err != nil {
		return extract.NormalizedSource{}, err
	}
	if err := s.ledger.Record(ctx, opID, src); err != nil {
		return extract.NormalizedSource{}, err
	}
	return src, nil
}

func stageDrafts[T any](ctx context.Context, s *pipelineService, job *types.ExtractionJob, stage types.JobPhase, compute func(extract.NormalizedSource) []T) ([]T, error) {
	opID := s.operationID(job, stage)
	entry, err := s.ledger.Get(ctx, opID)
	if err != nil {
		return nil, err
	}
	if entry != nil && len(entry.Output) > 0 {
		var out []T
		if err := json.Unmarshal(entry.Output, &out); err == nil {
			return out, nil
		}
	}
	src, err := s.source(ctx, job)
	if err != nil {
		return nil, err
	}
	return compute(src), nil
}

func (s *pipelineService) buildGraph(ctx context.Context, job *types.ExtractionJob) (any, map[string]int, []string, error) {
	screens, err := stageDrafts(ctx, s, job, types.PhaseExtractingScreens,
		func(src extract.NormalizedSource) []extract.DraftScreen { return extract.ExtractScreens(src).Screens })
	if err != nil {
		return nil, nil, nil, err
	}
	tasks, err := stageDrafts(ctx, s, job, types.PhaseExtractingTasks,
		func(src extract.NormalizedSource) []extract.DraftTask { return extract.ExtractTasks(src).Tasks })
	if err != nil {
		return nil, nil, nil, err
	}
	actions, err := stageDrafts(ctx, s, job, types.PhaseExtractingActions,
		func(src extract.NormalizedSource) []extract.DraftAction { return extract.ExtractActions(src).Actions })
	if err != nil {
		return nil, nil, nil, err
	}
	transitions, err := stageDrafts(ctx, s, job, types.PhaseExtractingTransitions,
		func(src extract.NormalizedSource) []extract.DraftTransition { return extract.ExtractTransitions(src).Transitions })
	if err != nil {
		return nil, nil, nil, err
	}

	counts := map[string]int{}
	var errs []string

	screenOut, err := s.builder.PersistScreens(ctx, screens)
	if err != nil {
		return nil, nil, nil, err
	}
	mergeBatch(counts, &errs, "screens", screenOut)

	taskOut, err := s.builder.PersistTasks(ctx, tasks)
	if err != nil {
		return nil, nil, nil, err
	}
	mergeBatch(counts, &errs, "tasks", taskOut)

	actionOut, err := s.builder.PersistActions(ctx, actions)
	if err != nil {
		return nil, nil, nil, err
	}
	mergeBatch(counts, &errs, "actions", actionOut)

	transitionOut, err := s.builder.PersistTransitions(ctx, transitions)
	if err != nil {
		return nil, nil, nil, err
	}
	mergeBatch(counts, &errs, "transitions", transitionOut)

	grouped, err := s.builder.BuildGroups(ctx, job.SiteID)
	if err != nil {
		return nil, nil, nil, err
	}
	counts["grouped_screens"] = grouped

	return counts, counts, errs, nil
}

func mergeBatch(counts map[string]int, errs *[]string, kind string, out BatchOutcome) {
	for outcome, n := range out.Counts {
		counts[kind+"_"+outcome] = n
	}
	*errs = append(*errs, out.Errors...)
}

// verifySignatures re-runs signature disambiguation over every screen of the
// site. Extraction disambiguates within one batch only; a screen persisted by
// an earlier job can share a URL pattern with a new one, and both would match
// the same live observation until a negative indicator separates them.
func (s *pipelineService) verifySignatures(ctx context.Context, siteID string) (int, error) {
	screens, err := s.screens.ListBySite(ctx, nil, siteID)
	if err != nil {
		return 0, pkgerr.Transient("document", "list_screens", err)
	}

	type variant struct {
		screen *types.Screen
		sig    types.StateSignature
	}
	byPattern := map[string][]variant{}
	for _, sc := range screens {
		sig, err := sc.DecodeSignature()
		if err != nil {
			s.log.Warn("skipping screen with undecodable signature", "screen_id", sc.ID)
			continue
		}
		byPattern[sig.URLPattern] = append(byPattern[sig.URLPattern], variant{screen: sc, sig: sig})
	}

	updated := 0
	for _, group := range byPattern {
		if len(group) < 2 {
			continue
		}
		for i := range group {
			mine := map[string]bool{}
			for _, ind := range group[i].sig.Indicators {
				mine[ind] = true
			}
			have := map[string]bool{}
			for _, neg := range group[i].sig.NegativeIndicators {
				have[neg] = true
			}
			sig := group[i].sig
			changed := false
			for j := range group {
				if j == i {
					continue
				}
				for _, ind := range group[j].sig.Indicators {
					if !mine[ind] && !have[ind] {
						have[ind] = true
						sig.NegativeIndicators = append(sig.NegativeIndicators, ind)
						changed = true
					}
				}
			}
			if !changed {
				continue
			}
			if err := s.screens.UpdateFields(ctx, nil, group[i].screen.ID, map[string]interface{}{"signature": sig.JSON()}); err != nil {
				return updated, pkgerr.Transient("document", "update_signature", err)
			}
			updated++
		}
	}
	if updated > 0 {
		s.log.Info("signatures re-disambiguated", "site_id", siteID, "screens_updated", updated)
	}
	return updated, nil
}

// enrich links persisted actions back onto their screens' action_ids so a
// screen document is self-contained for consumers that never touch the
// action table.
func (s *pipelineService) enrich(ctx context.Context, job *types.ExtractionJob) (any, map[string]int, []string, error) {
	screens, err := s.screens.ListBySite(ctx, nil, job.SiteID)
	if err != nil {
		return nil, nil, nil, pkgerr.Transient("document", "list_screens", err)
	}
	enriched := 0
	for _, sc := range screens {
		actions, err := s.actions.ListByScreen(ctx, nil, sc.ID)
		if err != nil {
			return nil, nil, nil, pkgerr.Transient("document", "list_actions", err)
		}
		ids := make([]string, 0, len(actions))
		for _, a := range actions {
			ids = append(ids, a.ID.String())
		}
		raw, _ := json.Marshal(ids)
		existing := sc.DecodeActionIDs()
		if sameStrings(existing, ids) {
			continue
		}
		if err := s.screens.UpdateFields(ctx, nil, sc.ID, map[string]interface{}{"action_ids": raw}); err != nil {
			return nil, nil, nil, pkgerr.Transient("document", "update_screen", err)
		}
		enriched++
	}
	counts := map[string]int{"screens_enriched": enriched}
	return counts, counts, nil, nil
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func errStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}
