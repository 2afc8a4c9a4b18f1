package extraction

const (
	WorkflowName  = "extraction_pipeline"
	ActivityStage = "extraction_stage"
	ActivityFail  = "extraction_fail"
	SignalCancel  = "extraction_cancel"
)

// StageOutcome is the activity's report of one stage execution.
type StageOutcome struct {
	JobID   string `json:"job_id"`
	Stage   string `json:"stage,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Status  string `json:"status,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Done    bool   `json:"done"`
}

// FailRequest is passed to the terminal-failure activity after the workflow
// exhausts its per-stage retry budget. The failing stage is not included: an
// activity error carries no StageOutcome, so the workflow cannot know it; the
// Fail activity reads the stage off the job row instead.
type FailRequest struct {
	JobID    string `json:"job_id"`
	Attempts int    `json:"attempts"`
	LastErr  string `json:"last_err,omitempty"`
}
