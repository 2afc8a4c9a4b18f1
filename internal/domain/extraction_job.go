package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

type JobPhase string

const (
	PhaseQueued                JobPhase = "queued"
	PhaseIngesting             JobPhase = "ingesting"
	PhaseExtractingScreens     JobPhase = "extracting_screens"
	PhaseExtractingTasks       JobPhase = "extracting_tasks"
	PhaseExtractingActions     JobPhase = "extracting_actions"
	PhaseExtractingTransitions JobPhase = "extracting_transitions"
	PhaseBuildingGraph         JobPhase = "building_graph"
	PhaseVerifying             JobPhase = "verifying"
	PhaseEnriching             JobPhase = "enriching"
	PhaseCompleted             JobPhase = "completed"
	PhaseFailed                JobPhase = "failed"
)

// SourceDescriptor names what to ingest; the adapter that resolves it is a
// collaborator, not part of this core.
type SourceDescriptor struct {
	SiteID string `json:"site_id"`
	Type   string `json:"type"` // crawl, document, recording
	URI    string `json:"uri"`
}

// ExtractionJob is one durable pipeline execution. Owned by the orchestrator;
// mutated only at stage boundaries. Terminal states: completed, failed,
// canceled.
type ExtractionJob struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SiteID          string         `gorm:"column:site_id;not null;index" json:"site_id"`
	SourceType      string         `gorm:"column:source_type;not null" json:"source_type"`
	SourceURI       string         `gorm:"column:source_uri;not null" json:"source_uri"`
	Status          JobStatus      `gorm:"column:status;not null;default:'queued';index" json:"status"`
	Phase           JobPhase       `gorm:"column:phase;not null;default:'queued'" json:"phase"`
	Counts          datatypes.JSON `gorm:"column:counts;type:jsonb" json:"counts"`
	Errors          datatypes.JSON `gorm:"column:errors;type:jsonb" json:"errors"`
	Attempts        int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	CancelRequested bool           `gorm:"column:cancel_requested;not null;default:false" json:"cancel_requested"`
	StartedAt       time.Time      `gorm:"not null" json:"started_at"`
	CompletedAt     *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

func (ExtractionJob) TableName() string { return "extraction_job" }

func (j *ExtractionJob) DecodeCounts() map[string]int {
	out := map[string]int{}
	if len(j.Counts) > 0 {
		_ = json.Unmarshal(j.Counts, &out)
	}
	return out
}

func (j *ExtractionJob) DecodeErrors() []string {
	var out []string
	if len(j.Errors) > 0 {
		_ = json.Unmarshal(j.Errors, &out)
	}
	return out
}

func (j *ExtractionJob) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}
