package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type StepKind string

const (
	StepKindAction   StepKind = "action"
	StepKindSubTask  StepKind = "sub_task"
	StepKindDecision StepKind = "decision"
	StepKindLoop     StepKind = "loop"
)

type PreconditionKind string

const (
	PreconditionHard PreconditionKind = "hard"
	PreconditionSoft PreconditionKind = "soft"
)

type Precondition struct {
	Kind              PreconditionKind `json:"kind"`
	Check             string           `json:"check"`
	RemediationTaskID string           `json:"remediation_task_id,omitempty"`
}

type Postcondition struct {
	Effect string `json:"effect"`
	Verify string `json:"verify,omitempty"`
}

// Step is a tagged variant: exactly one of the reference fields is meaningful
// for a given Kind. Dispatch matches the tag, never inspects types.
type Step struct {
	Kind          StepKind        `json:"kind"`
	ActionID      string          `json:"action_id,omitempty"`    // kind=action
	SubTaskID     string          `json:"sub_task_id,omitempty"`  // kind=sub_task
	Condition     string          `json:"condition,omitempty"`    // kind=decision
	LoopTaskID    string          `json:"loop_task_id,omitempty"` // kind=loop
	Preconditions []Precondition  `json:"preconditions,omitempty"`
	Postconditions []Postcondition `json:"postconditions,omitempty"`
}

type Volatility string

const (
	VolatilityHigh   Volatility = "high"
	VolatilityMedium Volatility = "medium"
	VolatilityLow    Volatility = "low"
)

type IOField struct {
	Name       string     `json:"name"`
	Volatility Volatility `json:"volatility,omitempty"` // inputs only
}

type IOSpec struct {
	Inputs  []IOField `json:"inputs,omitempty"`
	Outputs []IOField `json:"outputs,omitempty"`
}

// IteratorSpec keeps repetition metadata on the task itself so iteration never
// materializes as a cycle in the navigation graph.
type IteratorSpec struct {
	ItemsSource    string `json:"items_source"`
	MaxIterations  int    `json:"max_iterations"`
	BreakCondition string `json:"break_condition,omitempty"`
}

// Task is a named goal-oriented workflow. Natural key: site_id + name.
type Task struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SiteID       string         `gorm:"column:site_id;not null;index;uniqueIndex:idx_task_site_name" json:"site_id"`
	Name         string         `gorm:"column:name;not null;uniqueIndex:idx_task_site_name" json:"name"`
	Description  string         `gorm:"column:description" json:"description,omitempty"`
	Steps        datatypes.JSON `gorm:"column:steps;type:jsonb" json:"steps"`
	IOSpec       datatypes.JSON `gorm:"column:io_spec;type:jsonb" json:"io_spec"`
	Iterator     datatypes.JSON `gorm:"column:iterator;type:jsonb" json:"iterator,omitempty"`
	GraphPending bool           `gorm:"column:graph_pending;not null;default:false;index" json:"graph_pending"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Task) TableName() string { return "task" }

func (t *Task) DecodeSteps() ([]Step, error) {
	var steps []Step
	if len(t.Steps) == 0 {
		return steps, nil
	}
	err := json.Unmarshal(t.Steps, &steps)
	return steps, err
}

func (t *Task) DecodeIterator() (*IteratorSpec, error) {
	if len(t.Iterator) == 0 || string(t.Iterator) == "null" {
		return nil, nil
	}
	var it IteratorSpec
	if err := json.Unmarshal(t.Iterator, &it); err != nil {
		return nil, err
	}
	return &it, nil
}
