package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ExecutionStep struct {
	Kind     string      `json:"kind"` // click, fill, select, wait, navigate
	Selector SelectorRef `json:"selector,omitempty"`
	Value    string      `json:"value,omitempty"`
}

// RetryPolicy is the per-action error-handling policy.
type RetryPolicy struct {
	MaxAttempts       int      `json:"max_attempts"`
	BackoffBaseMS     int      `json:"backoff_base_ms"`
	FallbackActionIDs []string `json:"fallback_action_ids,omitempty"`
	RecoveryTaskID    string   `json:"recovery_task_id,omitempty"`
}

// Action is an atomic operation bound to one Screen and optionally one of its
// elements. Natural key: site_id + screen_id + name.
type Action struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SiteID         string         `gorm:"column:site_id;not null;index;uniqueIndex:idx_action_site_screen_name" json:"site_id"`
	ScreenID       uuid.UUID      `gorm:"type:uuid;column:screen_id;not null;index;uniqueIndex:idx_action_site_screen_name" json:"screen_id"`
	Name           string         `gorm:"column:name;not null;uniqueIndex:idx_action_site_screen_name" json:"name"`
	ElementName    string         `gorm:"column:element_name" json:"element_name,omitempty"`
	Steps          datatypes.JSON `gorm:"column:steps;type:jsonb" json:"steps"`
	Preconditions  datatypes.JSON `gorm:"column:preconditions;type:jsonb" json:"preconditions,omitempty"`
	Postconditions datatypes.JSON `gorm:"column:postconditions;type:jsonb" json:"postconditions,omitempty"`
	Retry          datatypes.JSON `gorm:"column:retry;type:jsonb" json:"retry,omitempty"`
	GraphPending   bool           `gorm:"column:graph_pending;not null;default:false;index" json:"graph_pending"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Action) TableName() string { return "action" }

func (a *Action) DecodeSteps() ([]ExecutionStep, error) {
	var steps []ExecutionStep
	if len(a.Steps) == 0 {
		return steps, nil
	}
	err := json.Unmarshal(a.Steps, &steps)
	return steps, err
}

func (a *Action) DecodeRetry() (RetryPolicy, error) {
	var rp RetryPolicy
	if len(a.Retry) == 0 {
		return rp, nil
	}
	err := json.Unmarshal(a.Retry, &rp)
	return rp, err
}
