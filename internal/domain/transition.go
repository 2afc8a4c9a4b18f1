package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Transition is a directed edge between two Screens triggered by an Action.
// Invariants enforced at persist time: endpoints exist, reliability in [0,1],
// cost >= 0. Natural key: site_id + from + to + action.
type Transition struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SiteID       string         `gorm:"column:site_id;not null;index;uniqueIndex:idx_transition_nk" json:"site_id"`
	FromScreenID uuid.UUID      `gorm:"type:uuid;column:from_screen_id;not null;index;uniqueIndex:idx_transition_nk" json:"from_screen_id"`
	ToScreenID   uuid.UUID      `gorm:"type:uuid;column:to_screen_id;not null;index;uniqueIndex:idx_transition_nk" json:"to_screen_id"`
	ActionID     *uuid.UUID     `gorm:"type:uuid;column:action_id;uniqueIndex:idx_transition_nk" json:"action_id,omitempty"`
	Conditions   datatypes.JSON `gorm:"column:conditions;type:jsonb" json:"conditions,omitempty"`
	Effects      datatypes.JSON `gorm:"column:effects;type:jsonb" json:"effects,omitempty"`
	CostMS       int64          `gorm:"column:cost_ms;not null;default:0" json:"cost_ms"`
	Reliability  float64        `gorm:"column:reliability;not null;default:1" json:"reliability"`
	UsageCount   int64          `gorm:"column:usage_count;not null;default:0" json:"usage_count"`
	GraphPending bool           `gorm:"column:graph_pending;not null;default:false;index" json:"graph_pending"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Transition) TableName() string { return "transition" }
