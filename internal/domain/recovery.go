package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScreenGroup clusters screens that share a recovery strategy, e.g. every
// screen behind authentication. Natural key: site_id + name.
type ScreenGroup struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SiteID      string         `gorm:"column:site_id;not null;index;uniqueIndex:idx_group_site_name" json:"site_id"`
	Name        string         `gorm:"column:name;not null;uniqueIndex:idx_group_site_name" json:"name"`
	Description string         `gorm:"column:description" json:"description,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ScreenGroup) TableName() string { return "screen_group" }

type GroupMembership struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GroupID   uuid.UUID `gorm:"type:uuid;column:group_id;not null;index;uniqueIndex:idx_membership_nk" json:"group_id"`
	ScreenID  uuid.UUID `gorm:"type:uuid;column:screen_id;not null;index;uniqueIndex:idx_membership_nk" json:"screen_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (GroupMembership) TableName() string { return "group_membership" }

// RecoveryEdge points from a group to a candidate recovery screen. Edges
// originate only from groups; priority 1 is tried first and priorities are
// distinct within a group (unique index on group_id + priority).
type RecoveryEdge struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GroupID        uuid.UUID `gorm:"type:uuid;column:group_id;not null;index;uniqueIndex:idx_recovery_priority" json:"group_id"`
	TargetScreenID uuid.UUID `gorm:"type:uuid;column:target_screen_id;not null;index" json:"target_screen_id"`
	Priority       int       `gorm:"column:priority;not null;uniqueIndex:idx_recovery_priority" json:"priority"`
	RecoveryType   string    `gorm:"column:recovery_type;not null" json:"recovery_type"` // safe_harbor, quick_fix, reauth
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

func (RecoveryEdge) TableName() string { return "recovery_edge" }
