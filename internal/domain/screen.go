package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SelectorRef is one way to locate a UI element.
type SelectorRef struct {
	Strategy string `json:"strategy"` // css, xpath, text, role
	Value    string `json:"value"`
}

// UIElement is a named element descriptor with ordered fallback selectors.
type UIElement struct {
	Name      string        `json:"name"`
	Selector  SelectorRef   `json:"selector"`
	Fallbacks []SelectorRef `json:"fallbacks,omitempty"`
}

// Screen is one distinct application state. Screens are upserted by natural
// key (site_id + url_pattern) and superseded via soft delete, never removed.
type Screen struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SiteID       string         `gorm:"column:site_id;not null;index;uniqueIndex:idx_screen_site_pattern" json:"site_id"`
	URLPattern   string         `gorm:"column:url_pattern;not null;uniqueIndex:idx_screen_site_pattern" json:"url_pattern"`
	Name         string         `gorm:"column:name;not null" json:"name"`
	Signature    datatypes.JSON `gorm:"column:signature;type:jsonb" json:"signature"`
	Elements     datatypes.JSON `gorm:"column:elements;type:jsonb" json:"elements"`
	ActionIDs    datatypes.JSON `gorm:"column:action_ids;type:jsonb" json:"action_ids"`
	GraphPending bool           `gorm:"column:graph_pending;not null;default:false;index" json:"graph_pending"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Screen) TableName() string { return "screen" }

func (s *Screen) DecodeSignature() (StateSignature, error) {
	var sig StateSignature
	if len(s.Signature) == 0 {
		return sig, nil
	}
	err := json.Unmarshal(s.Signature, &sig)
	return sig, err
}

func (s *Screen) DecodeElements() ([]UIElement, error) {
	var els []UIElement
	if len(s.Elements) == 0 {
		return els, nil
	}
	err := json.Unmarshal(s.Elements, &els)
	return els, err
}

func (s *Screen) DecodeActionIDs() []string {
	var ids []string
	if len(s.ActionIDs) == 0 {
		return ids
	}
	_ = json.Unmarshal(s.ActionIDs, &ids)
	return ids
}
