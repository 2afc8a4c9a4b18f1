package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
	"github.com/uinav/appgraph-backend/internal/platform/logger"
	"github.com/uinav/appgraph-backend/internal/repos"
)

// RecoveryOption is one ordered escape route out of a screen's group.
type RecoveryOption struct {
	GroupID        uuid.UUID `json:"group_id"`
	GroupName      string    `json:"group_name"`
	TargetScreenID uuid.UUID `json:"target_screen_id"`
	TargetName     string    `json:"target_name"`
	Priority       int       `json:"priority"`
	RecoveryType   string    `json:"recovery_type"`
}

type RecoveryService interface {
	Resolve(ctx context.Context, screenID uuid.UUID) ([]RecoveryOption, error)
}

type recoveryService struct {
	db      *gorm.DB
	log     *logger.Logger
	groups  repos.ScreenGroupRepo
	screens repos.ScreenRepo
}

func NewRecoveryService(db *gorm.DB, log *logger.Logger, groups repos.ScreenGroupRepo, screens repos.ScreenRepo) RecoveryService {
	return &recoveryService{
		db:      db,
		log:     log.With("service", "RecoveryService"),
		groups:  groups,
		screens: screens,
	}
}

// Resolve returns every recovery edge of every group the screen belongs to,
// ordered by priority within each group. A screen outside all groups has no
// options, which is a valid answer, not an error.
func (s *recoveryService) Resolve(ctx context.Context, screenID uuid.UUID) ([]RecoveryOption, error) {
	if screenID == uuid.Nil {
		return nil, pkgerr.ErrInvalidArgument
	}
	groups, err := s.groups.GroupsForScreen(ctx, nil, screenID)
	if err != nil {
		return nil, pkgerr.Transient("document", "groups_for_screen", err)
	}
	if len(groups) == 0 {
		return []RecoveryOption{}, nil
	}

	groupIDs := make([]uuid.UUID, 0, len(groups))
	names := make(map[uuid.UUID]string, len(groups))
	for _, g := range groups {
		groupIDs = append(groupIDs, g.ID)
		names[g.ID] = g.Name
	}
	edges, err := s.groups.RecoveryEdgesForGroups(ctx, nil, groupIDs)
	if err != nil {
		return nil, pkgerr.Transient("document", "recovery_edges", err)
	}

	targetIDs := make([]uuid.UUID, 0, len(edges))
	for _, e := range edges {
		targetIDs = append(targetIDs, e.TargetScreenID)
	}
	targets, err := s.screens.GetByIDs(ctx, nil, targetIDs)
	if err != nil {
		return nil, pkgerr.Transient("document", "get_targets", err)
	}
	targetNames := make(map[uuid.UUID]string, len(targets))
	for _, t := range targets {
		targetNames[t.ID] = t.Name
	}

	out := make([]RecoveryOption, 0, len(edges))
	for _, e := range edges {
		name, ok := targetNames[e.TargetScreenID]
		if !ok {
			s.log.Warn("recovery edge targets a missing screen",
				"group_id", e.GroupID, "target_screen_id", e.TargetScreenID)
			continue
		}
		out = append(out, RecoveryOption{
			GroupID:        e.GroupID,
			GroupName:      names[e.GroupID],
			TargetScreenID: e.TargetScreenID,
			TargetName:     name,
			Priority:       e.Priority,
			RecoveryType:   string(e.RecoveryType),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].GroupName != out[j].GroupName {
			return out[i].GroupName < out[j].GroupName
		}
		return out[i].Priority < out[j].Priority
	})
	return out, nil
}
