package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/uinav/appgraph-backend/internal/domain"
	"github.com/uinav/appgraph-backend/internal/platform/logger"
)

type ScreenGroupRepo interface {
	UpsertGroup(ctx context.Context, tx *gorm.DB, group *types.ScreenGroup) (*types.ScreenGroup, error)
	ReplaceMembers(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, screenIDs []uuid.UUID) error
	ReplaceRecoveryEdges(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, edges []*types.RecoveryEdge) error
	ListBySite(ctx context.Context, tx *gorm.DB, siteID string) ([]*types.ScreenGroup, error)
	GroupsForScreen(ctx context.Context, tx *gorm.DB, screenID uuid.UUID) ([]*types.ScreenGroup, error)
	RecoveryEdgesForGroups(ctx context.Context, tx *gorm.DB, groupIDs []uuid.UUID) ([]*types.RecoveryEdge, error)
}

type screenGroupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScreenGroupRepo(db *gorm.DB, baseLog *logger.Logger) ScreenGroupRepo {
	return &screenGroupRepo{db: db, log: baseLog.With("repo", "ScreenGroupRepo")}
}

func (r *screenGroupRepo) UpsertGroup(ctx context.Context, tx *gorm.DB, group *types.ScreenGroup) (*types.ScreenGroup, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if group == nil || group.SiteID == "" || group.Name == "" {
		return nil, gorm.ErrInvalidData
	}

	var existing types.ScreenGroup
	err := transaction.WithContext(ctx).
		Where("site_id = ? AND name = ?", group.SiteID, group.Name).
		First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if group.ID == uuid.Nil {
			group.ID = uuid.New()
		}
		group.CreatedAt = now
		group.UpdatedAt = now
		if err := transaction.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "site_id"}, {Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"description", "updated_at"}),
			}).
			Create(group).Error; err != nil {
			return nil, err
		}
		return group, nil
	}

	if existing.Description != group.Description {
		if err := transaction.WithContext(ctx).
			Model(&types.ScreenGroup{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"description": group.Description,
				"updated_at":  now,
			}).Error; err != nil {
			return nil, err
		}
	}
	group.ID = existing.ID
	group.CreatedAt = existing.CreatedAt
	return group, nil
}

func (r *screenGroupRepo) ReplaceMembers(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, screenIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if groupID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("group_id = ?", groupID).Delete(&types.GroupMembership{}).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, sid := range screenIDs {
			if sid == uuid.Nil {
				continue
			}
			m := &types.GroupMembership{
				ID:        uuid.New(),
				GroupID:   groupID,
				ScreenID:  sid,
				CreatedAt: now,
			}
			if err := txx.Clauses(clause.OnConflict{DoNothing: true}).Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *screenGroupRepo) ReplaceRecoveryEdges(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, edges []*types.RecoveryEdge) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if groupID == uuid.Nil {
		return nil
	}

	// Priorities must be distinct within a group.
	seen := map[int]bool{}
	for _, e := range edges {
		if e == nil {
			continue
		}
		if seen[e.Priority] {
			return gorm.ErrInvalidData
		}
		seen[e.Priority] = true
	}

	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("group_id = ?", groupID).Delete(&types.RecoveryEdge{}).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, e := range edges {
			if e == nil || e.TargetScreenID == uuid.Nil {
				continue
			}
			if e.ID == uuid.Nil {
				e.ID = uuid.New()
			}
			e.GroupID = groupID
			e.CreatedAt = now
			if err := txx.Create(e).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *screenGroupRepo) ListBySite(ctx context.Context, tx *gorm.DB, siteID string) ([]*types.ScreenGroup, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ScreenGroup
	if siteID == "" {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("site_id = ?", siteID).
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *screenGroupRepo) GroupsForScreen(ctx context.Context, tx *gorm.DB, screenID uuid.UUID) ([]*types.ScreenGroup, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ScreenGroup
	if screenID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Joins("JOIN group_membership ON group_membership.group_id = screen_group.id").
		Where("group_membership.screen_id = ?", screenID).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *screenGroupRepo) RecoveryEdgesForGroups(ctx context.Context, tx *gorm.DB, groupIDs []uuid.UUID) ([]*types.RecoveryEdge, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.RecoveryEdge
	if len(groupIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("group_id IN ?", groupIDs).
		Order("priority ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
