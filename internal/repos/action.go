package repos

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/uinav/appgraph-backend/internal/domain"
	"github.com/uinav/appgraph-backend/internal/platform/logger"
)

type ActionRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, action *types.Action) (UpsertOutcome, *types.Action, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Action, error)
	ListBySite(ctx context.Context, tx *gorm.DB, siteID string) ([]*types.Action, error)
	ListByScreen(ctx context.Context, tx *gorm.DB, screenID uuid.UUID) ([]*types.Action, error)
	SetGraphPending(ctx context.Context, tx *gorm.DB, id uuid.UUID, pending bool) error
}

type actionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActionRepo(db *gorm.DB, baseLog *logger.Logger) ActionRepo {
	return &actionRepo{db: db, log: baseLog.With("repo", "ActionRepo")}
}

func (r *actionRepo) Upsert(ctx context.Context, tx *gorm.DB, action *types.Action) (UpsertOutcome, *types.Action, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if action == nil || action.SiteID == "" || action.Name == "" || action.ScreenID == uuid.Nil {
		return OutcomeFailed, nil, gorm.ErrInvalidData
	}

	var existing types.Action
	err := transaction.WithContext(ctx).
		Where("site_id = ? AND screen_id = ? AND name = ?", action.SiteID, action.ScreenID, action.Name).
		First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return OutcomeFailed, nil, err
	}

	now := time.Now().UTC()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if action.ID == uuid.Nil {
			action.ID = uuid.New()
		}
		action.CreatedAt = now
		action.UpdatedAt = now
		err := transaction.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "site_id"}, {Name: "screen_id"}, {Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"element_name", "steps", "preconditions", "postconditions", "retry", "updated_at",
				}),
			}).
			Create(action).Error
		if err != nil {
			return OutcomeFailed, nil, err
		}
		return OutcomeCreated, action, nil
	}

	if existing.ElementName == action.ElementName &&
		bytes.Equal(existing.Steps, action.Steps) &&
		bytes.Equal(existing.Preconditions, action.Preconditions) &&
		bytes.Equal(existing.Postconditions, action.Postconditions) &&
		bytes.Equal(existing.Retry, action.Retry) {
		action.ID = existing.ID
		return OutcomeUnchanged, &existing, nil
	}

	if err := transaction.WithContext(ctx).
		Model(&types.Action{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"element_name":   action.ElementName,
			"steps":          action.Steps,
			"preconditions":  action.Preconditions,
			"postconditions": action.Postconditions,
			"retry":          action.Retry,
			"updated_at":     now,
		}).Error; err != nil {
		return OutcomeFailed, nil, err
	}
	action.ID = existing.ID
	action.CreatedAt = existing.CreatedAt
	action.UpdatedAt = now
	return OutcomeUpdated, action, nil
}

func (r *actionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Action, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Action
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *actionRepo) ListBySite(ctx context.Context, tx *gorm.DB, siteID string) ([]*types.Action, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Action
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

func (r *actionRepo) ListByScreen(ctx context.Context, tx *gorm.DB, screenID uuid.UUID) ([]*types.Action, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Action
	if screenID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("screen_id = ?", screenID).
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *actionRepo) SetGraphPending(ctx context.Context, tx *gorm.DB, id uuid.UUID, pending bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Action{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"graph_pending": pending,
			"updated_at":    time.Now().UTC(),
		}).Error
}
