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

type TransitionRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, tr *types.Transition) (UpsertOutcome, *types.Transition, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Transition, error)
	ListBySite(ctx context.Context, tx *gorm.DB, siteID string) ([]*types.Transition, error)
	ListFromScreen(ctx context.Context, tx *gorm.DB, screenID uuid.UUID) ([]*types.Transition, error)
	BumpUsage(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
	SetGraphPending(ctx context.Context, tx *gorm.DB, id uuid.UUID, pending bool) error
}

type transitionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTransitionRepo(db *gorm.DB, baseLog *logger.Logger) TransitionRepo {
	return &transitionRepo{db: db, log: baseLog.With("repo", "TransitionRepo")}
}

func (r *transitionRepo) Upsert(ctx context.Context, tx *gorm.DB, tr *types.Transition) (UpsertOutcome, *types.Transition, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if tr == nil || tr.SiteID == "" || tr.FromScreenID == uuid.Nil || tr.ToScreenID == uuid.Nil {
		return OutcomeFailed, nil, gorm.ErrInvalidData
	}
	if tr.Reliability < 0 || tr.Reliability > 1 {
		return OutcomeFailed, nil, gorm.ErrInvalidData
	}
	if tr.CostMS < 0 {
		return OutcomeFailed, nil, gorm.ErrInvalidData
	}

	q := transaction.WithContext(ctx).
		Where("site_id = ? AND from_screen_id = ? AND to_screen_id = ?", tr.SiteID, tr.FromScreenID, tr.ToScreenID)
	if tr.ActionID != nil {
		q = q.Where("action_id = ?", *tr.ActionID)
	} else {
		q = q.Where("action_id IS NULL")
	}
	var existing types.Transition
	err := q.First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return OutcomeFailed, nil, err
	}

	now := time.Now().UTC()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if tr.ID == uuid.Nil {
			tr.ID = uuid.New()
		}
		tr.CreatedAt = now
		tr.UpdatedAt = now
		err := transaction.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "site_id"}, {Name: "from_screen_id"}, {Name: "to_screen_id"}, {Name: "action_id"},
				},
				DoUpdates: clause.AssignmentColumns([]string{
					"conditions", "effects", "cost_ms", "reliability", "updated_at",
				}),
			}).
			Create(tr).Error
		if err != nil {
			return OutcomeFailed, nil, err
		}
		return OutcomeCreated, tr, nil
	}

	if existing.CostMS == tr.CostMS && existing.Reliability == tr.Reliability &&
		string(existing.Conditions) == string(tr.Conditions) &&
		string(existing.Effects) == string(tr.Effects) {
		tr.ID = existing.ID
		return OutcomeUnchanged, &existing, nil
	}

	if err := transaction.WithContext(ctx).
		Model(&types.Transition{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"conditions":  tr.Conditions,
			"effects":     tr.Effects,
			"cost_ms":     tr.CostMS,
			"reliability": tr.Reliability,
			"updated_at":  now,
		}).Error; err != nil {
		return OutcomeFailed, nil, err
	}
	tr.ID = existing.ID
	tr.CreatedAt = existing.CreatedAt
	tr.UsageCount = existing.UsageCount
	tr.UpdatedAt = now
	return OutcomeUpdated, tr, nil
}

func (r *transitionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Transition, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Transition
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

func (r *transitionRepo) ListBySite(ctx context.Context, tx *gorm.DB, siteID string) ([]*types.Transition, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Transition
	if siteID == "" {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("site_id = ?", siteID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *transitionRepo) ListFromScreen(ctx context.Context, tx *gorm.DB, screenID uuid.UUID) ([]*types.Transition, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Transition
	if screenID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("from_screen_id = ?", screenID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *transitionRepo) BumpUsage(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Transition{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"usage_count": gorm.Expr("usage_count + 1"),
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *transitionRepo) SetGraphPending(ctx context.Context, tx *gorm.DB, id uuid.UUID, pending bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Transition{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"graph_pending": pending,
			"updated_at":    time.Now().UTC(),
		}).Error
}
