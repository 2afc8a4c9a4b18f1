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

type TaskRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, task *types.Task) (UpsertOutcome, *types.Task, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Task, error)
	GetByNaturalKey(ctx context.Context, tx *gorm.DB, siteID, name string) (*types.Task, error)
	ListBySite(ctx context.Context, tx *gorm.DB, siteID string) ([]*types.Task, error)
	SetGraphPending(ctx context.Context, tx *gorm.DB, id uuid.UUID, pending bool) error
}

type taskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return &taskRepo{db: db, log: baseLog.With("repo", "TaskRepo")}
}

func (r *taskRepo) Upsert(ctx context.Context, tx *gorm.DB, task *types.Task) (UpsertOutcome, *types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if task == nil || task.SiteID == "" || task.Name == "" {
		return OutcomeFailed, nil, gorm.ErrInvalidData
	}

	existing, err := r.GetByNaturalKey(ctx, transaction, task.SiteID, task.Name)
	if err != nil {
		return OutcomeFailed, nil, err
	}

	now := time.Now().UTC()
	if existing == nil {
		if task.ID == uuid.Nil {
			task.ID = uuid.New()
		}
		task.CreatedAt = now
		task.UpdatedAt = now
		err := transaction.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "site_id"}, {Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"description", "steps", "io_spec", "iterator", "updated_at",
				}),
			}).
			Create(task).Error
		if err != nil {
			return OutcomeFailed, nil, err
		}
		return OutcomeCreated, task, nil
	}

	if existing.Description == task.Description &&
		bytes.Equal(existing.Steps, task.Steps) &&
		bytes.Equal(existing.IOSpec, task.IOSpec) &&
		bytes.Equal(existing.Iterator, task.Iterator) {
		task.ID = existing.ID
		return OutcomeUnchanged, existing, nil
	}

	if err := transaction.WithContext(ctx).
		Model(&types.Task{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"description": task.Description,
			"steps":       task.Steps,
			"io_spec":     task.IOSpec,
			"iterator":    task.Iterator,
			"updated_at":  now,
		}).Error; err != nil {
		return OutcomeFailed, nil, err
	}
	task.ID = existing.ID
	task.CreatedAt = existing.CreatedAt
	task.UpdatedAt = now
	return OutcomeUpdated, task, nil
}

func (r *taskRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Task
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

func (r *taskRepo) GetByNaturalKey(ctx context.Context, tx *gorm.DB, siteID, name string) (*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var task types.Task
	err := transaction.WithContext(ctx).
		Where("site_id = ? AND name = ?", siteID, name).
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepo) ListBySite(ctx context.Context, tx *gorm.DB, siteID string) ([]*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Task
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

func (r *taskRepo) SetGraphPending(ctx context.Context, tx *gorm.DB, id uuid.UUID, pending bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Task{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"graph_pending": pending,
			"updated_at":    time.Now().UTC(),
		}).Error
}
