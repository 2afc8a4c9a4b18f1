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

type ScreenRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, screen *types.Screen) (UpsertOutcome, *types.Screen, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Screen, error)
	GetByNaturalKey(ctx context.Context, tx *gorm.DB, siteID, urlPattern string) (*types.Screen, error)
	ListBySite(ctx context.Context, tx *gorm.DB, siteID string) ([]*types.Screen, error)
	ListGraphPending(ctx context.Context, tx *gorm.DB, siteID string) ([]*types.Screen, error)
	SetGraphPending(ctx context.Context, tx *gorm.DB, id uuid.UUID, pending bool) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type screenRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScreenRepo(db *gorm.DB, baseLog *logger.Logger) ScreenRepo {
	return &screenRepo{db: db, log: baseLog.With("repo", "ScreenRepo")}
}

func (r *screenRepo) Upsert(ctx context.Context, tx *gorm.DB, screen *types.Screen) (UpsertOutcome, *types.Screen, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if screen == nil || screen.SiteID == "" || screen.URLPattern == "" {
		return OutcomeFailed, nil, gorm.ErrInvalidData
	}

	existing, err := r.GetByNaturalKey(ctx, transaction, screen.SiteID, screen.URLPattern)
	if err != nil {
		return OutcomeFailed, nil, err
	}

	now := time.Now().UTC()
	if existing == nil {
		if screen.ID == uuid.Nil {
			screen.ID = uuid.New()
		}
		screen.CreatedAt = now
		screen.UpdatedAt = now
		// Concurrent jobs may race on the same natural key; the conflict
		// clause degrades the second insert into an update.
		err := transaction.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "site_id"}, {Name: "url_pattern"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"name", "signature", "elements", "action_ids", "updated_at",
				}),
			}).
			Create(screen).Error
		if err != nil {
			return OutcomeFailed, nil, err
		}
		return OutcomeCreated, screen, nil
	}

	if existing.Name == screen.Name &&
		bytes.Equal(existing.Signature, screen.Signature) &&
		bytes.Equal(existing.Elements, screen.Elements) &&
		bytes.Equal(existing.ActionIDs, screen.ActionIDs) {
		screen.ID = existing.ID
		return OutcomeUnchanged, existing, nil
	}

	updates := map[string]interface{}{
		"name":       screen.Name,
		"signature":  screen.Signature,
		"elements":   screen.Elements,
		"action_ids": screen.ActionIDs,
		"updated_at": now,
	}
	if err := transaction.WithContext(ctx).
		Model(&types.Screen{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error; err != nil {
		return OutcomeFailed, nil, err
	}
	screen.ID = existing.ID
	screen.CreatedAt = existing.CreatedAt
	screen.UpdatedAt = now
	return OutcomeUpdated, screen, nil
}

func (r *screenRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Screen, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Screen
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

func (r *screenRepo) GetByNaturalKey(ctx context.Context, tx *gorm.DB, siteID, urlPattern string) (*types.Screen, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var screen types.Screen
	err := transaction.WithContext(ctx).
		Where("site_id = ? AND url_pattern = ?", siteID, urlPattern).
		First(&screen).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &screen, nil
}

func (r *screenRepo) ListBySite(ctx context.Context, tx *gorm.DB, siteID string) ([]*types.Screen, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Screen
	if siteID == "" {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("site_id = ?", siteID).
		Order("url_pattern ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *screenRepo) ListGraphPending(ctx context.Context, tx *gorm.DB, siteID string) ([]*types.Screen, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Screen
	q := transaction.WithContext(ctx).Where("graph_pending = ?", true)
	if siteID != "" {
		q = q.Where("site_id = ?", siteID)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *screenRepo) SetGraphPending(ctx context.Context, tx *gorm.DB, id uuid.UUID, pending bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Screen{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"graph_pending": pending,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *screenRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(ctx).
		Model(&types.Screen{}).
		Where("id = ?", id).
		Updates(updates).Error
}
