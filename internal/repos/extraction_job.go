package repos

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/uinav/appgraph-backend/internal/domain"
	"github.com/uinav/appgraph-backend/internal/platform/logger"
)

type ExtractionJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *types.ExtractionJob) (*types.ExtractionJob, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ExtractionJob, error)
	ListBySite(ctx context.Context, tx *gorm.DB, siteID string, limit int) ([]*types.ExtractionJob, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	SetPhase(ctx context.Context, tx *gorm.DB, id uuid.UUID, phase types.JobPhase) error
	MergeCounts(ctx context.Context, tx *gorm.DB, id uuid.UUID, counts map[string]int) error
	AppendErrors(ctx context.Context, tx *gorm.DB, id uuid.UUID, errs []string) error
	RequestCancel(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	IncrementAttempts(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type extractionJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExtractionJobRepo(db *gorm.DB, baseLog *logger.Logger) ExtractionJobRepo {
	return &extractionJobRepo{db: db, log: baseLog.With("repo", "ExtractionJobRepo")}
}

func (r *extractionJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.ExtractionJob) (*types.ExtractionJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if job == nil || job.SiteID == "" {
		return nil, gorm.ErrInvalidData
	}
	now := time.Now().UTC()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = types.JobStatusQueued
	}
	if job.Phase == "" {
		job.Phase = types.PhaseQueued
	}
	if len(job.Counts) == 0 {
		job.Counts = datatypes.JSON([]byte("{}"))
	}
	if len(job.Errors) == 0 {
		job.Errors = datatypes.JSON([]byte("[]"))
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = now
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	if err := transaction.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *extractionJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ExtractionJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.ExtractionJob
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *extractionJobRepo) ListBySite(ctx context.Context, tx *gorm.DB, siteID string, limit int) ([]*types.ExtractionJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ExtractionJob
	if siteID == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if err := transaction.WithContext(ctx).
		Where("site_id = ?", siteID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *extractionJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.ExtractionJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *extractionJobRepo) SetPhase(ctx context.Context, tx *gorm.DB, id uuid.UUID, phase types.JobPhase) error {
	return r.UpdateFields(ctx, tx, id, map[string]interface{}{"phase": phase})
}

// MergeCounts adds the supplied per-phase counts onto whatever is already
// recorded, so re-run stages overwrite their own slot rather than duplicating.
func (r *extractionJobRepo) MergeCounts(ctx context.Context, tx *gorm.DB, id uuid.UUID, counts map[string]int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(counts) == 0 {
		return nil
	}
	job, err := r.GetByID(ctx, transaction, id)
	if err != nil {
		return err
	}
	if job == nil {
		return gorm.ErrRecordNotFound
	}
	merged := job.DecodeCounts()
	for k, v := range counts {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	return r.UpdateFields(ctx, transaction, id, map[string]interface{}{"counts": datatypes.JSON(raw)})
}

func (r *extractionJobRepo) AppendErrors(ctx context.Context, tx *gorm.DB, id uuid.UUID, errs []string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(errs) == 0 {
		return nil
	}
	job, err := r.GetByID(ctx, transaction, id)
	if err != nil {
		return err
	}
	if job == nil {
		return gorm.ErrRecordNotFound
	}
	all := append(job.DecodeErrors(), errs...)
	raw, err := json.Marshal(all)
	if err != nil {
		return err
	}
	return r.UpdateFields(ctx, transaction, id, map[string]interface{}{"errors": datatypes.JSON(raw)})
}

func (r *extractionJobRepo) RequestCancel(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.UpdateFields(ctx, tx, id, map[string]interface{}{"cancel_requested": true})
}

func (r *extractionJobRepo) IncrementAttempts(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.UpdateFields(ctx, tx, id, map[string]interface{}{"attempts": gorm.Expr("attempts + 1")})
}
