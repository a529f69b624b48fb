package plans

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/internal/repo"
	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
)

// Repository reads the plan catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	ListActive(ctx context.Context) ([]models.Plan, error)
	FindFreePlan(ctx context.Context) (*models.Plan, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a plan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	return repo.First[models.Plan](r.DB(ctx).Where("id = ?", id))
}

func (r *repository) ListActive(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	if err := r.DB(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

// FindFreePlan returns the active plan flagged as free, falling back to an
// active zero-priced plan for catalogs that predate the flag.
func (r *repository) FindFreePlan(ctx context.Context) (*models.Plan, error) {
	plan, err := repo.First[models.Plan](r.DB(ctx).
		Where("is_active = ? AND is_free = ?", true, true).
		Order("created_at ASC"))
	if err != nil || plan != nil {
		return plan, err
	}
	return repo.First[models.Plan](r.DB(ctx).
		Where("is_active = ? AND amount = ?", true, 0).
		Order("created_at ASC"))
}
