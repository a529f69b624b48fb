package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/internal/repo"
	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
	"github.com/sherlocker/sherlocker-backend/pkg/pagination"
)

// Repository manages persistence for token transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.TokenTransaction) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, page pagination.Page) ([]models.TokenTransaction, int64, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, entry *models.TokenTransaction) error {
	return r.DB(ctx).Create(entry).Error
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID, page pagination.Page) ([]models.TokenTransaction, int64, error) {
	var total int64
	if err := r.DB(ctx).
		Model(&models.TokenTransaction{}).
		Where("account_id = ?", accountID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.TokenTransaction
	if err := r.DB(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(page.Offset()).
		Limit(page.PerPage).
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
