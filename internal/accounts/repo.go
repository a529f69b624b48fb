package accounts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/internal/repo"
	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
)

// Repository reads accounts and their billing identities.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	// FindByIDForUpdate locks the account row until the enclosing transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error)
	UpdateTokenCount(ctx context.Context, id uuid.UUID, tokens int) error
	FindIndividualProfile(ctx context.Context, accountID uuid.UUID) (*models.IndividualProfile, error)
	FindCorporateProfile(ctx context.Context, accountID uuid.UUID) (*models.CorporateProfile, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns an account repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return repo.First[models.Account](r.DB(ctx).Where("id = ?", id))
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return repo.First[models.Account](r.Locked(ctx).Where("id = ?", id))
}

func (r *repository) UpdateTokenCount(ctx context.Context, id uuid.UUID, tokens int) error {
	return repo.RequireRows(r.DB(ctx).Model(&models.Account{}).Where("id = ?", id).Update("token_count", tokens))
}

func (r *repository) FindIndividualProfile(ctx context.Context, accountID uuid.UUID) (*models.IndividualProfile, error) {
	return repo.First[models.IndividualProfile](r.DB(ctx).Where("account_id = ?", accountID))
}

func (r *repository) FindCorporateProfile(ctx context.Context, accountID uuid.UUID) (*models.CorporateProfile, error) {
	return repo.First[models.CorporateProfile](r.DB(ctx).Where("account_id = ?", accountID))
}
