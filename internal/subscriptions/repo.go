package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/internal/repo"
	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
	"github.com/sherlocker/sherlocker-backend/pkg/enums"
)

// Repository persists subscriptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindActiveByAccount(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error)
	Save(ctx context.Context, sub *models.Subscription) error
	Delete(ctx context.Context, id uuid.UUID) error
	// CancelOtherActive cancels every ACTIVE subscription of the account
	// except keepID and returns the number of rows changed.
	CancelOtherActive(ctx context.Context, accountID, keepID uuid.UUID, at time.Time) (int64, error)
	// ListDueForCharge returns ACTIVE subscriptions on paid plans whose next
	// payment date is at or before cutoff.
	ListDueForCharge(ctx context.Context, cutoff time.Time) ([]models.Subscription, error)
	ListActive(ctx context.Context) ([]models.Subscription, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.DB(ctx).Create(sub).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return repo.First[models.Subscription](r.DB(ctx).Where("id = ?", id))
}

func (r *repository) FindActiveByAccount(ctx context.Context, accountID uuid.UUID) (*models.Subscription, error) {
	return repo.First[models.Subscription](r.DB(ctx).
		Where("account_id = ? AND status = ?", accountID, enums.SubscriptionStatusActive).
		Order("created_at DESC"))
}

func (r *repository) Save(ctx context.Context, sub *models.Subscription) error {
	return r.DB(ctx).Save(sub).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&models.Subscription{}).Error
}

func (r *repository) CancelOtherActive(ctx context.Context, accountID, keepID uuid.UUID, at time.Time) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Subscription{}).
		Where("account_id = ? AND status = ? AND id <> ?", accountID, enums.SubscriptionStatusActive, keepID).
		Updates(map[string]any{
			"status":      enums.SubscriptionStatusCanceled,
			"canceled_at": at,
			"updated_at":  at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListDueForCharge(ctx context.Context, cutoff time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.DB(ctx).
		Model(&models.Subscription{}).
		Joins("JOIN plans ON plans.id = subscriptions.plan_id").
		Where("subscriptions.status = ?", enums.SubscriptionStatusActive).
		Where("subscriptions.next_payment_date IS NOT NULL AND subscriptions.next_payment_date <= ?", cutoff).
		Where("plans.is_free = ? AND plans.amount > ?", false, 0).
		Order("subscriptions.next_payment_date ASC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ListActive(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.DB(ctx).
		Where("status = ?", enums.SubscriptionStatusActive).
		Order("created_at ASC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}
