package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/internal/repo"
	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
	"github.com/sherlocker/sherlocker-backend/pkg/enums"
)

// ChargeDetails holds what the gateway returned for a created charge.
type ChargeDetails struct {
	TransactionID string
	QRCode        string
	CopyPaste     string
	ExpiresAt     *time.Time
}

// Repository persists payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	FindByPixCopyPaste(ctx context.Context, copyPaste string) (*models.Payment, error)
	FindPendingBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Payment, error)
	FindLatestBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Payment, error)
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Payment, error)
	// ListExpiredPending returns PENDING payments created before olderThan.
	ListExpiredPending(ctx context.Context, olderThan time.Time) ([]models.Payment, error)
	AttachCharge(ctx context.Context, id uuid.UUID, details ChargeDetails) error
	Delete(ctx context.Context, id uuid.UUID) error
	// TransitionFromPending moves a PENDING payment to next. It reports false
	// when the payment had already left PENDING.
	TransitionFromPending(ctx context.Context, id uuid.UUID, next enums.PaymentStatus, at time.Time) (bool, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.DB(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return repo.First[models.Payment](r.DB(ctx).Where("id = ?", id))
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return repo.First[models.Payment](r.DB(ctx).Where("transaction_id = ?", transactionID))
}

func (r *repository) FindByPixCopyPaste(ctx context.Context, copyPaste string) (*models.Payment, error) {
	return repo.First[models.Payment](r.DB(ctx).Where("pix_copy_paste = ?", copyPaste).Order("created_at DESC"))
}

func (r *repository) FindPendingBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Payment, error) {
	return repo.First[models.Payment](r.DB(ctx).
		Where("subscription_id = ? AND status = ?", subscriptionID, enums.PaymentStatusPending).
		Order("created_at DESC"))
}

func (r *repository) FindLatestBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Payment, error) {
	return repo.First[models.Payment](r.DB(ctx).Where("subscription_id = ?", subscriptionID).Order("created_at DESC"))
}

func (r *repository) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	if err := r.DB(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListExpiredPending(ctx context.Context, olderThan time.Time) ([]models.Payment, error) {
	var rows []models.Payment
	if err := r.DB(ctx).
		Where("status = ? AND created_at < ?", enums.PaymentStatusPending, olderThan).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) AttachCharge(ctx context.Context, id uuid.UUID, details ChargeDetails) error {
	updates := map[string]any{
		"transaction_id": details.TransactionID,
		"pix_qr_code":    details.QRCode,
		"pix_copy_paste": details.CopyPaste,
		"updated_at":     time.Now().UTC(),
	}
	if details.ExpiresAt != nil {
		updates["expires_at"] = details.ExpiresAt.UTC()
	}
	return repo.RequireRows(r.DB(ctx).Model(&models.Payment{}).Where("id = ?", id).Updates(updates))
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&models.Payment{}).Error
}

func (r *repository) TransitionFromPending(ctx context.Context, id uuid.UUID, next enums.PaymentStatus, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     next,
		"updated_at": at,
	}
	if next == enums.PaymentStatusPaid {
		updates["paid_at"] = at
	}
	res := r.DB(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
