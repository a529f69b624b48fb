package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/pkg/enums"
)

// TokenTransaction is an append-only ledger entry for a balance change.
type TokenTransaction struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID     uuid.UUID                  `gorm:"column:account_id;type:uuid;not null;index"`
	Type          enums.TokenTransactionType `gorm:"column:type;type:token_transaction_type;not null"`
	Amount        int                        `gorm:"column:amount;not null"`
	BalanceBefore int                        `gorm:"column:balance_before;not null"`
	BalanceAfter  int                        `gorm:"column:balance_after;not null"`
	SearchType    *enums.SearchType          `gorm:"column:search_type;type:search_type"`
	Description   *string                    `gorm:"column:description"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (t *TokenTransaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.SearchType != nil {
		if err := enums.Check("search type", *t.SearchType); err != nil {
			return err
		}
	}
	return enums.Check("token transaction type", t.Type)
}
