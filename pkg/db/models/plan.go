package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/pkg/enums"
)

// Plan is a purchasable bundle of tokens renewed every cycle.
type Plan struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string                `gorm:"column:name;not null;uniqueIndex"`
	Description *string               `gorm:"column:description"`
	AmountCents int64                 `gorm:"column:amount;not null"`
	Periodicity enums.PlanPeriodicity `gorm:"column:periodicity;type:plan_periodicity;not null"`
	TokenCost   int                   `gorm:"column:token_cost;not null"`
	IsActive    bool                  `gorm:"column:is_active;not null;default:true"`
	IsFree      bool                  `gorm:"column:is_free;not null;default:false"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Plan) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return enums.Check("plan periodicity", p.Periodicity)
}

// Price returns the amount in major currency units (BRL).
func (p Plan) Price() decimal.Decimal {
	return decimal.New(p.AmountCents, -2)
}

// IsPaid reports whether renewing the plan requires a charge.
func (p Plan) IsPaid() bool {
	return !p.IsFree && p.AmountCents > 0
}
