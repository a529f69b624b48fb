package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account is the authenticated customer that owns a token balance.
type Account struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name                string    `gorm:"column:name;not null"`
	Email               string    `gorm:"column:email;type:text;not null;uniqueIndex"`
	TokenCount          int       `gorm:"column:token_count;not null;default:0"`
	IsMissingOnboarding bool      `gorm:"column:is_missing_onboarding;not null;default:true"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Account) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// IndividualProfile carries the CPF billing identity of a person.
type IndividualProfile struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID uuid.UUID `gorm:"column:account_id;type:uuid;not null;uniqueIndex"`
	CPF       string    `gorm:"column:cpf;not null"`
	Phone     *string   `gorm:"column:phone"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *IndividualProfile) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// CorporateProfile carries the CNPJ billing identity of a company.
type CorporateProfile struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID   uuid.UUID `gorm:"column:account_id;type:uuid;not null;uniqueIndex"`
	CNPJ        string    `gorm:"column:cnpj;not null"`
	CompanyName string    `gorm:"column:company_name;not null"`
	Phone       *string   `gorm:"column:phone"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *CorporateProfile) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
