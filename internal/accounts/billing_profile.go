package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultClientName     = "Unknown"
	DefaultClientPhone    = "(00) 00000-0000"
	DefaultClientDocument = "000.000.000-00"
)

// BillingProfile is the payer identity sent to the payment gateway.
type BillingProfile struct {
	Name     string
	Email    string
	Phone    string
	Document string
}

// ResolveBillingProfile builds the payer identity of an account. An individual
// profile (CPF) wins over a corporate one (CNPJ); missing values fall back to
// gateway-safe placeholders.
func ResolveBillingProfile(ctx context.Context, repo Repository, accountID uuid.UUID) (*BillingProfile, error) {
	account, err := repo.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return nil, nil
	}

	profile := &BillingProfile{
		Name:  fallback(account.Name, DefaultClientName),
		Email: account.Email,
	}

	individual, err := repo.FindIndividualProfile(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load individual profile: %w", err)
	}
	if individual != nil {
		profile.Document = individual.CPF
		if individual.Phone != nil {
			profile.Phone = *individual.Phone
		}
	} else {
		corporate, err := repo.FindCorporateProfile(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("load corporate profile: %w", err)
		}
		if corporate != nil {
			profile.Document = corporate.CNPJ
			if corporate.Phone != nil {
				profile.Phone = *corporate.Phone
			}
		}
	}

	profile.Phone = fallback(profile.Phone, DefaultClientPhone)
	profile.Document = fallback(profile.Document, DefaultClientDocument)
	return profile, nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
