package plans

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
	"github.com/sherlocker/sherlocker-backend/pkg/enums"
)

// PlanDTO is the public representation of a plan.
type PlanDTO struct {
	ID          uuid.UUID             `json:"id"`
	Name        string                `json:"name"`
	Description *string               `json:"description,omitempty"`
	Amount      int64                 `json:"amount"`
	Price       decimal.Decimal       `json:"price"`
	Periodicity enums.PlanPeriodicity `json:"periodicity"`
	TokenCost   int                   `json:"tokenCost"`
	IsFree      bool                  `json:"isFree"`
}

// Service exposes the plan catalog to the HTTP layer.
type Service interface {
	ListActive(ctx context.Context) ([]PlanDTO, error)
}

type service struct {
	repo Repository
}

// NewService wires a plan service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("plan repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListActive(ctx context.Context) ([]PlanDTO, error) {
	rows, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PlanDTO, 0, len(rows))
	for _, plan := range rows {
		out = append(out, toDTO(plan))
	}
	return out, nil
}

func toDTO(plan models.Plan) PlanDTO {
	return PlanDTO{
		ID:          plan.ID,
		Name:        plan.Name,
		Description: plan.Description,
		Amount:      plan.AmountCents,
		Price:       plan.Price(),
		Periodicity: plan.Periodicity,
		TokenCost:   plan.TokenCost,
		IsFree:      plan.IsFree,
	}
}
