package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/internal/accounts"
	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
	"github.com/sherlocker/sherlocker-backend/pkg/enums"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
	"github.com/sherlocker/sherlocker-backend/pkg/logger"
	"github.com/sherlocker/sherlocker-backend/pkg/pagination"
)

const (
	resetDescription     = "Token reset on subscription renewal"
	defaultCostPerSearch = 1
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines operations on an account's token balance. Every mutation
// appends a TokenTransaction in the same transaction that writes the balance.
type Service interface {
	CheckAvailability(ctx context.Context, accountID uuid.UUID, required int) error
	Deduct(ctx context.Context, accountID uuid.UUID, amount int, searchType enums.SearchType) (int, error)
	Reset(ctx context.Context, accountID uuid.UUID, newAmount int) error
	ResetWithTx(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, newAmount int) error
	Balance(ctx context.Context, accountID uuid.UUID) (*BalanceDTO, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, page int) (*TransactionPage, error)
	// Meter charges cost tokens for one lookup, only when lookup succeeds. A
	// non-positive cost uses the configured cost per search.
	Meter(ctx context.Context, accountID uuid.UUID, searchType enums.SearchType, cost int, lookup func(ctx context.Context) error) error
}

// ServiceParams groups dependencies for the ledger service.
type ServiceParams struct {
	Repo              Repository
	Accounts          accounts.Repository
	TransactionRunner txRunner
	Logger            *logger.Logger
	PerPage           int
	CostPerSearch     int
}

// BalanceDTO is the public balance view.
type BalanceDTO struct {
	TokenCount int    `json:"tokenCount"`
	Message    string `json:"message"`
}

// TransactionDTO is the public view of one ledger entry.
type TransactionDTO struct {
	ID            uuid.UUID                  `json:"id"`
	Type          enums.TokenTransactionType `json:"type"`
	Amount        int                        `json:"amount"`
	BalanceBefore int                        `json:"balanceBefore"`
	BalanceAfter  int                        `json:"balanceAfter"`
	SearchType    *enums.SearchType          `json:"searchType,omitempty"`
	Description   *string                    `json:"description,omitempty"`
	CreatedAt     time.Time                  `json:"createdAt"`
}

// TransactionPage is one page of ledger history.
type TransactionPage struct {
	Transactions []TransactionDTO `json:"transactions"`
	Pagination   pagination.Meta  `json:"pagination"`
}

type service struct {
	repo     Repository
	accounts accounts.Repository
	tx       txRunner
	logg     *logger.Logger
	perPage  int
	cost     int
}

// NewService wires a ledger service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("account repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	cost := params.CostPerSearch
	if cost <= 0 {
		cost = defaultCostPerSearch
	}
	return &service{
		repo:     params.Repo,
		accounts: params.Accounts,
		tx:       params.TransactionRunner,
		logg:     params.Logger,
		perPage:  pagination.NormalizePerPage(params.PerPage),
		cost:     cost,
	}, nil
}

func (s *service) CheckAvailability(ctx context.Context, accountID uuid.UUID, required int) error {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load account")
	}
	if account == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
	}
	if account.TokenCount < required {
		return insufficient(account.TokenCount, required)
	}
	return nil
}

func insufficient(available, required int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientTokens, "Insufficient tokens").
		WithDetails(map[string]int{"available": available, "required": required})
}

func (s *service) Deduct(ctx context.Context, accountID uuid.UUID, amount int, searchType enums.SearchType) (int, error) {
	return s.deduct(ctx, accountID, amount, searchType, false)
}

// deduct records a DEDUCTION under the account row lock. With guarded set the
// balance is checked under that lock, so concurrent metered searches cannot
// take the balance below zero.
func (s *service) deduct(ctx context.Context, accountID uuid.UUID, amount int, searchType enums.SearchType, guarded bool) (int, error) {
	if amount <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeBadRequest, "deduction amount must be positive")
	}
	if !searchType.IsValid() {
		return 0, pkgerrors.Newf(pkgerrors.CodeBadRequest, "invalid search type %q", searchType)
	}

	var after int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		account, err := s.accounts.WithTx(tx).FindByIDForUpdate(ctx, accountID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock account")
		}
		if account == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
		}

		before := account.TokenCount
		if guarded && before < amount {
			return insufficient(before, amount)
		}
		after = before - amount
		description := fmt.Sprintf("Token deduction for %s search", searchType)
		st := searchType
		entry := &models.TokenTransaction{
			AccountID:     accountID,
			Type:          enums.TokenTransactionDeduction,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			SearchType:    &st,
			Description:   &description,
		}
		if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record deduction")
		}
		if err := s.accounts.WithTx(tx).UpdateTokenCount(ctx, accountID, after); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update token count")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"account_id":  accountID.String(),
		"search_type": string(searchType),
		"balance":     after,
	})
	s.logg.Info(logCtx, "tokens deducted")
	return after, nil
}

func (s *service) Reset(ctx context.Context, accountID uuid.UUID, newAmount int) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.ResetWithTx(ctx, tx, accountID, newAmount)
	})
}

func (s *service) ResetWithTx(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, newAmount int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if newAmount < 0 {
		return pkgerrors.New(pkgerrors.CodeBadRequest, "token grant cannot be negative")
	}

	account, err := s.accounts.WithTx(tx).FindByIDForUpdate(ctx, accountID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock account")
	}
	if account == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
	}

	description := resetDescription
	entry := &models.TokenTransaction{
		AccountID:     accountID,
		Type:          enums.TokenTransactionReset,
		Amount:        newAmount,
		BalanceBefore: account.TokenCount,
		BalanceAfter:  newAmount,
		Description:   &description,
	}
	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record reset")
	}
	if err := s.accounts.WithTx(tx).UpdateTokenCount(ctx, accountID, newAmount); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update token count")
	}
	return nil
}

func (s *service) Balance(ctx context.Context, accountID uuid.UUID) (*BalanceDTO, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load account")
	}
	if account == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
	}
	return &BalanceDTO{
		TokenCount: account.TokenCount,
		Message:    fmt.Sprintf("You have %d tokens available", account.TokenCount),
	}, nil
}

func (s *service) ListTransactions(ctx context.Context, accountID uuid.UUID, page int) (*TransactionPage, error) {
	p := pagination.NewPage(page, s.perPage)
	rows, total, err := s.repo.ListByAccount(ctx, accountID, p)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list token transactions")
	}

	out := make([]TransactionDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, TransactionDTO{
			ID:            row.ID,
			Type:          row.Type,
			Amount:        row.Amount,
			BalanceBefore: row.BalanceBefore,
			BalanceAfter:  row.BalanceAfter,
			SearchType:    row.SearchType,
			Description:   row.Description,
			CreatedAt:     row.CreatedAt,
		})
	}
	return &TransactionPage{Transactions: out, Pagination: p.MetaFor(total)}, nil
}

func (s *service) Meter(ctx context.Context, accountID uuid.UUID, searchType enums.SearchType, cost int, lookup func(ctx context.Context) error) error {
	if lookup == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "lookup required")
	}
	if cost <= 0 {
		cost = s.cost
	}
	if err := s.CheckAvailability(ctx, accountID, cost); err != nil {
		return err
	}
	if err := lookup(ctx); err != nil {
		return err
	}
	// Another search may have spent the balance while lookup ran.
	_, err := s.deduct(ctx, accountID, cost, searchType, true)
	return err
}
