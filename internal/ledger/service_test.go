package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sherlocker/sherlocker-backend/internal/accounts"
	"github.com/sherlocker/sherlocker-backend/pkg/db/dbtest"
	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
	"github.com/sherlocker/sherlocker-backend/pkg/enums"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(conn),
		Accounts:          accounts.NewRepository(conn),
		TransactionRunner: dbtest.Runner{DB: conn},
	})
	require.NoError(t, err)
	return svc, conn
}

func ledgerEntries(t *testing.T, conn *gorm.DB, accountID uuid.UUID) []models.TokenTransaction {
	t.Helper()
	var rows []models.TokenTransaction
	require.NoError(t, conn.Where("account_id = ?", accountID).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func tokenCount(t *testing.T, conn *gorm.DB, accountID uuid.UUID) int {
	t.Helper()
	var account models.Account
	require.NoError(t, conn.Where("id = ?", accountID).First(&account).Error)
	return account.TokenCount
}

func TestCheckAvailability(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	account := dbtest.SeedAccount(t, conn, 5)

	require.NoError(t, svc.CheckAvailability(ctx, account.ID, 5))

	err := svc.CheckAvailability(ctx, account.ID, 6)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientTokens))

	err = svc.CheckAvailability(ctx, uuid.New(), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeductAppendsEntryAndUpdatesBalance(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	account := dbtest.SeedAccount(t, conn, 150)

	after, err := svc.Deduct(ctx, account.ID, 1, enums.SearchTypeCPF)
	require.NoError(t, err)
	assert.Equal(t, 149, after)
	assert.Equal(t, 149, tokenCount(t, conn, account.ID))

	entries := ledgerEntries(t, conn, account.ID)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, enums.TokenTransactionDeduction, entry.Type)
	assert.Equal(t, 1, entry.Amount)
	assert.Equal(t, 150, entry.BalanceBefore)
	assert.Equal(t, 149, entry.BalanceAfter)
	require.NotNil(t, entry.SearchType)
	assert.Equal(t, enums.SearchTypeCPF, *entry.SearchType)
	require.NotNil(t, entry.Description)
	assert.Equal(t, "Token deduction for CPF search", *entry.Description)
}

func TestDeductRejectsInvalidInput(t *testing.T) {
	svc, conn := newTestService(t)
	account := dbtest.SeedAccount(t, conn, 10)

	_, err := svc.Deduct(context.Background(), account.ID, 0, enums.SearchTypeCPF)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBadRequest))

	_, err = svc.Deduct(context.Background(), account.ID, 1, enums.SearchType("PLATE"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBadRequest))

	_, err = svc.Deduct(context.Background(), uuid.New(), 1, enums.SearchTypeCPF)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Empty(t, ledgerEntries(t, conn, account.ID))
}

func TestResetSetsAbsoluteBalance(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	account := dbtest.SeedAccount(t, conn, 37)

	require.NoError(t, svc.Reset(ctx, account.ID, 150))
	assert.Equal(t, 150, tokenCount(t, conn, account.ID))

	entries := ledgerEntries(t, conn, account.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, enums.TokenTransactionReset, entries[0].Type)
	assert.Equal(t, 37, entries[0].BalanceBefore)
	assert.Equal(t, 150, entries[0].BalanceAfter)
	assert.Equal(t, 150, entries[0].Amount)
	assert.Nil(t, entries[0].SearchType)
}

func TestResetWithTxRollsBackWithEnclosingTransaction(t *testing.T) {
	svc, conn := newTestService(t)
	account := dbtest.SeedAccount(t, conn, 20)
	boom := errors.New("activation failed")

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.ResetWithTx(context.Background(), tx, account.ID, 600); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 20, tokenCount(t, conn, account.ID))
	assert.Empty(t, ledgerEntries(t, conn, account.ID))
}

func TestBalanceAndListTransactions(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	account := dbtest.SeedAccount(t, conn, 0)

	require.NoError(t, svc.Reset(ctx, account.ID, 15))
	for i := 0; i < 11; i++ {
		_, err := svc.Deduct(ctx, account.ID, 1, enums.SearchTypeEmail)
		require.NoError(t, err)
	}

	balance, err := svc.Balance(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, balance.TokenCount)
	assert.Equal(t, "You have 4 tokens available", balance.Message)

	first, err := svc.ListTransactions(ctx, account.ID, 1)
	require.NoError(t, err)
	assert.Len(t, first.Transactions, 10)
	assert.Equal(t, int64(12), first.Pagination.Total)
	assert.Equal(t, 2, first.Pagination.TotalPages)

	second, err := svc.ListTransactions(ctx, account.ID, 2)
	require.NoError(t, err)
	assert.Len(t, second.Transactions, 2)

	_, err = svc.Balance(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMeterChargesOnlySuccessfulLookups(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	broke := dbtest.SeedAccount(t, conn, 0)
	called := false
	err := svc.Meter(ctx, broke.ID, enums.SearchTypeCPF, 1, func(context.Context) error {
		called = true
		return nil
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientTokens))
	assert.False(t, called)
	assert.Empty(t, ledgerEntries(t, conn, broke.ID))
	assert.Equal(t, 0, tokenCount(t, conn, broke.ID))

	funded := dbtest.SeedAccount(t, conn, 3)
	lookupErr := errors.New("upstream down")
	err = svc.Meter(ctx, funded.ID, enums.SearchTypePhone, 1, func(context.Context) error { return lookupErr })
	require.ErrorIs(t, err, lookupErr)
	assert.Equal(t, 3, tokenCount(t, conn, funded.ID))

	require.NoError(t, svc.Meter(ctx, funded.ID, enums.SearchTypePhone, 1, func(context.Context) error { return nil }))
	assert.Equal(t, 2, tokenCount(t, conn, funded.ID))
}

func TestMeterUsesConfiguredCostPerSearch(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(conn),
		Accounts:          accounts.NewRepository(conn),
		TransactionRunner: dbtest.Runner{DB: conn},
		CostPerSearch:     2,
	})
	require.NoError(t, err)
	ctx := context.Background()

	account := dbtest.SeedAccount(t, conn, 5)
	require.NoError(t, svc.Meter(ctx, account.ID, enums.SearchTypeCPF, 0, func(context.Context) error { return nil }))
	assert.Equal(t, 3, tokenCount(t, conn, account.ID))

	entries := ledgerEntries(t, conn, account.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Amount)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}

func TestMeterRechecksBalanceUnderLock(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	account := dbtest.SeedAccount(t, conn, 1)

	// A second search by the same account completes while the first lookup runs.
	err := svc.Meter(ctx, account.ID, enums.SearchTypeCPF, 1, func(ctx context.Context) error {
		return svc.Meter(ctx, account.ID, enums.SearchTypeCPF, 1, func(context.Context) error { return nil })
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientTokens))
	assert.Equal(t, 0, tokenCount(t, conn, account.ID))

	entries := ledgerEntries(t, conn, account.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].BalanceBefore)
	assert.Equal(t, 0, entries[0].BalanceAfter)
}
