// Package tokens serves the token balance and ledger history.
package tokens

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/sherlocker/sherlocker-backend/api/controllers/accountcontext"
	"github.com/sherlocker/sherlocker-backend/api/responses"
	"github.com/sherlocker/sherlocker-backend/api/validators"
	"github.com/sherlocker/sherlocker-backend/internal/ledger"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
	"github.com/sherlocker/sherlocker-backend/pkg/logger"
)

const maxPage = 10000

// LedgerReader is the read side of the token ledger.
type LedgerReader interface {
	Balance(ctx context.Context, accountID uuid.UUID) (*ledger.BalanceDTO, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, page int) (*ledger.TransactionPage, error)
}

func Balance(svc LedgerReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		accountID, err := accountcontext.ResolveAccountID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		balance, err := svc.Balance(ctx, accountID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// Transactions lists ledger entries newest first, one page at a time.
func Transactions(svc LedgerReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		accountID, err := accountcontext.ResolveAccountID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := validators.ParseQueryInt(r, "page", 1, 1, maxPage)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.ListTransactions(ctx, accountID, page)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
