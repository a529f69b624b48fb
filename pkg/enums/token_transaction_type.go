package enums

// TokenTransactionType classifies an entry of the token ledger.
type TokenTransactionType string

const (
	TokenTransactionDeduction TokenTransactionType = "DEDUCTION"
	TokenTransactionReset     TokenTransactionType = "RESET"
	// TokenTransactionRefund is reserved; nothing writes it today.
	TokenTransactionRefund TokenTransactionType = "REFUND"
)

func (t TokenTransactionType) IsValid() bool {
	return known(t, []TokenTransactionType{TokenTransactionDeduction, TokenTransactionReset, TokenTransactionRefund})
}
