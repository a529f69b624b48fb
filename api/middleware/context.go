package middleware

import "context"

type contextKey string

const (
	ctxAccountID contextKey = "account_id"
	ctxEmail     contextKey = "account_email"
	ctxPlan      contextKey = "plan_name"
)

// AccountIDFromContext returns the authenticated account id, or "" for
// anonymous requests.
func AccountIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxAccountID)
}

func EmailFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxEmail)
}

func PlanFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxPlan)
}

// WithAccountID injects the account identifier into the context.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxAccountID, accountID)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
