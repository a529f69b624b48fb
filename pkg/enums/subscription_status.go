package enums

// SubscriptionStatus tracks an account's entitlement to a plan.
type SubscriptionStatus string

const (
	SubscriptionStatusPending  SubscriptionStatus = "PENDING"
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
	// SubscriptionStatusExpired is reserved; no transition produces it yet.
	SubscriptionStatusExpired SubscriptionStatus = "EXPIRED"
)

var subscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusPending, SubscriptionStatusActive, SubscriptionStatusCanceled, SubscriptionStatusExpired,
}

func (s SubscriptionStatus) IsValid() bool { return known(s, subscriptionStatuses) }
