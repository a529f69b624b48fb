package enums

import (
	"slices"
	"strings"
)

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregatePayment      OutboxAggregateType = "payment"
	AggregateSubscription OutboxAggregateType = "subscription"
	AggregateAccount      OutboxAggregateType = "account"
)

func (a OutboxAggregateType) IsValid() bool {
	return known(a, []OutboxAggregateType{AggregatePayment, AggregateSubscription, AggregateAccount})
}

// OutboxEventType is the billing event name, also used as the Pub/Sub
// event_type attribute.
type OutboxEventType string

const (
	EventPaymentPaid           OutboxEventType = "payment.paid"
	EventPaymentFailed         OutboxEventType = "payment.failed"
	EventPaymentCanceled       OutboxEventType = "payment.canceled"
	EventPaymentRefunded       OutboxEventType = "payment.refunded"
	EventSubscriptionActivated OutboxEventType = "subscription.activated"
	EventSubscriptionCanceled  OutboxEventType = "subscription.canceled"
	EventTokensReset           OutboxEventType = "tokens.reset"
)

var outboxEventTypes = []OutboxEventType{
	EventPaymentPaid,
	EventPaymentFailed,
	EventPaymentCanceled,
	EventPaymentRefunded,
	EventSubscriptionActivated,
	EventSubscriptionCanceled,
	EventTokensReset,
}

func (e OutboxEventType) IsValid() bool { return known(e, outboxEventTypes) }

// OutboxEventTypes lists every event the billing flows emit.
func OutboxEventTypes() []OutboxEventType { return slices.Clone(outboxEventTypes) }

// Aggregate returns the aggregate type implied by the event name prefix.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	switch {
	case strings.HasPrefix(string(e), "payment."):
		return AggregatePayment
	case strings.HasPrefix(string(e), "subscription."):
		return AggregateSubscription
	case strings.HasPrefix(string(e), "tokens."):
		return AggregateAccount
	}
	return ""
}

// OutboxDLQErrorReason records why the publisher gave up on an outbox row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable:
		return true
	}
	return false
}
