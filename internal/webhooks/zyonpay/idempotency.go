package zyonpaywebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sherlocker/sherlocker-backend/pkg/enums"
	"github.com/sherlocker/sherlocker-backend/pkg/redis"
)

// Scope namespaces webhook delivery keys in the idempotency store.
const Scope = "zyonpay_webhook"

// IdempotencyGuard drops repeated deliveries of the same transaction status
// before they reach the database. The payment compare-and-set remains the
// source of truth; the guard only absorbs retry bursts.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: Scope,
	}, nil
}

// DeliveryID identifies one transaction status notification.
func DeliveryID(transactionID string, status enums.PaymentStatus) string {
	return transactionID + ":" + string(status)
}

// CheckAndMark reports whether the delivery was already seen, marking it otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, errors.New("delivery id is required")
	}
	key := g.store.IdempotencyKey(g.scope, deliveryID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Release forgets a delivery so a gateway retry is processed again.
func (g *IdempotencyGuard) Release(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, deliveryID))
}
