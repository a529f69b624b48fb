package zyonpaywebhook

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherlocker/sherlocker-backend/pkg/enums"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "slk:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func TestNormalizeMapsGatewayStatuses(t *testing.T) {
	paymentID := uuid.New()
	cases := map[string]struct {
		status enums.PaymentStatus
		known  bool
	}{
		"COMPLETED":  {enums.PaymentStatusPaid, true},
		"completed":  {enums.PaymentStatusPaid, true},
		"PENDING":    {enums.PaymentStatusPending, true},
		"FAILED":     {enums.PaymentStatusFailed, true},
		"CANCELED":   {enums.PaymentStatusCanceled, true},
		"REFUNDED":   {enums.PaymentStatusRefunded, true},
		"CHARGEBACK": {"", false},
	}
	for raw, want := range cases {
		t.Run(raw, func(t *testing.T) {
			payload := Payload{Transaction: Transaction{ID: "tx_1", Identifier: paymentID.String(), Status: raw}}
			n, err := payload.Normalize()
			require.NoError(t, err)
			assert.Equal(t, want.status, n.Status)
			assert.Equal(t, want.known, n.Known)
			assert.Equal(t, paymentID, n.PaymentID)
		})
	}
}

func TestNormalizeDecodesGatewayBody(t *testing.T) {
	paymentID := uuid.New()
	body := `{
	  "event": "TRANSACTION_PAID",
	  "client": {"id": "c1", "name": "Ana", "email": "ana@example.com"},
	  "transaction": {
	    "id": "tx_99", "identifier": "` + paymentID.String() + `", "status": "COMPLETED",
	    "paymentMethod": "PIX", "amount": 195.0, "currency": "BRL",
	    "createdAt": "2026-10-16T10:00:00Z", "payedAt": "2026-10-16T10:05:00-03:00"
	  },
	  "trackProps": {"authId": "acc", "subscriptionId": "sub"},
	  "somethingNew": true
	}`

	var payload Payload
	require.NoError(t, json.Unmarshal([]byte(body), &payload))

	n, err := payload.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "tx_99", n.TransactionID)
	require.NotNil(t, n.PaidAt)
	assert.Equal(t, time.Date(2026, 10, 16, 13, 5, 0, 0, time.UTC), *n.PaidAt)
}

func TestNormalizeRejectsMissingIdentifiers(t *testing.T) {
	_, err := Payload{Transaction: Transaction{ID: "tx", Status: "COMPLETED"}}.Normalize()
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Payload{Transaction: Transaction{ID: "tx", Identifier: "not-a-uuid"}}.Normalize()
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Payload{Transaction: Transaction{Identifier: uuid.NewString()}}.Normalize()
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestIdempotencyGuardMarksAndReleases(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	id := DeliveryID("tx_1", enums.PaymentStatusPaid)
	assert.Equal(t, "tx_1:PAID", id)

	seen, err := guard.CheckAndMark(ctx, id)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, id)
	require.NoError(t, err)
	assert.True(t, seen)

	other, err := guard.CheckAndMark(ctx, DeliveryID("tx_1", enums.PaymentStatusRefunded))
	require.NoError(t, err)
	assert.False(t, other)

	require.NoError(t, guard.Release(ctx, id))
	seen, err = guard.CheckAndMark(ctx, id)
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = guard.CheckAndMark(ctx, "")
	assert.Error(t, err)

	_, err = NewIdempotencyGuard(nil, time.Hour)
	assert.Error(t, err)
}
