package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	billingsvc "github.com/sherlocker/sherlocker-backend/internal/billing"
	"github.com/sherlocker/sherlocker-backend/internal/ledger"
	"github.com/sherlocker/sherlocker-backend/internal/plans"
	pkgAuth "github.com/sherlocker/sherlocker-backend/pkg/auth"
	"github.com/sherlocker/sherlocker-backend/pkg/config"
	"github.com/sherlocker/sherlocker-backend/pkg/logger"
	"github.com/sherlocker/sherlocker-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubRedis struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (s *stubRedis) Ping(context.Context) error { return nil }

func (s *stubRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = map[string]int64{}
	}
	s.counts[scope]++
	return s.counts[scope] <= limit, s.counts[scope], nil
}

type stubBilling struct {
	pixCalls int
}

func (s *stubBilling) CreatePixPayment(ctx context.Context, accountID, planID uuid.UUID) (*billingsvc.PixPaymentResult, error) {
	s.pixCalls++
	return &billingsvc.PixPaymentResult{PaymentID: uuid.New()}, nil
}

func (s *stubBilling) CheckPaymentStatus(ctx context.Context, accountID uuid.UUID, pixCopyPaste string) (*billingsvc.PaymentStatusResult, error) {
	return &billingsvc.PaymentStatusResult{Message: "Payment is not completed yet"}, nil
}

func (s *stubBilling) HandlePaymentWebhook(ctx context.Context, input billingsvc.WebhookInput) (*billingsvc.WebhookResult, error) {
	return &billingsvc.WebhookResult{Success: true, Message: "Payment processed successfully"}, nil
}

type stubPlans struct{}

func (stubPlans) ListActive(context.Context) ([]plans.PlanDTO, error) {
	return []plans.PlanDTO{{ID: uuid.New(), Name: "Free", IsFree: true}}, nil
}

type stubLedger struct{}

func (stubLedger) Balance(ctx context.Context, accountID uuid.UUID) (*ledger.BalanceDTO, error) {
	return &ledger.BalanceDTO{TokenCount: 7}, nil
}

func (stubLedger) ListTransactions(ctx context.Context, accountID uuid.UUID, page int) (*ledger.TransactionPage, error) {
	return &ledger.TransactionPage{Transactions: []ledger.TransactionDTO{}}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "sherlocker", ExpirationMinutes: 60},
		Billing: config.BillingConfig{
			ChargeRateLimit:       2,
			ChargeRateLimitWindow: time.Minute,
		},
	}
}

type testRouter struct {
	handler http.Handler
	billing *stubBilling
	reg     *prometheus.Registry
}

func newTestRouter(cfg *config.Config) testRouter {
	billing := &stubBilling{}
	reg := prometheus.NewRegistry()
	handler := NewRouter(Params{
		Config:         cfg,
		Logger:         logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:             stubPinger{},
		Redis:          &stubRedis{},
		Payments:       billing,
		Webhooks:       billing,
		Plans:          stubPlans{},
		Ledger:         stubLedger{},
		BillingMetrics: metrics.NewBillingMetrics(reg),
		HTTPMetrics:    metrics.NewHTTPMetrics(reg),
		Gatherer:       reg,
	})
	return testRouter{handler: handler, billing: billing, reg: reg}
}

func buildToken(t *testing.T, cfg *config.Config) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		AccountID: uuid.New(),
		Email:     "ana@example.com",
		PlanName:  "Free",
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func serve(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPublicRoutes(t *testing.T) {
	router := newTestRouter(testConfig())

	for _, path := range []string{"/health/live", "/health/ready", "/api/v1/plans"} {
		if rec := serve(router.handler, http.MethodGet, path, "", ""); rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, rec.Code)
		}
	}
}

func TestProtectedRoutesRejectMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())

	cases := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/payments/pix"},
		{http.MethodPost, "/api/v1/payments/status"},
		{http.MethodGet, "/api/v1/tokens/balance"},
		{http.MethodGet, "/api/v1/tokens/transactions"},
	}
	for _, tc := range cases {
		if rec := serve(router.handler, tc.method, tc.path, "{}", ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestProtectedRoutesSucceedWithJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	token := buildToken(t, cfg)

	if rec := serve(router.handler, http.MethodGet, "/api/v1/tokens/balance", "", token); rec.Code != http.StatusOK {
		t.Fatalf("balance: expected 200 got %d", rec.Code)
	}
	if rec := serve(router.handler, http.MethodPost, "/api/v1/payments/status", `{"pixCopyPaste":"abc"}`, token); rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200 got %d", rec.Code)
	}
}

func TestPixChargeIsRateLimitedPerAccount(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	token := buildToken(t, cfg)
	body := `{"planId":"` + uuid.NewString() + `"}`

	for i := 0; i < 2; i++ {
		if rec := serve(router.handler, http.MethodPost, "/api/v1/payments/pix", body, token); rec.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d", i, rec.Code)
		}
	}
	if rec := serve(router.handler, http.MethodPost, "/api/v1/payments/pix", body, token); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}
	if router.billing.pixCalls != 2 {
		t.Fatalf("expected 2 charges, got %d", router.billing.pixCalls)
	}
}

func TestWebhookIsPublicAndAlways200(t *testing.T) {
	router := newTestRouter(testConfig())

	rec := serve(router.handler, http.MethodPost, "/api/v1/payments/webhook", `{"transaction":{}}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var body billingsvc.WebhookResult
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success {
		t.Fatalf("expected failure body for empty transaction")
	}
}

func TestMetricsEndpointExposesHTTPMetrics(t *testing.T) {
	router := newTestRouter(testConfig())
	serve(router.handler, http.MethodGet, "/api/v1/plans", "", "")

	rec := serve(router.handler, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `sherlocker_http_requests_total{method="GET",route="/api/v1/plans",status="200"}`) {
		t.Fatalf("expected plan route counter in metrics output")
	}
}
