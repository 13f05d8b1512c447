package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mekazstan/ticket-checkout-api/internal/catalog"
	"github.com/Mekazstan/ticket-checkout-api/internal/checkout"
	"github.com/Mekazstan/ticket-checkout-api/internal/database"
	"github.com/Mekazstan/ticket-checkout-api/internal/payment"
	"github.com/Mekazstan/ticket-checkout-api/internal/session"
	"github.com/stretchr/testify/require"
)

const testPaystackSecret = "sk_test_123"

var testNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

type memoryPurchases struct {
	mu        sync.Mutex
	purchases map[string]database.Purchase
}

func newMemoryPurchases() *memoryPurchases {
	return &memoryPurchases{purchases: make(map[string]database.Purchase)}
}

func (m *memoryPurchases) CreatePurchase(ctx context.Context, arg database.CreatePurchaseParams) (database.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := database.Purchase{
		SessionID:     arg.SessionID,
		Reference:     arg.Reference,
		Status:        database.PurchaseStatusAttempted,
		PaymentMethod: arg.PaymentMethod,
		Amount:        arg.Amount,
		AttendeeEmail: arg.AttendeeEmail,
		AttendeeName:  arg.AttendeeName,
		Tickets:       arg.Tickets,
		Metadata:      arg.Metadata,
		CreatedAt:     testNow,
	}
	m.purchases[arg.Reference] = p
	return p, nil
}

func (m *memoryPurchases) GetPurchaseByReference(ctx context.Context, reference string) (database.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[reference]
	if !ok {
		return database.Purchase{}, database.ErrNotFound
	}
	return p, nil
}

func (m *memoryPurchases) MarkPurchaseInitialized(ctx context.Context, reference, accessCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.purchases[reference]; ok {
		p.Status = database.PurchaseStatusInitialized
		p.AccessCode = accessCode
		m.purchases[reference] = p
	}
	return nil
}

func (m *memoryPurchases) MarkPurchaseVerified(ctx context.Context, arg database.MarkPurchaseVerifiedParams) (database.Purchase, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[arg.Reference]
	if !ok || p.Status == database.PurchaseStatusVerified {
		return database.Purchase{}, false, nil
	}
	p.Status = database.PurchaseStatusVerified
	p.Channel = arg.Channel
	p.PaidAt = arg.PaidAt
	m.purchases[arg.Reference] = p
	return p, true, nil
}

func (m *memoryPurchases) MarkPurchaseFailed(ctx context.Context, reference, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[reference]
	if !ok || p.Status == database.PurchaseStatusVerified || p.Status == database.PurchaseStatusFailed {
		return false, nil
	}
	p.Status = database.PurchaseStatusFailed
	p.FailureReason = reason
	m.purchases[reference] = p
	return true, nil
}

func (m *memoryPurchases) ListPurchases(ctx context.Context, arg database.ListPurchasesParams) ([]database.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.Purchase{}
	for _, p := range m.purchases {
		if arg.Status == "" || p.Status == arg.Status {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reference < out[j].Reference })
	if int(arg.Limit) < len(out) {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (m *memoryPurchases) get(reference string) (database.Purchase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[reference]
	return p, ok
}

func (m *memoryPurchases) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.purchases)
}

var (
	_ checkout.PurchaseStore = (*memoryPurchases)(nil)
	_ purchaseLister         = (*memoryPurchases)(nil)
	_ purchaseLister         = (*database.Queries)(nil)
	_ webhookVerifier        = (*payment.PaystackProvider)(nil)
)

// fakePaystack remembers initialized amounts and reports them as paid.
type fakePaystack struct {
	mu          sync.Mutex
	amounts     map[string]int64
	status      string
	initCalls   atomic.Int32
	verifyCalls atomic.Int32
}

func (f *fakePaystack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/transaction/initialize":
		f.initCalls.Add(1)
		var body struct {
			Reference string `json:"reference"`
			Amount    int64  `json:"amount"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.amounts[body.Reference] = body.Amount
		f.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]string{
				"authorization_url": "https://checkout.paystack.com/" + body.Reference,
				"access_code":       "acc_" + body.Reference,
				"reference":         body.Reference,
			},
		})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/transaction/verify/"):
		f.verifyCalls.Add(1)
		reference := strings.TrimPrefix(r.URL.Path, "/transaction/verify/")

		f.mu.Lock()
		amount, ok := f.amounts[reference]
		f.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":  false,
				"message": "Transaction reference not found",
			})
			return
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Verification successful",
			"data": map[string]interface{}{
				"status":           f.status,
				"reference":        reference,
				"amount":           amount,
				"currency":         "NGN",
				"paid_at":          "2025-03-14T10:02:00.000Z",
				"channel":          "card",
				"gateway_response": "Approved",
			},
		})

	default:
		http.NotFound(w, r)
	}
}

type stubLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (s *stubLimiter) Hit(ctx context.Context, subject string, now time.Time) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = make(map[string]int64)
	}
	s.counts[subject]++
	return s.counts[subject], nil
}

type testAPI struct {
	cfg       *apiConfig
	handler   http.Handler
	purchases *memoryPurchases
	sessions  *session.MemoryStore
	paystack  *fakePaystack
}

type testOptions struct {
	paystackSecret string
	adminKeyHash   string
	rateLimit      int
	limiter        hitCounter
}

func newTestAPI(t testing.TB, opts testOptions) *testAPI {
	t.Helper()

	fake := &fakePaystack{amounts: make(map[string]int64), status: "success"}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	paystack := payment.NewPaystackProvider(opts.paystackSecret, "pk_test_123",
		payment.WithBaseURL(server.URL),
		payment.WithRetryBackoff(time.Millisecond),
	)
	etegram := payment.NewEtegramProvider("", "", nil, payment.WithBaseURL(server.URL))

	purchases := newMemoryPurchases()
	sessions := session.NewMemoryStore()
	ticketCatalog := catalog.Default()
	clock := func() time.Time { return testNow }

	cfg := &apiConfig{
		checkout: checkout.NewService(payment.NewPaymentService(paystack, etegram), purchases,
			checkout.WithSessions(sessions),
			checkout.WithCatalog(ticketCatalog),
			checkout.WithCallbackURL("http://localhost:8080/payment/verify"),
			checkout.WithBackgroundRunner(func(f func()) { f() }),
		),
		sessions:    sessions,
		catalog:     ticketCatalog,
		purchases:   purchases,
		webhooks:    paystack,
		frontendURL: "https://tickets.example.com",
		now:         clock,
		healthChecks: map[string]func(context.Context) error{
			"database": func(context.Context) error { return nil },
		},
	}

	limiter := opts.limiter
	if limiter == nil {
		limiter = &stubLimiter{}
	}

	return &testAPI{
		cfg:       cfg,
		handler:   cfg.routes(limiter, opts.rateLimit, opts.adminKeyHash),
		purchases: purchases,
		sessions:  sessions,
		paystack:  fake,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}
