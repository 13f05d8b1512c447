package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Provider = (*PaystackProvider)(nil)

func newTestPaystack(t *testing.T, handler http.HandlerFunc) *PaystackProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewPaystackProvider("sk_test_123", "pk_test_123",
		WithBaseURL(server.URL),
		WithRetryBackoff(time.Millisecond),
	)
}

func TestPaystackInitialize_Success(t *testing.T) {
	var received paystackInitializeParams
	provider := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]string{
				"authorization_url": "https://checkout.paystack.com/abc",
				"access_code":       "abc",
				"reference":         received.Reference,
			},
		})
	})

	result, err := provider.Initialize(context.Background(), InitRequest{
		Reference:     "PSK-1712345678901-ABC1234",
		SessionID:     "session_1",
		Amount:        decimal.NewFromInt(53750),
		AttendeeEmail: "ada@example.com",
		AttendeeName:  "Ada Obi",
		CallbackURL:   "http://localhost:8080/payment/verify",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(5375000), received.Amount)
	assert.Equal(t, "NGN", received.Currency)
	assert.Equal(t, "http://localhost:8080/payment/verify", received.CallbackURL)
	assert.Equal(t, "session_1", received.Metadata["sessionId"])
	assert.Equal(t, "https://checkout.paystack.com/abc", result.AuthorizationURL)
	assert.Equal(t, "abc", result.AccessCode)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(53750)))
}

func TestPaystackInitialize_MissingSecret(t *testing.T) {
	provider := NewPaystackProvider("", "pk_test_123")

	_, err := provider.Initialize(context.Background(), InitRequest{Reference: "PSK-1-ABCDEFG", Amount: decimal.NewFromInt(100)})

	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestPaystackInitialize_Declined(t *testing.T) {
	var calls int32
	provider := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":false,"message":"Invalid Email Address Passed"}`))
	})

	_, err := provider.Initialize(context.Background(), InitRequest{Reference: "PSK-1-ABCDEFG", Amount: decimal.NewFromInt(100)})

	require.Error(t, err)
	assert.True(t, IsDeclined(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a provider decision must not be retried")
}

func TestPaystackVerify(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantErrKind  ErrorKind
		wantStatus   Status
		wantVerified bool
		wantReason   string
	}{
		{
			name:         "Success",
			status:       http.StatusOK,
			body:         `{"status":true,"message":"Verification successful","data":{"status":"success","reference":"PSK-1-ABCDEFG","amount":5375000,"currency":"NGN","paid_at":"2024-04-05T12:00:00.000Z","channel":"card","gateway_response":"Approved"}}`,
			wantStatus:   StatusSuccess,
			wantVerified: true,
		},
		{
			name:       "Declined",
			status:     http.StatusOK,
			body:       `{"status":true,"message":"Verification successful","data":{"status":"failed","reference":"PSK-1-ABCDEFG","amount":5375000,"currency":"NGN","gateway_response":"Declined"}}`,
			wantStatus: StatusFailed,
			wantReason: "declined",
		},
		{
			name:       "Abandoned",
			status:     http.StatusOK,
			body:       `{"status":true,"message":"Verification successful","data":{"status":"abandoned","reference":"PSK-1-ABCDEFG","amount":5375000}}`,
			wantStatus: StatusAbandoned,
		},
		{
			name:       "Ongoing maps to pending",
			status:     http.StatusOK,
			body:       `{"status":true,"message":"Verification successful","data":{"status":"ongoing","reference":"PSK-1-ABCDEFG","amount":5375000}}`,
			wantStatus: StatusPending,
		},
		{
			name:        "Reference not found",
			status:      http.StatusBadRequest,
			body:        `{"status":false,"message":"Transaction reference not found"}`,
			wantErrKind: KindNotFound,
		},
		{
			name:        "Not found status code",
			status:      http.StatusNotFound,
			body:        `{}`,
			wantErrKind: KindNotFound,
		},
		{
			name:        "Garbage body",
			status:      http.StatusOK,
			body:        `<html>oops</html>`,
			wantErrKind: KindProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transaction/verify/PSK-1-ABCDEFG", r.URL.Path)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			result, err := provider.Verify(context.Background(), "PSK-1-ABCDEFG")
			if tt.wantErrKind != "" {
				var pe *ProviderError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, tt.wantErrKind, pe.Kind)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantVerified, result.Verified)
			assert.Equal(t, tt.wantReason, result.Reason)
			assert.True(t, result.Amount.Equal(decimal.NewFromInt(53750)))
		})
	}
}

func TestPaystackVerify_RetriesGatewayErrors(t *testing.T) {
	var calls int32
	provider := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":true,"data":{"status":"success","amount":100,"currency":"NGN"}}`))
	})

	result, err := provider.Verify(context.Background(), "PSK-1-ABCDEFG")

	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPaystackVerify_GivesUpAfterRetries(t *testing.T) {
	var calls int32
	provider := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := provider.Verify(context.Background(), "PSK-1-ABCDEFG")

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindNetwork, pe.Kind)
	assert.Equal(t, int32(defaultMaxRetries+1), atomic.LoadInt32(&calls))
}

func TestPaystackVerifyWebhookSignature(t *testing.T) {
	provider := NewPaystackProvider("sk_test_123", "")
	payload := []byte(`{"event":"charge.success","data":{"reference":"PSK-1-ABCDEFG"}}`)

	mac := hmac.New(sha512.New, []byte("sk_test_123"))
	mac.Write(payload)
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, provider.VerifyWebhookSignature(payload, valid))
	assert.False(t, provider.VerifyWebhookSignature(payload, "deadbeef"))
	assert.False(t, provider.VerifyWebhookSignature(payload, ""))

	event, err := provider.ParseWebhookEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "charge.success", event.Event)
	assert.Equal(t, "PSK-1-ABCDEFG", event.Data.Reference)
}
