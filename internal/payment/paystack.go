package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const paystackBaseURL = "https://api.paystack.co"

type PaystackProvider struct {
	secretKey string
	publicKey string
	client    *apiClient
}

func NewPaystackProvider(secretKey, publicKey string, opts ...Option) *PaystackProvider {
	return &PaystackProvider{
		secretKey: secretKey,
		publicKey: publicKey,
		client:    newAPIClient(MethodPaystack, paystackBaseURL, opts...),
	}
}

func (p *PaystackProvider) Method() Method {
	return MethodPaystack
}

type paystackCustomField struct {
	DisplayName  string `json:"display_name"`
	VariableName string `json:"variable_name"`
	Value        string `json:"value"`
}

type paystackInitializeParams struct {
	Email       string                 `json:"email"`
	Amount      int64                  `json:"amount"`
	Currency    string                 `json:"currency,omitempty"`
	Reference   string                 `json:"reference"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type paystackInitializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

func (p *PaystackProvider) Initialize(ctx context.Context, req InitRequest) (*InitResult, error) {
	if p.secretKey == "" {
		return nil, &ConfigurationError{Provider: MethodPaystack, Setting: "PAYSTACK_SECRET_KEY"}
	}

	params := paystackInitializeParams{
		Email:       req.AttendeeEmail,
		Amount:      ToMinorUnits(req.Amount),
		Currency:    "NGN",
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Metadata: map[string]interface{}{
			"sessionId":    req.SessionID,
			"attendeeName": req.AttendeeName,
			"tickets":      req.Tickets,
			"custom_fields": []paystackCustomField{
				{DisplayName: "Attendee Name", VariableName: "attendee_name", Value: req.AttendeeName},
			},
		},
	}

	resp, err := p.client.do(ctx, http.MethodPost, "/transaction/initialize", p.secretKey, params)
	if err != nil {
		return nil, err
	}

	var result paystackInitializeResponse
	if err := p.client.decode(resp, &result); err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &ProviderError{Provider: MethodPaystack, Kind: KindProtocol, Message: "secret key rejected"}
	}
	if !result.Status || resp.StatusCode >= http.StatusBadRequest {
		return nil, &ProviderError{Provider: MethodPaystack, Kind: KindDeclined, Message: result.Message}
	}
	if result.Data.AuthorizationURL == "" {
		return nil, &ProviderError{Provider: MethodPaystack, Kind: KindProtocol, Message: "missing authorization_url"}
	}

	return &InitResult{
		Method:           MethodPaystack,
		Amount:           req.Amount,
		AuthorizationURL: result.Data.AuthorizationURL,
		AccessCode:       result.Data.AccessCode,
		PublicKey:        p.publicKey,
	}, nil
}

type paystackVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status          string `json:"status"`
		Reference       string `json:"reference"`
		Amount          int64  `json:"amount"`
		Currency        string `json:"currency"`
		PaidAt          string `json:"paid_at"`
		Channel         string `json:"channel"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

func (p *PaystackProvider) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	if p.secretKey == "" {
		return nil, &ConfigurationError{Provider: MethodPaystack, Setting: "PAYSTACK_SECRET_KEY"}
	}

	resp, err := p.client.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), p.secretKey, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, &ProviderError{Provider: MethodPaystack, Kind: KindNotFound, Message: "transaction not found"}
	}

	var result paystackVerifyResponse
	if err := p.client.decode(resp, &result); err != nil {
		return nil, err
	}

	if !result.Status {
		if strings.Contains(strings.ToLower(result.Message), "not found") {
			return nil, &ProviderError{Provider: MethodPaystack, Kind: KindNotFound, Message: result.Message}
		}
		return nil, &ProviderError{
			Provider: MethodPaystack,
			Kind:     KindProtocol,
			Message:  fmt.Sprintf("verification rejected (status %d): %s", resp.StatusCode, result.Message),
		}
	}

	status := normalizePaystackStatus(result.Data.Status)
	verified := &VerifyResult{
		Reference:      reference,
		Verified:       status == StatusSuccess,
		Status:         status,
		Amount:         FromMinorUnits(result.Data.Amount),
		PaidAt:         parseProviderTime(result.Data.PaidAt),
		Channel:        result.Data.Channel,
		GatewayMessage: result.Data.GatewayResponse,
	}
	if result.Data.Reference != "" {
		verified.Reference = result.Data.Reference
	}
	if status == StatusFailed {
		verified.Reason = string(KindDeclined)
	}
	if result.Data.Currency != "" && !strings.EqualFold(result.Data.Currency, "NGN") {
		verified.Verified = false
		verified.Status = StatusFailed
		verified.Reason = "currency_mismatch"
	}

	return verified, nil
}

func normalizePaystackStatus(status string) Status {
	switch strings.ToLower(status) {
	case "success":
		return StatusSuccess
	case "abandoned":
		return StatusAbandoned
	case "failed", "reversed":
		return StatusFailed
	case "ongoing", "pending", "processing", "queued":
		return StatusPending
	default:
		return StatusFailed
	}
}

func parseProviderTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// VerifyWebhookSignature checks X-Paystack-Signature, an HMAC-SHA512 of the
// raw body keyed with the secret key.
func (p *PaystackProvider) VerifyWebhookSignature(payload []byte, signature string) bool {
	if p.secretKey == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(payload)
	expectedSignature := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}

type PaystackWebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

func (p *PaystackProvider) ParseWebhookEvent(payload []byte) (*PaystackWebhookEvent, error) {
	var event PaystackWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook event: %w", err)
	}
	return &event, nil
}
