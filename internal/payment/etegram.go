package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

const etegramBaseURL = "https://api.etegram.com"

// HandoffSigner issues a short-lived token binding a reference to its amount
// and payer, so a client SDK callback can be checked on verify.
type HandoffSigner interface {
	SignHandoff(reference string, amount decimal.Decimal, email string) (string, error)
}

// EtegramProvider backs the bank-transfer widget. The widget itself creates
// the transaction in the browser, so Initialize only packages parameters.
type EtegramProvider struct {
	secretKey string
	publicKey string
	signer    HandoffSigner
	client    *apiClient
}

func NewEtegramProvider(secretKey, publicKey string, signer HandoffSigner, opts ...Option) *EtegramProvider {
	return &EtegramProvider{
		secretKey: secretKey,
		publicKey: publicKey,
		signer:    signer,
		client:    newAPIClient(MethodEtegram, etegramBaseURL, opts...),
	}
}

func (p *EtegramProvider) Method() Method {
	return MethodEtegram
}

func (p *EtegramProvider) Initialize(ctx context.Context, req InitRequest) (*InitResult, error) {
	if p.publicKey == "" {
		return nil, &ConfigurationError{Provider: MethodEtegram, Setting: "ETEGRAM_PUBLIC_KEY"}
	}

	result := &InitResult{
		Method:    MethodEtegram,
		Amount:    req.Amount,
		PublicKey: p.publicKey,
		Metadata: map[string]interface{}{
			"sessionId":     req.SessionID,
			"attendeeEmail": req.AttendeeEmail,
			"attendeeName":  req.AttendeeName,
			"tickets":       req.Tickets,
			"reference":     req.Reference,
		},
	}

	if p.signer != nil {
		token, err := p.signer.SignHandoff(req.Reference, req.Amount, req.AttendeeEmail)
		if err != nil {
			return nil, &ProviderError{Provider: MethodEtegram, Kind: KindProtocol, Message: "failed to sign handoff token", Err: err}
		}
		result.HandoffToken = token
	}

	return result, nil
}

type etegramVerifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Status        string          `json:"status"`
		Reference     string          `json:"reference"`
		Amount        decimal.Decimal `json:"amount"`
		Currency      string          `json:"currency"`
		PaidAt        string          `json:"paidAt"`
		PaymentMethod string          `json:"paymentMethod"`
		Narration     string          `json:"narration"`
	} `json:"data"`
}

func (p *EtegramProvider) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	if p.secretKey == "" {
		return nil, &ConfigurationError{Provider: MethodEtegram, Setting: "ETEGRAM_SECRET_KEY"}
	}

	path := fmt.Sprintf("/transactions/%s/verify", url.PathEscape(reference))
	resp, err := p.client.do(ctx, http.MethodGet, path, p.secretKey, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, &ProviderError{Provider: MethodEtegram, Kind: KindNotFound, Message: "transaction not found"}
	}

	var result etegramVerifyResponse
	if err := p.client.decode(resp, &result); err != nil {
		return nil, err
	}

	if !result.Success {
		if strings.Contains(strings.ToLower(result.Message), "not found") {
			return nil, &ProviderError{Provider: MethodEtegram, Kind: KindNotFound, Message: result.Message}
		}
		return nil, &ProviderError{
			Provider: MethodEtegram,
			Kind:     KindProtocol,
			Message:  fmt.Sprintf("verification rejected (status %d): %s", resp.StatusCode, result.Message),
		}
	}

	status := normalizeEtegramStatus(result.Data.Status)
	verified := &VerifyResult{
		Reference:      reference,
		Verified:       status == StatusSuccess,
		Status:         status,
		Amount:         result.Data.Amount,
		PaidAt:         parseProviderTime(result.Data.PaidAt),
		Channel:        result.Data.PaymentMethod,
		GatewayMessage: result.Data.Narration,
	}
	if result.Data.Reference != "" {
		verified.Reference = result.Data.Reference
	}
	if status == StatusFailed {
		verified.Reason = string(KindDeclined)
	}

	return verified, nil
}

func normalizeEtegramStatus(status string) Status {
	switch strings.ToLower(status) {
	case "successful", "success", "completed", "paid":
		return StatusSuccess
	case "pending", "processing", "initiated":
		return StatusPending
	case "abandoned", "cancelled", "canceled", "expired":
		return StatusAbandoned
	default:
		return StatusFailed
	}
}
