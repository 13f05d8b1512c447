package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodEtegram  Method = "etegram"
	MethodPaystack Method = "paystack"
)

func (m Method) Valid() bool {
	return m == MethodEtegram || m == MethodPaystack
}

// Status is the normalized outcome of a verification, whatever vocabulary the
// provider itself uses.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
	StatusAbandoned Status = "abandoned"
)

type TicketLine struct {
	TicketType string `json:"ticketType"`
	Quantity   int    `json:"quantity"`
}

type InitRequest struct {
	Reference     string
	SessionID     string
	Amount        decimal.Decimal
	AttendeeEmail string
	AttendeeName  string
	AttendeePhone string
	Tickets       []TicketLine
	CallbackURL   string
}

// InitResult carries whatever the caller needs to continue the payment:
// a hosted-page redirect for Paystack, SDK parameters for Etegram.
type InitResult struct {
	Method           Method
	Amount           decimal.Decimal
	AuthorizationURL string
	AccessCode       string
	PublicKey        string
	HandoffToken     string
	Metadata         map[string]interface{}
}

type VerifyResult struct {
	Reference      string
	Verified       bool
	Status         Status
	Amount         decimal.Decimal
	PaidAt         *time.Time
	Channel        string
	Reason         string
	GatewayMessage string
}

// Succeeded reports whether the payment can be treated as paid.
func (r *VerifyResult) Succeeded() bool {
	return r != nil && r.Verified && r.Status == StatusSuccess
}

type Provider interface {
	Method() Method
	Initialize(ctx context.Context, req InitRequest) (*InitResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

// PaymentService routes calls to the adapter registered for a method.
type PaymentService struct {
	providers map[Method]Provider
}

func NewPaymentService(providers ...Provider) *PaymentService {
	s := &PaymentService{providers: make(map[Method]Provider, len(providers))}
	for _, p := range providers {
		s.providers[p.Method()] = p
	}
	return s
}

func (s *PaymentService) Provider(method Method) (Provider, error) {
	p, ok := s.providers[method]
	if !ok {
		return nil, fmt.Errorf("no payment provider registered for method %q", method)
	}
	return p, nil
}
