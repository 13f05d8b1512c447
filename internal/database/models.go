package database

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type PurchaseStatus string

const (
	PurchaseStatusAttempted   PurchaseStatus = "attempted"
	PurchaseStatusInitialized PurchaseStatus = "initialized"
	PurchaseStatusVerified    PurchaseStatus = "verified"
	PurchaseStatusFailed      PurchaseStatus = "failed"
)

func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchaseStatusAttempted, PurchaseStatusInitialized, PurchaseStatusVerified, PurchaseStatusFailed:
		return true
	}
	return false
}

type Purchase struct {
	ID               uuid.UUID       `json:"id"`
	SessionID        string          `json:"sessionId"`
	Reference        string          `json:"reference"`
	Status           PurchaseStatus  `json:"status"`
	PaymentMethod    string          `json:"paymentMethod"`
	Amount           decimal.Decimal `json:"amount"`
	AttendeeEmail    string          `json:"attendeeEmail"`
	AttendeeName     string          `json:"attendeeName"`
	AttendeePhone    string          `json:"attendeePhone,omitempty"`
	AttendeeCompany  string          `json:"attendeeCompany,omitempty"`
	AttendeeJobTitle string          `json:"attendeeJobTitle,omitempty"`
	Tickets          json.RawMessage `json:"tickets"`
	Metadata         json.RawMessage `json:"metadata"`
	AccessCode       string          `json:"-"`
	Channel          string          `json:"channel,omitempty"`
	FailureReason    string          `json:"failureReason,omitempty"`
	PaidAt           *time.Time      `json:"paidAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func decimalToPgNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func pgNumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
