package checkout

import "errors"

const (
	MsgMissingFields       = "Missing required fields"
	MsgInvalidAmount       = "Invalid payment amount"
	MsgInvalidMethod       = "Invalid payment method"
	MsgInvalidQuantity     = "Invalid ticket quantity"
	MsgInvalidReference    = "Invalid payment reference"
	MsgMethodMismatch      = "Payment method does not match reference"
	MsgAmountMismatch      = "Payment amount does not match ticket total"
	MsgInvalidHandoffToken = "Invalid payment handoff token"
	MsgUnknownTicketType   = "Unknown ticket type"
)

// ValidationError rejects a request before any provider is contacted.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
