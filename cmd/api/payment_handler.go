package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/Mekazstan/ticket-checkout-api/internal/checkout"
	"github.com/Mekazstan/ticket-checkout-api/internal/payment"
	"github.com/shopspring/decimal"
)

const maxWebhookBody = 1 << 20

type webhookVerifier interface {
	VerifyWebhookSignature(payload []byte, signature string) bool
	ParseWebhookEvent(payload []byte) (*payment.PaystackWebhookEvent, error)
}

func (cfg *apiConfig) initializePaymentHandler(w http.ResponseWriter, r *http.Request) {
	type ticket struct {
		TicketType string `json:"ticketType"`
		Quantity   int    `json:"quantity"`
	}
	type parameters struct {
		SessionID        string          `json:"sessionId"`
		Method           string          `json:"method"`
		Amount           decimal.Decimal `json:"amount"`
		AttendeeEmail    string          `json:"attendeeEmail"`
		AttendeeName     string          `json:"attendeeName"`
		AttendeePhone    string          `json:"attendeePhone"`
		AttendeeCompany  string          `json:"attendeeCompany"`
		AttendeeJobTitle string          `json:"attendeeJobTitle"`
		Tickets          []ticket        `json:"tickets"`
	}

	var params parameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		respondWithError(w, http.StatusBadRequest, ApiError{
			Code:    "INVALID_REQUEST",
			Message: "Invalid request body",
		})
		return
	}

	tickets := make([]payment.TicketLine, 0, len(params.Tickets))
	for _, t := range params.Tickets {
		tickets = append(tickets, payment.TicketLine{TicketType: t.TicketType, Quantity: t.Quantity})
	}

	out, err := cfg.checkout.Initialize(r.Context(), checkout.InitializeInput{
		SessionID:        params.SessionID,
		Method:           params.Method,
		Amount:           params.Amount,
		AttendeeEmail:    strings.TrimSpace(params.AttendeeEmail),
		AttendeeName:     params.AttendeeName,
		AttendeePhone:    params.AttendeePhone,
		AttendeeCompany:  params.AttendeeCompany,
		AttendeeJobTitle: params.AttendeeJobTitle,
		Tickets:          tickets,
		UserAgent:        r.UserAgent(),
		ClientIP:         clientIP(r),
	})
	if err != nil {
		respondWithCheckoutError(w, err, "Payment initialization failed")
		return
	}

	result := out.Result
	response := map[string]interface{}{
		"success":   true,
		"reference": out.Reference,
		"method":    result.Method,
		"amount":    result.Amount,
	}
	if result.AuthorizationURL != "" {
		response["authorization_url"] = result.AuthorizationURL
		response["access_code"] = result.AccessCode
	}
	if result.PublicKey != "" {
		response["publicKey"] = result.PublicKey
	}
	if result.HandoffToken != "" {
		response["handoffToken"] = result.HandoffToken
	}
	if result.Metadata != nil {
		response["metadata"] = result.Metadata
	}

	respondWithJSON(w, http.StatusOK, response)
}

func (cfg *apiConfig) verifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	type parameters struct {
		Reference     string `json:"reference"`
		TransactionID string `json:"transactionId"`
		Method        string `json:"method"`
		HandoffToken  string `json:"handoffToken"`
	}

	var params parameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		respondWithError(w, http.StatusBadRequest, ApiError{
			Code:    "INVALID_REQUEST",
			Message: "Invalid request body",
		})
		return
	}

	reference := params.Reference
	if reference == "" {
		reference = params.TransactionID
	}

	outcome, err := cfg.checkout.Verify(r.Context(), checkout.VerifyInput{
		Reference:    reference,
		Method:       params.Method,
		HandoffToken: params.HandoffToken,
	})
	if err != nil {
		respondWithCheckoutError(w, err, "Payment verification failed")
		return
	}

	data := map[string]interface{}{
		"status":          outcome.Status,
		"verified":        outcome.Success,
		"amount":          outcome.Amount,
		"reference":       outcome.Reference,
		"method":          outcome.Method,
		"alreadyVerified": outcome.AlreadyVerified,
	}
	if outcome.PaidAt != nil {
		data["paidAt"] = outcome.PaidAt
	}
	if outcome.Channel != "" {
		data["channel"] = outcome.Channel
	}
	if outcome.Reason != "" {
		data["reason"] = outcome.Reason
	}

	message := "Payment verified"
	if !outcome.Success {
		message = "Payment was not successful"
		if outcome.Message != "" {
			message = outcome.Message
		}
	}

	respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: outcome.Success,
		Message: message,
		Data:    data,
	})
}

// verifyRedirectHandler is the provider callback target. The payer is always
// sent back to the frontend with the outcome in the query string.
func (cfg *apiConfig) verifyRedirectHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	reference := query.Get("reference")
	if reference == "" {
		reference = query.Get("trxref")
	}

	result := "failed"
	if reference != "" {
		outcome, err := cfg.checkout.Verify(r.Context(), checkout.VerifyInput{Reference: reference})
		if err != nil {
			log.Printf("Callback verification failed for %s: %v", reference, err)
		} else if outcome.Success {
			result = "success"
		}
	}

	http.Redirect(w, r, cfg.frontendRedirect(result, reference), http.StatusSeeOther)
}

func (cfg *apiConfig) frontendRedirect(result, reference string) string {
	values := url.Values{}
	values.Set("payment", result)
	if reference != "" {
		values.Set("reference", reference)
	}
	return strings.TrimRight(cfg.frontendURL, "/") + "/?" + values.Encode()
}

// paystackWebhookHandler treats a signed charge.success event as a prompt to
// verify. The event payload itself is never trusted as proof of payment.
func (cfg *apiConfig) paystackWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if cfg.webhooks == nil {
		respondWithError(w, http.StatusNotFound, ApiError{
			Code:    "NOT_FOUND",
			Message: "Not found",
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ApiError{
			Code:    "INVALID_WEBHOOK",
			Message: "Invalid webhook payload",
		})
		return
	}

	if !cfg.webhooks.VerifyWebhookSignature(body, r.Header.Get("X-Paystack-Signature")) {
		respondWithError(w, http.StatusUnauthorized, ApiError{
			Code:    "INVALID_SIGNATURE",
			Message: "Invalid webhook signature",
		})
		return
	}

	event, err := cfg.webhooks.ParseWebhookEvent(body)
	if err != nil {
		log.Printf("Ignoring malformed Paystack webhook: %v", err)
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "received"})
		return
	}

	if event.Event == "charge.success" && event.Data.Reference != "" {
		outcome, err := cfg.checkout.Verify(r.Context(), checkout.VerifyInput{
			Reference: event.Data.Reference,
			Method:    string(payment.MethodPaystack),
		})
		if err != nil {
			log.Printf("Webhook verification failed for %s: %v", event.Data.Reference, err)
		} else {
			log.Printf("Webhook processed for %s: success=%v", event.Data.Reference, outcome.Success)
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// respondWithCheckoutError maps checkout and provider errors onto HTTP
// statuses. Configuration details stay in the logs.
func respondWithCheckoutError(w http.ResponseWriter, err error, fallback string) {
	var validationErr *checkout.ValidationError
	switch {
	case errors.As(err, &validationErr):
		respondWithError(w, http.StatusBadRequest, ApiError{
			Code:    "VALIDATION_ERROR",
			Message: validationErr.Message,
		})
	case payment.IsConfigurationError(err):
		log.Printf("Provider configuration error: %v", err)
		respondWithError(w, http.StatusInternalServerError, ApiError{
			Code:    "CONFIGURATION_ERROR",
			Message: "Payment provider is not configured",
		})
	case payment.IsDeclined(err):
		respondWithError(w, http.StatusBadRequest, ApiError{
			Code:    "PAYMENT_DECLINED",
			Message: providerMessage(err, "Payment was declined"),
		})
	case payment.IsNotFound(err):
		respondWithError(w, http.StatusNotFound, ApiError{
			Code:    "TRANSACTION_NOT_FOUND",
			Message: "Transaction not found",
		})
	default:
		log.Printf("%s: %v", fallback, err)
		respondWithError(w, http.StatusInternalServerError, ApiError{
			Code:    "PROVIDER_ERROR",
			Message: fallback,
		})
	}
}

func providerMessage(err error, fallback string) string {
	var pe *payment.ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return fallback
}
