package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/Mekazstan/ticket-checkout-api/internal/auth"
	"github.com/Mekazstan/ticket-checkout-api/internal/catalog"
	"github.com/Mekazstan/ticket-checkout-api/internal/database"
	"github.com/Mekazstan/ticket-checkout-api/internal/email"
	"github.com/Mekazstan/ticket-checkout-api/internal/events"
	"github.com/Mekazstan/ticket-checkout-api/internal/payment"
	"github.com/Mekazstan/ticket-checkout-api/internal/session"
	"github.com/shopspring/decimal"
)

const (
	sideEffectTimeout = 10 * time.Second
	verifiedClaimTTL  = 7 * 24 * time.Hour
)

type PurchaseStore interface {
	CreatePurchase(ctx context.Context, arg database.CreatePurchaseParams) (database.Purchase, error)
	GetPurchaseByReference(ctx context.Context, reference string) (database.Purchase, error)
	MarkPurchaseInitialized(ctx context.Context, reference, accessCode string) error
	MarkPurchaseVerified(ctx context.Context, arg database.MarkPurchaseVerifiedParams) (database.Purchase, bool, error)
	MarkPurchaseFailed(ctx context.Context, reference, reason string) (bool, error)
}

type ProviderRegistry interface {
	Provider(method payment.Method) (payment.Provider, error)
}

type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishPurchaseEvent(ctx context.Context, event events.PurchaseEvent) error
}

type Notifier interface {
	SendPurchaseConfirmation(to string, receipt email.Receipt) error
	SendPaymentFailed(to, attendeeName, reference, reason string) error
}

type HandoffValidator interface {
	Validate(token, reference string) (*auth.HandoffClaims, error)
}

type Option func(*Service)

func WithSessions(store session.Store) Option {
	return func(s *Service) { s.sessions = store }
}

func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

func WithClaims(c Claimer) Option {
	return func(s *Service) { s.claims = c }
}

func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithHandoffValidator(v HandoffValidator) Option {
	return func(s *Service) { s.handoff = v }
}

// WithCallbackURL sets where redirect-based providers send the payer back.
func WithCallbackURL(url string) Option {
	return func(s *Service) { s.callbackURL = url }
}

// WithStrictPricing rejects amounts that differ from the catalog quote.
func WithStrictPricing(enabled bool) Option {
	return func(s *Service) { s.strictPricing = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithReferenceGenerator(g *payment.ReferenceGenerator) Option {
	return func(s *Service) { s.refs = g }
}

// WithBackgroundRunner controls how post-verification side effects run.
func WithBackgroundRunner(run func(func())) Option {
	return func(s *Service) { s.runBackground = run }
}

// Service drives a purchase from initialization to a verified outcome.
type Service struct {
	providers     ProviderRegistry
	purchases     PurchaseStore
	refs          *payment.ReferenceGenerator
	sessions      session.Store
	catalog       *catalog.Catalog
	claims        Claimer
	publisher     EventPublisher
	notifier      Notifier
	handoff       HandoffValidator
	callbackURL   string
	strictPricing bool
	now           func() time.Time
	runBackground func(func())
}

func NewService(providers ProviderRegistry, purchases PurchaseStore, opts ...Option) *Service {
	s := &Service{
		providers:     providers,
		purchases:     purchases,
		refs:          payment.NewReferenceGenerator(),
		now:           time.Now,
		runBackground: func(f func()) { go f() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type InitializeInput struct {
	SessionID        string
	Method           string
	Amount           decimal.Decimal
	AttendeeEmail    string
	AttendeeName     string
	AttendeePhone    string
	AttendeeCompany  string
	AttendeeJobTitle string
	Tickets          []payment.TicketLine
	UserAgent        string
	ClientIP         string
}

type InitializeOutput struct {
	Reference string
	Result    *payment.InitResult
}

func (s *Service) Initialize(ctx context.Context, in InitializeInput) (*InitializeOutput, error) {
	if err := s.validateInitialize(in); err != nil {
		return nil, err
	}

	method := payment.Method(in.Method)
	provider, err := s.providers.Provider(method)
	if err != nil {
		return nil, err
	}

	reference, err := s.refs.Generate(method)
	if err != nil {
		return nil, err
	}

	s.recordAttempt(ctx, reference, in)

	result, err := provider.Initialize(ctx, payment.InitRequest{
		Reference:     reference,
		SessionID:     in.SessionID,
		Amount:        in.Amount,
		AttendeeEmail: in.AttendeeEmail,
		AttendeeName:  in.AttendeeName,
		AttendeePhone: in.AttendeePhone,
		Tickets:       in.Tickets,
		CallbackURL:   s.callbackURL,
	})
	if err != nil {
		log.Printf("Payment initialization failed for %s: %v", reference, err)
		return nil, err
	}

	if err := s.purchases.MarkPurchaseInitialized(ctx, reference, result.AccessCode); err != nil {
		log.Printf("Failed to mark purchase %s initialized: %v", reference, err)
	}
	s.beginSessionPayment(ctx, in.SessionID, reference, method)

	event := s.newEvent(events.PurchaseInitialized, reference, method)
	event.SessionID = in.SessionID
	event.Amount = in.Amount
	event.AttendeeEmail = in.AttendeeEmail
	event.Status = string(database.PurchaseStatusInitialized)
	s.publish(event)

	log.Printf("Payment initialized: %s via %s for %s NGN", reference, method, in.Amount)
	return &InitializeOutput{Reference: reference, Result: result}, nil
}

func (s *Service) validateInitialize(in InitializeInput) error {
	if strings.TrimSpace(in.SessionID) == "" || in.Method == "" || in.Amount.IsZero() || strings.TrimSpace(in.AttendeeEmail) == "" {
		return invalid(MsgMissingFields)
	}
	if !in.Amount.IsPositive() || !payment.HasMinorUnitPrecision(in.Amount) {
		return invalid(MsgInvalidAmount)
	}
	if !payment.Method(in.Method).Valid() {
		return invalid(MsgInvalidMethod)
	}
	for _, t := range in.Tickets {
		if t.TicketType == "" || t.Quantity <= 0 || t.Quantity > session.MaxQuantityPerType {
			return invalid(MsgInvalidQuantity)
		}
	}

	if s.strictPricing && s.catalog != nil && len(in.Tickets) > 0 {
		items := make([]catalog.LineItem, 0, len(in.Tickets))
		for _, t := range in.Tickets {
			items = append(items, catalog.LineItem{TicketType: t.TicketType, Quantity: t.Quantity})
		}
		quote, err := s.catalog.Quote(items)
		if err != nil {
			return invalid(MsgUnknownTicketType)
		}
		if !quote.Total.Equal(in.Amount) {
			return invalid(MsgAmountMismatch)
		}
	}

	return nil
}

func (s *Service) recordAttempt(ctx context.Context, reference string, in InitializeInput) {
	tickets, err := json.Marshal(in.Tickets)
	if err != nil || in.Tickets == nil {
		tickets = []byte("[]")
	}
	metadata, _ := json.Marshal(map[string]string{
		"userAgent": in.UserAgent,
		"ip":        in.ClientIP,
	})

	_, err = s.purchases.CreatePurchase(ctx, database.CreatePurchaseParams{
		SessionID:        in.SessionID,
		Reference:        reference,
		PaymentMethod:    in.Method,
		Amount:           in.Amount,
		AttendeeEmail:    in.AttendeeEmail,
		AttendeeName:     in.AttendeeName,
		AttendeePhone:    in.AttendeePhone,
		AttendeeCompany:  in.AttendeeCompany,
		AttendeeJobTitle: in.AttendeeJobTitle,
		Tickets:          tickets,
		Metadata:         metadata,
	})
	if err != nil {
		log.Printf("Failed to record purchase attempt %s: %v", reference, err)
	}
}

func (s *Service) beginSessionPayment(ctx context.Context, sessionID, reference string, method payment.Method) {
	s.updateSession(ctx, sessionID, func(sess *session.Session) error {
		return sess.BeginPayment(reference, string(method), s.now())
	})
}

type VerifyInput struct {
	Reference    string
	Method       string
	HandoffToken string
}

type VerifyOutcome struct {
	Success         bool
	Reference       string
	Method          payment.Method
	Status          payment.Status
	Amount          decimal.Decimal
	PaidAt          *time.Time
	Channel         string
	Reason          string
	Message         string
	SessionID       string
	AlreadyVerified bool
}

// Verify asks the provider for the outcome of reference and applies it.
// Success requires the provider to report verified with status success.
// Repeated calls for a verified reference return the stored result without
// contacting the provider, and side effects run only for the first success.
func (s *Service) Verify(ctx context.Context, in VerifyInput) (*VerifyOutcome, error) {
	reference := strings.TrimSpace(in.Reference)
	if reference == "" {
		return nil, invalid(MsgMissingFields)
	}

	method, err := resolveMethod(reference, in.Method)
	if err != nil {
		return nil, err
	}

	if in.HandoffToken != "" && s.handoff != nil {
		if _, err := s.handoff.Validate(in.HandoffToken, reference); err != nil {
			log.Printf("Rejected handoff token for %s: %v", reference, err)
			return nil, invalid(MsgInvalidHandoffToken)
		}
	}

	record, err := s.purchases.GetPurchaseByReference(ctx, reference)
	hasRecord := err == nil
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		log.Printf("Failed to load purchase %s: %v", reference, err)
	}

	if hasRecord && record.Status == database.PurchaseStatusVerified {
		return outcomeFromRecord(record, method), nil
	}

	provider, err := s.providers.Provider(method)
	if err != nil {
		return nil, err
	}

	result, err := provider.Verify(ctx, reference)
	if err != nil {
		log.Printf("Payment verification failed for %s: %v", reference, err)
		return nil, err
	}

	outcome := &VerifyOutcome{
		Success:   result.Succeeded(),
		Reference: reference,
		Method:    method,
		Status:    result.Status,
		Amount:    result.Amount,
		PaidAt:    result.PaidAt,
		Channel:   result.Channel,
		Reason:    result.Reason,
		Message:   result.GatewayMessage,
	}
	if hasRecord {
		outcome.SessionID = record.SessionID
	}

	if !outcome.Success && outcome.Status == payment.StatusSuccess {
		outcome.Status = payment.StatusFailed
		outcome.Reason = "unverified"
	}

	if outcome.Success && hasRecord && !result.Amount.Equal(record.Amount) {
		log.Printf("Amount mismatch for %s: expected %s, provider reported %s", reference, record.Amount, result.Amount)
		outcome.Success = false
		outcome.Status = payment.StatusFailed
		outcome.Reason = "amount_mismatch"
	}

	if outcome.Success {
		s.applySuccess(ctx, outcome, record, hasRecord)
	} else {
		s.applyFailure(ctx, outcome, record, hasRecord)
	}

	log.Printf("Payment verified: %s via %s status=%s success=%v", reference, method, outcome.Status, outcome.Success)
	return outcome, nil
}

func resolveMethod(reference, hint string) (payment.Method, error) {
	inferred, ok := payment.MethodFromReference(reference)

	if hint == "" {
		if !ok {
			return "", invalid(MsgInvalidReference)
		}
		return inferred, nil
	}

	method := payment.Method(hint)
	if !method.Valid() {
		return "", invalid(MsgInvalidMethod)
	}
	if ok && inferred != method {
		return "", invalid(MsgMethodMismatch)
	}
	return method, nil
}

func outcomeFromRecord(record database.Purchase, method payment.Method) *VerifyOutcome {
	return &VerifyOutcome{
		Success:         true,
		Reference:       record.Reference,
		Method:          method,
		Status:          payment.StatusSuccess,
		Amount:          record.Amount,
		PaidAt:          record.PaidAt,
		Channel:         record.Channel,
		SessionID:       record.SessionID,
		AlreadyVerified: true,
	}
}

func (s *Service) applySuccess(ctx context.Context, outcome *VerifyOutcome, record database.Purchase, hasRecord bool) {
	first := false

	updated, applied, err := s.purchases.MarkPurchaseVerified(ctx, database.MarkPurchaseVerifiedParams{
		Reference: outcome.Reference,
		Channel:   outcome.Channel,
		PaidAt:    outcome.PaidAt,
	})
	switch {
	case err != nil:
		log.Printf("Failed to mark purchase %s verified: %v", outcome.Reference, err)
		first = s.claimVerified(ctx, outcome.Reference)
	case applied:
		first = true
		record, hasRecord = updated, true
	case !hasRecord:
		first = s.claimVerified(ctx, outcome.Reference)
	default:
		outcome.AlreadyVerified = true
	}

	completedAt := s.now()
	if outcome.PaidAt != nil {
		completedAt = *outcome.PaidAt
	}
	s.updateSession(ctx, outcome.SessionID, func(sess *session.Session) error {
		return sess.CompletePayment(session.PaymentInfo{
			TransactionID: outcome.Reference,
			Amount:        outcome.Amount,
			Method:        string(outcome.Method),
			CompletedAt:   completedAt,
		})
	})

	if !first {
		return
	}

	event := s.newEvent(events.PurchaseVerified, outcome.Reference, outcome.Method)
	event.SessionID = outcome.SessionID
	event.Amount = outcome.Amount
	event.Status = string(database.PurchaseStatusVerified)
	if hasRecord {
		event.AttendeeEmail = record.AttendeeEmail
	}
	s.publish(event)

	if hasRecord {
		s.sendConfirmation(record, outcome)
	}
}

// claimVerified is the fallback idempotency gate when the purchase table
// cannot answer.
func (s *Service) claimVerified(ctx context.Context, reference string) bool {
	if s.claims == nil {
		return false
	}
	ok, err := s.claims.Claim(ctx, "verified:"+reference, verifiedClaimTTL)
	if err != nil {
		log.Printf("Failed to claim verification side effects for %s: %v", reference, err)
		return false
	}
	return ok
}

func (s *Service) applyFailure(ctx context.Context, outcome *VerifyOutcome, record database.Purchase, hasRecord bool) {
	if outcome.SessionID != "" {
		s.updateSession(ctx, outcome.SessionID, func(sess *session.Session) error {
			return sess.FailPayment(outcome.Reference, s.now())
		})
	}

	// A pending payment may still settle; leave the record for reconciliation.
	if outcome.Status == payment.StatusPending {
		return
	}

	reason := outcome.Reason
	if reason == "" {
		reason = string(outcome.Status)
	}
	changed, err := s.purchases.MarkPurchaseFailed(ctx, outcome.Reference, reason)
	if err != nil {
		log.Printf("Failed to mark purchase %s failed: %v", outcome.Reference, err)
		return
	}
	if !changed {
		return
	}

	event := s.newEvent(events.PurchaseFailed, outcome.Reference, outcome.Method)
	event.SessionID = outcome.SessionID
	event.Amount = outcome.Amount
	event.Status = string(database.PurchaseStatusFailed)
	event.Reason = reason
	if hasRecord {
		event.AttendeeEmail = record.AttendeeEmail
	}
	s.publish(event)

	// Abandoned checkouts are not notified.
	if outcome.Status == payment.StatusFailed && hasRecord {
		s.sendFailureNotice(record, reason)
	}
}

func (s *Service) sendFailureNotice(record database.Purchase, reason string) {
	if s.notifier == nil || record.AttendeeEmail == "" {
		return
	}
	s.runBackground(func() {
		if err := s.notifier.SendPaymentFailed(record.AttendeeEmail, record.AttendeeName, record.Reference, reason); err != nil {
			log.Printf("Failed to send failure notice for %s: %v", record.Reference, err)
		}
	})
}

func (s *Service) updateSession(ctx context.Context, sessionID string, mutate func(*session.Session) error) {
	if s.sessions == nil || sessionID == "" {
		return
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			log.Printf("Failed to load session %s: %v", sessionID, err)
		}
		return
	}

	if err := mutate(sess); err != nil {
		log.Printf("Session %s not updated: %v", sessionID, err)
		return
	}
	if err := s.sessions.Set(ctx, sess); err != nil {
		log.Printf("Failed to save session %s: %v", sessionID, err)
	}
}

func (s *Service) newEvent(eventType, reference string, method payment.Method) events.PurchaseEvent {
	event := events.NewPurchaseEvent(eventType, reference, s.now())
	event.Method = string(method)
	return event
}

func (s *Service) publish(event events.PurchaseEvent) {
	if s.publisher == nil {
		return
	}
	s.runBackground(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := s.publisher.PublishPurchaseEvent(ctx, event); err != nil {
			log.Printf("Failed to publish %s for %s: %v", event.Type, event.Reference, err)
		}
	})
}

func (s *Service) sendConfirmation(record database.Purchase, outcome *VerifyOutcome) {
	if s.notifier == nil || record.AttendeeEmail == "" {
		return
	}

	receipt := email.Receipt{
		AttendeeName: record.AttendeeName,
		Reference:    outcome.Reference,
		Amount:       outcome.Amount,
		Method:       string(outcome.Method),
		Tickets:      s.ticketSummaries(record.Tickets),
	}
	if outcome.PaidAt != nil {
		receipt.PaidAt = outcome.PaidAt.Format("2 Jan 2006, 15:04 MST")
	}

	s.runBackground(func() {
		if err := s.notifier.SendPurchaseConfirmation(record.AttendeeEmail, receipt); err != nil {
			log.Printf("Failed to send confirmation for %s: %v", outcome.Reference, err)
		}
	})
}

func (s *Service) ticketSummaries(raw json.RawMessage) []email.TicketSummary {
	var lines []payment.TicketLine
	if len(raw) == 0 || json.Unmarshal(raw, &lines) != nil {
		return nil
	}

	summaries := make([]email.TicketSummary, 0, len(lines))
	for _, line := range lines {
		name := line.TicketType
		if s.catalog != nil {
			if tier, ok := s.catalog.Tier(line.TicketType); ok {
				name = tier.Name
			}
		}
		summaries = append(summaries, email.TicketSummary{Name: name, Quantity: line.Quantity})
	}
	return summaries
}
