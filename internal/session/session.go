package session

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Stage string

const (
	StageCartBuilding       Stage = "cart_building"
	StageAttendeeCapture    Stage = "attendee_capture"
	StagePaymentSelection   Stage = "payment_selection"
	StagePaymentInitialized Stage = "payment_initialized"
	StageVerified           Stage = "verified"
	StageFailed             Stage = "failed"
)

var (
	ErrNotFound             = errors.New("session not found")
	ErrInvalidTransition    = errors.New("invalid session transition")
	ErrInvalidQuantity      = errors.New("quantity must be greater than zero")
	ErrItemNotInCart        = errors.New("ticket type not in cart")
	ErrInvalidAttendeeIndex = errors.New("attendee index out of range")
)

// MaxQuantityPerType caps a single cart line.
const MaxQuantityPerType = 50

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type CartItem struct {
	TicketType string          `json:"ticketType"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"price"`
}

type Attendee struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Company   string `json:"company,omitempty"`
	JobTitle  string `json:"jobTitle,omitempty"`
}

// AttendeeError lists each invalid field with a message for the form.
type AttendeeError struct {
	Fields map[string]string
}

func (e *AttendeeError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("invalid attendee: %s", strings.Join(names, ", "))
}

func (a Attendee) Validate() error {
	fields := make(map[string]string)
	if strings.TrimSpace(a.FirstName) == "" {
		fields["firstName"] = "First name is required"
	}
	if strings.TrimSpace(a.LastName) == "" {
		fields["lastName"] = "Last name is required"
	}
	if strings.TrimSpace(a.Email) == "" {
		fields["email"] = "Email is required"
	} else if !emailPattern.MatchString(a.Email) {
		fields["email"] = "Invalid email format"
	}
	if strings.TrimSpace(a.Phone) == "" {
		fields["phone"] = "Phone number is required"
	}

	if len(fields) > 0 {
		return &AttendeeError{Fields: fields}
	}
	return nil
}

type PaymentInfo struct {
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	CompletedAt   time.Time       `json:"timestamp"`
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Session is one visitor's checkout progress. Mutating methods enforce the
// stage order and re-derive the stage after every cart or attendee change.
type Session struct {
	ID               string       `json:"sessionId"`
	Stage            Stage        `json:"stage"`
	Cart             []CartItem   `json:"cart"`
	Attendee         *Attendee    `json:"attendee,omitempty"`
	Attendees        []Attendee   `json:"attendees,omitempty"`
	MultiAttendee    bool         `json:"multiAttendee"`
	Payment          *PaymentInfo `json:"payment,omitempty"`
	PendingReference string       `json:"pendingReference,omitempty"`
	PendingMethod    string       `json:"pendingMethod,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

func NewID() string {
	return "session_" + uuid.NewString()
}

func New(id string, now time.Time, multiAttendee bool) *Session {
	return &Session{
		ID:            id,
		Stage:         StageCartBuilding,
		Cart:          []CartItem{},
		MultiAttendee: multiAttendee,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *Session) TicketCount() int {
	n := 0
	for _, item := range s.Cart {
		n += item.Quantity
	}
	return n
}

func (s *Session) Totals(taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range s.Cart {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	tax := subtotal.Mul(taxRate).Round(0)
	return Totals{Subtotal: subtotal, Tax: tax, Total: subtotal.Add(tax)}
}

// RequiredAttendees is one per ticket unit in multi-attendee mode with more
// than one ticket, otherwise a single purchaser.
func (s *Session) RequiredAttendees() int {
	count := s.TicketCount()
	if count == 0 {
		return 0
	}
	if s.MultiAttendee && count > 1 {
		return count
	}
	return 1
}

func (s *Session) AddToCart(ticketType string, quantity int, unitPrice decimal.Decimal, now time.Time) error {
	if err := s.ensureEditable(); err != nil {
		return err
	}
	if quantity <= 0 || quantity > MaxQuantityPerType {
		return ErrInvalidQuantity
	}

	merged := false
	for i := range s.Cart {
		if s.Cart[i].TicketType == ticketType {
			if s.Cart[i].Quantity+quantity > MaxQuantityPerType {
				return ErrInvalidQuantity
			}
			s.Cart[i].Quantity += quantity
			s.Cart[i].UnitPrice = unitPrice
			merged = true
			break
		}
	}
	if !merged {
		s.Cart = append(s.Cart, CartItem{TicketType: ticketType, Quantity: quantity, UnitPrice: unitPrice})
	}

	s.touch(now)
	return nil
}

// UpdateCartQuantity sets an item's quantity; zero or less removes it.
func (s *Session) UpdateCartQuantity(ticketType string, quantity int, now time.Time) error {
	if err := s.ensureEditable(); err != nil {
		return err
	}

	idx := s.cartIndex(ticketType)
	if idx < 0 {
		return ErrItemNotInCart
	}
	if quantity > MaxQuantityPerType {
		return ErrInvalidQuantity
	}
	if quantity <= 0 {
		s.Cart = append(s.Cart[:idx], s.Cart[idx+1:]...)
	} else {
		s.Cart[idx].Quantity = quantity
	}

	s.touch(now)
	return nil
}

func (s *Session) RemoveFromCart(ticketType string, now time.Time) error {
	return s.UpdateCartQuantity(ticketType, 0, now)
}

// CaptureAttendee stores attendee details at index. Single-attendee mode
// accepts only index 0; multi-attendee capture goes in ticket order, so index
// may replace a captured attendee or add the next one.
func (s *Session) CaptureAttendee(index int, a Attendee, now time.Time) error {
	if err := s.ensureEditable(); err != nil {
		return err
	}
	if len(s.Cart) == 0 {
		return fmt.Errorf("%w: cart is empty", ErrInvalidTransition)
	}
	if index < 0 || index >= s.RequiredAttendees() {
		return ErrInvalidAttendeeIndex
	}
	if s.RequiredAttendees() > 1 && index > len(s.Attendees) {
		return ErrInvalidAttendeeIndex
	}
	if err := a.Validate(); err != nil {
		return err
	}

	if s.RequiredAttendees() == 1 {
		s.Attendee = &a
		s.Attendees = nil
	} else {
		if index == len(s.Attendees) {
			s.Attendees = append(s.Attendees, a)
		} else {
			s.Attendees[index] = a
		}
		if index == 0 {
			primary := a
			s.Attendee = &primary
		}
	}

	s.touch(now)
	return nil
}

// BeginPayment records the reference of a payment being initialized. It is
// allowed again after a failure or to switch methods before completion.
func (s *Session) BeginPayment(reference, method string, now time.Time) error {
	switch s.Stage {
	case StagePaymentSelection, StagePaymentInitialized, StageFailed:
	default:
		return fmt.Errorf("%w: cannot start payment from %s", ErrInvalidTransition, s.Stage)
	}

	s.PendingReference = reference
	s.PendingMethod = method
	s.Stage = StagePaymentInitialized
	s.UpdatedAt = now
	return nil
}

// CompletePayment is idempotent for the same transaction.
func (s *Session) CompletePayment(info PaymentInfo) error {
	if s.Stage == StageVerified {
		if s.Payment != nil && s.Payment.TransactionID == info.TransactionID {
			return nil
		}
		return fmt.Errorf("%w: session already paid", ErrInvalidTransition)
	}
	if s.Stage != StagePaymentInitialized && s.Stage != StageFailed {
		return fmt.Errorf("%w: no payment in progress", ErrInvalidTransition)
	}

	s.Payment = &info
	s.PendingReference = ""
	s.Stage = StageVerified
	s.UpdatedAt = info.CompletedAt
	return nil
}

// FailPayment moves a pending payment to failed. A stale reference is ignored.
func (s *Session) FailPayment(reference string, now time.Time) error {
	if s.Stage == StageVerified {
		return fmt.Errorf("%w: session already paid", ErrInvalidTransition)
	}
	if s.Stage != StagePaymentInitialized || s.PendingReference != reference {
		return nil
	}

	s.Stage = StageFailed
	s.UpdatedAt = now
	return nil
}

// Reset starts a new order under a fresh id. It is allowed from any stage.
func (s *Session) Reset(id string, now time.Time) {
	*s = *New(id, now, s.MultiAttendee)
}

func (s *Session) ensureEditable() error {
	if s.Stage == StageVerified {
		return fmt.Errorf("%w: session already paid", ErrInvalidTransition)
	}
	return nil
}

func (s *Session) cartIndex(ticketType string) int {
	for i, item := range s.Cart {
		if item.TicketType == ticketType {
			return i
		}
	}
	return -1
}

func (s *Session) attendeesComplete() bool {
	required := s.RequiredAttendees()
	if required == 0 {
		return false
	}
	if required == 1 {
		return s.Attendee != nil
	}
	return len(s.Attendees) >= required
}

// touch re-derives the stage after an edit. Any pending payment is dropped
// since it was priced against the previous cart.
func (s *Session) touch(now time.Time) {
	if required := s.RequiredAttendees(); len(s.Attendees) > required {
		s.Attendees = s.Attendees[:required]
	}

	s.PendingReference = ""
	s.PendingMethod = ""
	switch {
	case len(s.Cart) == 0:
		s.Stage = StageCartBuilding
	case !s.attendeesComplete():
		s.Stage = StageAttendeeCapture
	default:
		s.Stage = StagePaymentSelection
	}
	s.UpdatedAt = now
}
