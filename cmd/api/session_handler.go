package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/Mekazstan/ticket-checkout-api/internal/session"
)

type sessionView struct {
	*session.Session
	Totals            session.Totals `json:"totals"`
	RequiredAttendees int            `json:"requiredAttendees"`
}

func (cfg *apiConfig) viewSession(s *session.Session) sessionView {
	return sessionView{
		Session:           s,
		Totals:            s.Totals(cfg.catalog.TaxRate),
		RequiredAttendees: s.RequiredAttendees(),
	}
}

func (cfg *apiConfig) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	s := session.New(session.NewID(), cfg.now(), cfg.multiAttendee)

	if err := cfg.sessions.Set(r.Context(), s); err != nil {
		respondWithSessionError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, ApiResponse{
		Success: true,
		Data:    cfg.viewSession(s),
	})
}

func (cfg *apiConfig) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	s, err := cfg.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithSessionError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    cfg.viewSession(s),
	})
}

func (cfg *apiConfig) addToCartHandler(w http.ResponseWriter, r *http.Request) {
	type parameters struct {
		TicketType string `json:"ticketType"`
		Quantity   int    `json:"quantity"`
	}

	var params parameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		respondWithError(w, http.StatusBadRequest, ApiError{
			Code:    "INVALID_REQUEST",
			Message: "Invalid request body",
		})
		return
	}
	if params.Quantity == 0 {
		params.Quantity = 1
	}

	tier, ok := cfg.catalog.Tier(params.TicketType)
	if !ok {
		respondWithError(w, http.StatusBadRequest, ApiError{
			Code:    "UNKNOWN_TICKET_TYPE",
			Message: "Unknown ticket type",
			Details: map[string]interface{}{"available": cfg.catalog.TierIDs()},
		})
		return
	}

	cfg.mutateSession(w, r, func(s *session.Session) error {
		return s.AddToCart(tier.ID, params.Quantity, tier.Price, cfg.now())
	})
}

func (cfg *apiConfig) updateCartHandler(w http.ResponseWriter, r *http.Request) {
	type parameters struct {
		Quantity int `json:"quantity"`
	}

	var params parameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		respondWithError(w, http.StatusBadRequest, ApiError{
			Code:    "INVALID_REQUEST",
			Message: "Invalid request body",
		})
		return
	}

	ticketType := r.PathValue("ticketType")
	cfg.mutateSession(w, r, func(s *session.Session) error {
		return s.UpdateCartQuantity(ticketType, params.Quantity, cfg.now())
	})
}

func (cfg *apiConfig) removeFromCartHandler(w http.ResponseWriter, r *http.Request) {
	ticketType := r.PathValue("ticketType")
	cfg.mutateSession(w, r, func(s *session.Session) error {
		return s.RemoveFromCart(ticketType, cfg.now())
	})
}

func (cfg *apiConfig) captureAttendeeHandler(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ApiError{
			Code:    "INVALID_ATTENDEE_INDEX",
			Message: "Attendee index must be a number",
		})
		return
	}

	var attendee session.Attendee
	if err := json.NewDecoder(r.Body).Decode(&attendee); err != nil {
		respondWithError(w, http.StatusBadRequest, ApiError{
			Code:    "INVALID_REQUEST",
			Message: "Invalid request body",
		})
		return
	}

	cfg.mutateSession(w, r, func(s *session.Session) error {
		return s.CaptureAttendee(index, attendee, cfg.now())
	})
}

// resetSessionHandler drops the session and hands back a fresh one.
func (cfg *apiConfig) resetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s, err := cfg.sessions.Get(r.Context(), id)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		respondWithSessionError(w, err)
		return
	}
	if s == nil {
		s = session.New(id, cfg.now(), cfg.multiAttendee)
	}

	if err := cfg.sessions.Clear(r.Context(), id); err != nil {
		respondWithSessionError(w, err)
		return
	}

	s.Reset(session.NewID(), cfg.now())
	if err := cfg.sessions.Set(r.Context(), s); err != nil {
		respondWithSessionError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Message: "Session cleared",
		Data:    cfg.viewSession(s),
	})
}

func (cfg *apiConfig) mutateSession(w http.ResponseWriter, r *http.Request, mutate func(*session.Session) error) {
	s, err := cfg.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithSessionError(w, err)
		return
	}

	if err := mutate(s); err != nil {
		respondWithSessionError(w, err)
		return
	}

	if err := cfg.sessions.Set(r.Context(), s); err != nil {
		respondWithSessionError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    cfg.viewSession(s),
	})
}

func respondWithSessionError(w http.ResponseWriter, err error) {
	var attendeeErr *session.AttendeeError
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondWithError(w, http.StatusNotFound, ApiError{
			Code:    "SESSION_NOT_FOUND",
			Message: "Session not found or expired",
		})
	case errors.As(err, &attendeeErr):
		respondWithError(w, http.StatusBadRequest, ApiError{
			Code:    "INVALID_ATTENDEE",
			Message: "Please correct the highlighted attendee fields",
			Details: attendeeErr.Fields,
		})
	case errors.Is(err, session.ErrItemNotInCart):
		respondWithError(w, http.StatusNotFound, ApiError{
			Code:    "ITEM_NOT_IN_CART",
			Message: "Ticket type is not in the cart",
		})
	case errors.Is(err, session.ErrInvalidQuantity):
		respondWithError(w, http.StatusBadRequest, ApiError{
			Code:    "INVALID_QUANTITY",
			Message: "Invalid ticket quantity",
		})
	case errors.Is(err, session.ErrInvalidAttendeeIndex):
		respondWithError(w, http.StatusBadRequest, ApiError{
			Code:    "INVALID_ATTENDEE_INDEX",
			Message: "Attendee index is out of range",
		})
	case errors.Is(err, session.ErrInvalidTransition):
		respondWithError(w, http.StatusConflict, ApiError{
			Code:    "INVALID_TRANSITION",
			Message: err.Error(),
		})
	default:
		log.Printf("Session store error: %v", err)
		respondWithError(w, http.StatusInternalServerError, ApiError{
			Code:    "INTERNAL_ERROR",
			Message: "Failed to update session",
		})
	}
}
