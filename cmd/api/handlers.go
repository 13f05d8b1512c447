package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Mekazstan/ticket-checkout-api/internal/database"
)

type purchaseLister interface {
	ListPurchases(ctx context.Context, arg database.ListPurchasesParams) ([]database.Purchase, error)
}

func (cfg *apiConfig) listTicketsHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"event":    cfg.catalog.EventName,
			"currency": cfg.catalog.Currency,
			"taxRate":  cfg.catalog.TaxRate,
			"tiers":    cfg.catalog.Tiers,
		},
	})
}

func (cfg *apiConfig) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(cfg.healthChecks))
	for name, check := range cfg.healthChecks {
		if err := check(ctx); err != nil {
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	respondWithJSON(w, status, ApiResponse{
		Success: status == http.StatusOK,
		Data: map[string]interface{}{
			"checks": checks,
			"time":   cfg.now().UTC(),
		},
	})
}

// listPurchasesHandler is the operator view of recorded purchases, used to
// reconcile attempts that never completed.
func (cfg *apiConfig) listPurchasesHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	status := database.PurchaseStatus(query.Get("status"))
	if status != "" && !status.Valid() {
		respondWithError(w, http.StatusBadRequest, ApiError{
			Code:    "INVALID_STATUS",
			Message: "Status must be 'attempted', 'initialized', 'verified', or 'failed'",
		})
		return
	}

	limit := int32(50)
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = int32(l)
		}
	}

	offset := int32(0)
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = int32(o)
		}
	}

	purchases, err := cfg.purchases.ListPurchases(r.Context(), database.ListPurchasesParams{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, ApiError{
			Code:    "INTERNAL_ERROR",
			Message: "Failed to retrieve purchases",
		})
		return
	}

	respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"purchases": purchases,
			"count":     len(purchases),
			"limit":     limit,
			"offset":    offset,
		},
	})
}
