package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Mekazstan/ticket-checkout-api/internal/checkout"
	"github.com/Mekazstan/ticket-checkout-api/internal/database"
	"github.com/Mekazstan/ticket-checkout-api/internal/payment"
)

const reconcileBatchSize = 100

type StalePurchaseStore interface {
	ListStalePurchases(ctx context.Context, before, notBefore time.Time, limit int32) ([]database.Purchase, error)
	ExpireStalePurchases(ctx context.Context, before time.Time) (int64, error)
}

type Verifier interface {
	Verify(ctx context.Context, in checkout.VerifyInput) (*checkout.VerifyOutcome, error)
}

type ReconcileStats struct {
	Checked  int
	Verified int
	Failed   int
	Pending  int
	Errors   int
}

// ReconcileStalePurchases re-verifies purchases that never reached a final
// status, such as a payer who closed the tab before returning from the
// provider. Only purchases created between abandonAfter and reconcileAfter
// ago are considered; older ones are left to ExpireAbandonedPurchases.
// Runs every 5 minutes.
func ReconcileStalePurchases(ctx context.Context, store StalePurchaseStore, verifier Verifier, now time.Time, reconcileAfter, abandonAfter time.Duration) (ReconcileStats, error) {
	var stats ReconcileStats

	purchases, err := store.ListStalePurchases(ctx, now.Add(-reconcileAfter), now.Add(-abandonAfter), reconcileBatchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to list stale purchases: %w", err)
	}

	log.Printf("Reconciling %d stale purchases", len(purchases))

	for _, p := range purchases {
		stats.Checked++

		outcome, err := verifier.Verify(ctx, checkout.VerifyInput{
			Reference: p.Reference,
			Method:    p.PaymentMethod,
		})
		if err != nil {
			if payment.IsNotFound(err) {
				log.Printf("Purchase %s unknown to provider, leaving for expiry", p.Reference)
			} else {
				log.Printf("Failed to reconcile purchase %s: %v", p.Reference, err)
			}
			stats.Errors++
			continue
		}

		switch {
		case outcome.Success:
			stats.Verified++
			log.Printf("Reconciled purchase %s as verified", p.Reference)
		case outcome.Status == payment.StatusPending:
			stats.Pending++
		default:
			stats.Failed++
			log.Printf("Reconciled purchase %s as failed (%s)", p.Reference, outcome.Reason)
		}
	}

	log.Printf("Reconciliation done: %d checked, %d verified, %d failed, %d pending, %d errors",
		stats.Checked, stats.Verified, stats.Failed, stats.Pending, stats.Errors)
	return stats, nil
}

// ExpireAbandonedPurchases marks unfinished purchases older than abandonAfter
// as failed with reason abandoned.
// Runs hourly.
func ExpireAbandonedPurchases(ctx context.Context, store StalePurchaseStore, now time.Time, abandonAfter time.Duration) (int64, error) {
	log.Println("Expiring abandoned purchases...")

	count, err := store.ExpireStalePurchases(ctx, now.Add(-abandonAfter))
	if err != nil {
		return 0, fmt.Errorf("failed to expire purchases: %w", err)
	}

	log.Printf("Marked %d purchases as abandoned", count)
	return count, nil
}
