package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const purchaseColumns = `id, session_id, reference, status, payment_method, amount,
	attendee_email, attendee_name, attendee_phone, attendee_company, attendee_job_title,
	tickets, metadata, access_code, channel, failure_reason, paid_at, created_at, updated_at`

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	var status string
	var amount pgtype.Numeric
	var tickets, metadata []byte

	err := row.Scan(
		&p.ID,
		&p.SessionID,
		&p.Reference,
		&status,
		&p.PaymentMethod,
		&amount,
		&p.AttendeeEmail,
		&p.AttendeeName,
		&p.AttendeePhone,
		&p.AttendeeCompany,
		&p.AttendeeJobTitle,
		&tickets,
		&metadata,
		&p.AccessCode,
		&p.Channel,
		&p.FailureReason,
		&p.PaidAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return Purchase{}, err
	}

	p.Status = PurchaseStatus(status)
	p.Amount = pgNumericToDecimal(amount)
	p.Tickets = json.RawMessage(tickets)
	p.Metadata = json.RawMessage(metadata)
	return p, nil
}

type CreatePurchaseParams struct {
	SessionID        string
	Reference        string
	PaymentMethod    string
	Amount           decimal.Decimal
	AttendeeEmail    string
	AttendeeName     string
	AttendeePhone    string
	AttendeeCompany  string
	AttendeeJobTitle string
	Tickets          json.RawMessage
	Metadata         json.RawMessage
}

const createPurchase = `INSERT INTO purchases (
	session_id, reference, status, payment_method, amount,
	attendee_email, attendee_name, attendee_phone, attendee_company, attendee_job_title,
	tickets, metadata
) VALUES ($1, $2, 'attempted', $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + purchaseColumns

func (q *Queries) CreatePurchase(ctx context.Context, arg CreatePurchaseParams) (Purchase, error) {
	tickets := []byte(arg.Tickets)
	if len(tickets) == 0 {
		tickets = []byte("[]")
	}
	metadata := []byte(arg.Metadata)
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	row := q.db.QueryRow(ctx, createPurchase,
		arg.SessionID,
		arg.Reference,
		arg.PaymentMethod,
		decimalToPgNumeric(arg.Amount),
		arg.AttendeeEmail,
		arg.AttendeeName,
		arg.AttendeePhone,
		arg.AttendeeCompany,
		arg.AttendeeJobTitle,
		tickets,
		metadata,
	)
	p, err := scanPurchase(row)
	if err != nil {
		return Purchase{}, fmt.Errorf("failed to create purchase: %w", err)
	}
	return p, nil
}

const getPurchaseByReference = `SELECT ` + purchaseColumns + ` FROM purchases WHERE reference = $1`

func (q *Queries) GetPurchaseByReference(ctx context.Context, reference string) (Purchase, error) {
	p, err := scanPurchase(q.db.QueryRow(ctx, getPurchaseByReference, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrNotFound
		}
		return Purchase{}, fmt.Errorf("failed to get purchase: %w", err)
	}
	return p, nil
}

const markPurchaseInitialized = `UPDATE purchases
SET status = 'initialized', access_code = $2, updated_at = NOW()
WHERE reference = $1 AND status = 'attempted'`

func (q *Queries) MarkPurchaseInitialized(ctx context.Context, reference, accessCode string) error {
	if _, err := q.db.Exec(ctx, markPurchaseInitialized, reference, accessCode); err != nil {
		return fmt.Errorf("failed to mark purchase initialized: %w", err)
	}
	return nil
}

type MarkPurchaseVerifiedParams struct {
	Reference string
	Channel   string
	PaidAt    *time.Time
}

// Only the first caller to verify a reference gets applied=true.
const markPurchaseVerified = `UPDATE purchases
SET status = 'verified', channel = $2, paid_at = COALESCE($3, NOW()), failure_reason = '', updated_at = NOW()
WHERE reference = $1 AND status <> 'verified'
RETURNING ` + purchaseColumns

func (q *Queries) MarkPurchaseVerified(ctx context.Context, arg MarkPurchaseVerifiedParams) (Purchase, bool, error) {
	p, err := scanPurchase(q.db.QueryRow(ctx, markPurchaseVerified, arg.Reference, arg.Channel, arg.PaidAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, false, nil
		}
		return Purchase{}, false, fmt.Errorf("failed to mark purchase verified: %w", err)
	}
	return p, true, nil
}

// A verified purchase is never downgraded.
const markPurchaseFailed = `UPDATE purchases
SET status = 'failed', failure_reason = $2, updated_at = NOW()
WHERE reference = $1 AND status NOT IN ('verified', 'failed')`

func (q *Queries) MarkPurchaseFailed(ctx context.Context, reference, reason string) (bool, error) {
	tag, err := q.db.Exec(ctx, markPurchaseFailed, reference, reason)
	if err != nil {
		return false, fmt.Errorf("failed to mark purchase failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

type ListPurchasesParams struct {
	Status PurchaseStatus
	Limit  int32
	Offset int32
}

const listPurchases = `SELECT ` + purchaseColumns + ` FROM purchases
WHERE ($1::text = '' OR status = $1::text)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

func (q *Queries) ListPurchases(ctx context.Context, arg ListPurchasesParams) ([]Purchase, error) {
	rows, err := q.db.Query(ctx, listPurchases, string(arg.Status), arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return collectPurchases(rows)
}

const listStalePurchases = `SELECT ` + purchaseColumns + ` FROM purchases
WHERE status IN ('attempted', 'initialized') AND created_at < $1 AND created_at >= $2
ORDER BY created_at
LIMIT $3`

// ListStalePurchases returns unfinished purchases created in [notBefore, before).
func (q *Queries) ListStalePurchases(ctx context.Context, before, notBefore time.Time, limit int32) ([]Purchase, error) {
	rows, err := q.db.Query(ctx, listStalePurchases, before, notBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale purchases: %w", err)
	}
	return collectPurchases(rows)
}

const expireStalePurchases = `UPDATE purchases
SET status = 'failed', failure_reason = 'abandoned', updated_at = NOW()
WHERE status IN ('attempted', 'initialized') AND created_at < $1`

func (q *Queries) ExpireStalePurchases(ctx context.Context, before time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, expireStalePurchases, before)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale purchases: %w", err)
	}
	return tag.RowsAffected(), nil
}

const deletePurchase = `DELETE FROM purchases WHERE reference = $1`

func (q *Queries) DeletePurchase(ctx context.Context, reference string) error {
	_, err := q.db.Exec(ctx, deletePurchase, reference)
	return err
}

func collectPurchases(rows pgx.Rows) ([]Purchase, error) {
	defer rows.Close()

	purchases := []Purchase{}
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate purchases: %w", err)
	}
	return purchases, nil
}
