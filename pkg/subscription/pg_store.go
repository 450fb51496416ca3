package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/google/uuid"
)

// PGLedgerStore implements LedgerStore on PostgreSQL. The schema lives in
// migrations/ and is applied with pkg/pg.Migrate; a partial unique index
// on (user_id) WHERE status = 'active' backs the one-active-per-user
// invariant at the storage layer as well.
type PGLedgerStore struct {
	pool *pgxpool.Pool
}

// NewPGLedgerStore creates a ledger store backed by the given pool.
func NewPGLedgerStore(pool *pgxpool.Pool) *PGLedgerStore {
	return &PGLedgerStore{pool: pool}
}

const subscriptionColumns = `
	id, user_id, tier, status, platform, payment_method,
	started_at, period_end, renewal_due, auto_renewal,
	next_billing_amount, renewal_attempts, failure_reason, last_payment_at,
	original_purchase_id, discount_percent, promotion_code, renewal_count,
	last_renewal_success, last_renewal_failure, created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.Tier, &sub.Status, &sub.Platform, &sub.PaymentMethod,
		&sub.StartedAt, &sub.PeriodEnd, &sub.RenewalDue, &sub.AutoRenewal,
		&sub.NextBillingAmount, &sub.RenewalAttempts, &sub.FailureReason, &sub.LastPaymentAt,
		&sub.Metadata.OriginalPurchaseID, &sub.Metadata.DiscountPercent,
		&sub.Metadata.PromotionCode, &sub.Metadata.RenewalCount,
		&sub.Metadata.LastRenewalSuccess, &sub.Metadata.LastRenewalFailure,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (s *PGLedgerStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	return scanSubscription(row)
}

func (s *PGLedgerStore) GetCurrentByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1 AND status IN ($2, $3)
		ORDER BY CASE WHEN status = $2 THEN 0 ELSE 1 END, created_at DESC
		LIMIT 1`,
		userID, StatusActive, StatusPendingRenewal)
	return scanSubscription(row)
}

func (s *PGLedgerStore) Save(ctx context.Context, sub *Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			period_end = EXCLUDED.period_end,
			renewal_due = EXCLUDED.renewal_due,
			auto_renewal = EXCLUDED.auto_renewal,
			next_billing_amount = EXCLUDED.next_billing_amount,
			renewal_attempts = EXCLUDED.renewal_attempts,
			failure_reason = EXCLUDED.failure_reason,
			last_payment_at = EXCLUDED.last_payment_at,
			discount_percent = EXCLUDED.discount_percent,
			promotion_code = EXCLUDED.promotion_code,
			renewal_count = EXCLUDED.renewal_count,
			last_renewal_success = EXCLUDED.last_renewal_success,
			last_renewal_failure = EXCLUDED.last_renewal_failure,
			updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.UserID, sub.Tier, sub.Status, sub.Platform, sub.PaymentMethod,
		sub.StartedAt, sub.PeriodEnd, sub.RenewalDue, sub.AutoRenewal,
		sub.NextBillingAmount, sub.RenewalAttempts, sub.FailureReason, sub.LastPaymentAt,
		sub.Metadata.OriginalPurchaseID, sub.Metadata.DiscountPercent,
		sub.Metadata.PromotionCode, sub.Metadata.RenewalCount,
		sub.Metadata.LastRenewalSuccess, sub.Metadata.LastRenewalFailure,
		sub.CreatedAt, sub.UpdatedAt,
	)
	return err
}

func (s *PGLedgerStore) ListDueForRenewal(ctx context.Context, now time.Time) ([]*Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE auto_renewal
		  AND status IN ($1, $2)
		  AND renewal_due <= $3
		ORDER BY renewal_due`,
		StatusActive, StatusPendingRenewal, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (s *PGLedgerStore) ListEndedPeriods(ctx context.Context, now time.Time) ([]*Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status IN ($1, $2)
		  AND period_end <= $3
		ORDER BY period_end`,
		StatusActive, StatusCancelled, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (s *PGLedgerStore) CountOccupied(ctx context.Context) (int, map[Tier]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tier, COUNT(*)
		FROM subscriptions
		WHERE status IN ($1, $2)
		GROUP BY tier`,
		StatusActive, StatusPendingRenewal)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	total := 0
	perTier := make(map[Tier]int)
	for rows.Next() {
		var tier Tier
		var count int
		if err := rows.Scan(&tier, &count); err != nil {
			return 0, nil, err
		}
		perTier[tier] = count
		total += count
	}
	return total, perTier, rows.Err()
}

func collectSubscriptions(rows pgx.Rows) ([]*Subscription, error) {
	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
