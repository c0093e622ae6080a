package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/payhooks/internal/domain/enums"
	"github.com/ivankudzin/payhooks/internal/domain/model"
)

var ErrListingNotFound = errors.New("listing not found")

type BoostRepo struct {
	pool *pgxpool.Pool
}

type BoostApplyInput struct {
	PaymentReference string
	ListingID        string
	Gateway          enums.Gateway
	Amount           int64
	Currency         string
	DurationDays     int
	ExpiresAt        time.Time
}

func NewBoostRepo(pool *pgxpool.Pool) *BoostRepo {
	return &BoostRepo{pool: pool}
}

// ApplyBoost marks the listing boosted until in.ExpiresAt and upserts the
// payment row keyed by reference, both inside one transaction. The payment is
// attributed to the listing's seller.
func (r *BoostRepo) ApplyBoost(ctx context.Context, in BoostApplyInput) (model.BoostPayment, model.Listing, error) {
	if r.pool == nil {
		return model.BoostPayment{}, model.Listing{}, fmt.Errorf("postgres pool is nil")
	}
	in.PaymentReference = strings.TrimSpace(in.PaymentReference)
	in.ListingID = strings.TrimSpace(in.ListingID)
	if in.PaymentReference == "" || in.ListingID == "" || in.DurationDays <= 0 || in.ExpiresAt.IsZero() {
		return model.BoostPayment{}, model.Listing{}, fmt.Errorf("invalid boost apply payload")
	}

	var (
		payment model.BoostPayment
		listing model.Listing
	)
	err := WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		var sellerID string
		if err := tx.QueryRow(txCtx, `
SELECT seller_id
FROM listings
WHERE id = $1
FOR UPDATE
`, in.ListingID).Scan(&sellerID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrListingNotFound
			}
			return fmt.Errorf("lock listing for boost: %w", err)
		}

		if err := tx.QueryRow(txCtx, `
UPDATE listings
SET
	is_boosted = TRUE,
	boost_expires_at = $2
WHERE id = $1
RETURNING id, seller_id, is_boosted, boost_expires_at
`, in.ListingID, in.ExpiresAt.UTC()).Scan(
			&listing.ID,
			&listing.SellerID,
			&listing.IsBoosted,
			&listing.BoostExpiresAt,
		); err != nil {
			return fmt.Errorf("update listing boost: %w", err)
		}

		rec, err := scanBoostPayment(tx.QueryRow(txCtx, `
INSERT INTO boost_payments (
	payment_reference,
	listing_id,
	user_id,
	gateway,
	amount,
	currency,
	duration_days,
	status,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, 'successful', NOW(), NOW())
ON CONFLICT (payment_reference) DO UPDATE
SET
	listing_id = EXCLUDED.listing_id,
	user_id = EXCLUDED.user_id,
	gateway = EXCLUDED.gateway,
	amount = EXCLUDED.amount,
	currency = EXCLUDED.currency,
	duration_days = EXCLUDED.duration_days,
	status = EXCLUDED.status,
	updated_at = NOW()
RETURNING `+boostPaymentColumns,
			in.PaymentReference,
			in.ListingID,
			nullableString(sellerID),
			string(in.Gateway),
			in.Amount,
			strings.ToUpper(strings.TrimSpace(in.Currency)),
			in.DurationDays,
		))
		if err != nil {
			return fmt.Errorf("upsert boost payment: %w", err)
		}
		payment = rec
		return nil
	})
	if err != nil {
		return model.BoostPayment{}, model.Listing{}, err
	}

	return payment, listing, nil
}

// RecordBoostFailure marks an already stored, not yet successful payment for
// the reference as failed. Unknown references and successful payments are
// left alone and reported with changed=false; the listing is never touched.
func (r *BoostRepo) RecordBoostFailure(ctx context.Context, in BoostApplyInput) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	in.PaymentReference = strings.TrimSpace(in.PaymentReference)
	if in.PaymentReference == "" {
		return false, fmt.Errorf("invalid boost failure payload")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE boost_payments
SET
	status = 'failed',
	updated_at = NOW()
WHERE payment_reference = $1
  AND status <> 'successful'
`, in.PaymentReference)
	if err != nil {
		return false, fmt.Errorf("record boost failure: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ExpireBoosts clears the boost flag on listings whose window ended at or
// before now.
func (r *BoostRepo) ExpireBoosts(ctx context.Context, now time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE listings
SET is_boosted = FALSE
WHERE is_boosted
  AND boost_expires_at IS NOT NULL
  AND boost_expires_at <= $1
`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire listing boosts: %w", err)
	}

	return tag.RowsAffected(), nil
}

const boostPaymentColumns = `
	payment_reference,
	listing_id,
	user_id,
	gateway,
	amount,
	currency,
	duration_days,
	status,
	created_at,
	updated_at
`

func scanBoostPayment(row pgx.Row) (model.BoostPayment, error) {
	var (
		rec     model.BoostPayment
		gateway string
		status  string
	)
	if err := row.Scan(
		&rec.PaymentReference,
		&rec.ListingID,
		&rec.UserID,
		&gateway,
		&rec.Amount,
		&rec.Currency,
		&rec.DurationDays,
		&status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return model.BoostPayment{}, err
	}
	rec.Gateway = enums.Gateway(gateway)
	rec.Status = enums.PaymentStatus(status)
	return rec, nil
}

func nullableString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
