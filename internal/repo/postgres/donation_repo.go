package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/payhooks/internal/domain/enums"
	"github.com/ivankudzin/payhooks/internal/domain/model"
)

type DonationRepo struct {
	pool *pgxpool.Pool
}

type DonationInput struct {
	PaymentReference string
	UserID           *string
	Gateway          enums.Gateway
	Amount           int64
	Currency         string
}

func NewDonationRepo(pool *pgxpool.Pool) *DonationRepo {
	return &DonationRepo{pool: pool}
}

func (r *DonationRepo) UpsertDonation(ctx context.Context, in DonationInput) (model.Donation, error) {
	if r.pool == nil {
		return model.Donation{}, fmt.Errorf("postgres pool is nil")
	}
	in.PaymentReference = strings.TrimSpace(in.PaymentReference)
	if in.PaymentReference == "" {
		return model.Donation{}, fmt.Errorf("invalid donation payload")
	}

	rec, err := scanDonation(r.pool.QueryRow(ctx, `
INSERT INTO donations (
	payment_reference,
	user_id,
	gateway,
	amount,
	currency,
	status,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, $5, 'successful', NOW(), NOW())
ON CONFLICT (payment_reference) DO UPDATE
SET
	user_id = EXCLUDED.user_id,
	gateway = EXCLUDED.gateway,
	amount = EXCLUDED.amount,
	currency = EXCLUDED.currency,
	status = EXCLUDED.status,
	updated_at = NOW()
RETURNING payment_reference, user_id, gateway, amount, currency, status, created_at, updated_at
`, in.PaymentReference, donorID(in.UserID), string(in.Gateway), in.Amount, strings.ToUpper(strings.TrimSpace(in.Currency))))
	if err != nil {
		return model.Donation{}, fmt.Errorf("upsert donation: %w", err)
	}

	return rec, nil
}

// RecordDonationFailure mirrors BoostRepo.RecordBoostFailure for donations.
func (r *DonationRepo) RecordDonationFailure(ctx context.Context, in DonationInput) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	in.PaymentReference = strings.TrimSpace(in.PaymentReference)
	if in.PaymentReference == "" {
		return false, fmt.Errorf("invalid donation payload")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE donations
SET
	status = 'failed',
	updated_at = NOW()
WHERE payment_reference = $1
  AND status <> 'successful'
`, in.PaymentReference)
	if err != nil {
		return false, fmt.Errorf("record donation failure: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
