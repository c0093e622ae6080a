package model

import (
	"time"

	"github.com/ivankudzin/payhooks/internal/domain/enums"
)

type BoostPayment struct {
	PaymentReference string              `json:"payment_reference"`
	ListingID        string              `json:"listing_id"`
	UserID           *string             `json:"user_id,omitempty"`
	Gateway          enums.Gateway       `json:"gateway"`
	Amount           int64               `json:"amount"`
	Currency         string              `json:"currency,omitempty"`
	DurationDays     int                 `json:"duration_days"`
	Status           enums.PaymentStatus `json:"status"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// Donation.UserID is nil for anonymous donors.
type Donation struct {
	PaymentReference string              `json:"payment_reference"`
	UserID           *string             `json:"user_id,omitempty"`
	Gateway          enums.Gateway       `json:"gateway"`
	Amount           int64               `json:"amount"`
	Currency         string              `json:"currency,omitempty"`
	Status           enums.PaymentStatus `json:"status"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}
