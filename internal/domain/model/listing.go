package model

import "time"

type Listing struct {
	ID             string     `json:"id"`
	SellerID       string     `json:"seller_id"`
	IsBoosted      bool       `json:"is_boosted"`
	BoostExpiresAt *time.Time `json:"boost_expires_at,omitempty"`
}
