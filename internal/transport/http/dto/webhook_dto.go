package dto

import "time"

type WebhookResponse struct {
	Success        bool       `json:"success"`
	ProcessedAt    time.Time  `json:"processed_at"`
	Outcome        string     `json:"outcome"`
	Kind           string     `json:"kind,omitempty"`
	Reference      string     `json:"reference,omitempty"`
	Ignored        bool       `json:"ignored,omitempty"`
	Duplicate      bool       `json:"duplicate,omitempty"`
	ListingID      string     `json:"listing_id,omitempty"`
	BoostExpiresAt *time.Time `json:"boost_expires_at,omitempty"`
}

type WebhookHealthResponse struct {
	Status      string             `json:"status"`
	Time        time.Time          `json:"time"`
	Gateway     string             `json:"gateway"`
	ConfigCheck WebhookConfigCheck `json:"config_check"`
}

type WebhookConfigCheck struct {
	HasURL        bool `json:"has_url"`
	HasKey        bool `json:"has_key"`
	HasWebhookKey bool `json:"has_webhook_key"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}
