package model

import (
	"time"

	"github.com/ivankudzin/payhooks/internal/domain/enums"
)

type WebhookEvent struct {
	ID                string
	Gateway           enums.Gateway
	Reference         string
	Status            string
	ExternalReference string
	Payload           []byte
	Authenticated     bool
	ProcessedAt       *time.Time
	ProcessingError   string
	CreatedAt         time.Time
}
