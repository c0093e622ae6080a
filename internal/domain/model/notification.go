package model

import (
	"time"

	"github.com/ivankudzin/payhooks/internal/domain/enums"
)

// Notification is a gateway payment event reduced to the fields the receiver
// acts on.
type Notification struct {
	Gateway           enums.Gateway `validate:"required"`
	RawStatus         string
	Status            enums.PaymentStatus `validate:"required"`
	Reference         string              `validate:"required_if=Status successful,required_if=Status failed,max=255"`
	Amount            int64               `validate:"gte=0"`
	Currency          string              `validate:"omitempty,max=8"`
	ExternalReference string
	ReceivedAt        time.Time
}
