package rules

import (
	"strings"

	"github.com/ivankudzin/payhooks/internal/domain/enums"
)

// NormalizeStatus maps the gateway status vocabularies onto PaymentStatus.
func NormalizeStatus(raw string) enums.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESSFUL", "SUCCESS":
		return enums.PaymentStatusSuccessful
	case "FAILED", "FAILURE", "CANCELLED", "CANCELED", "EXPIRED":
		return enums.PaymentStatusFailed
	case "PENDING", "CREATED":
		return enums.PaymentStatusPending
	default:
		return enums.PaymentStatusOther
	}
}
