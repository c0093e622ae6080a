package rules

import (
	"strconv"
	"strings"
	"time"

	"github.com/ivankudzin/payhooks/internal/domain/enums"
	"github.com/ivankudzin/payhooks/internal/domain/model"
)

const (
	DefaultBoostDays = 7
	AnonymousUserID  = "anonymous"
)

// ParseReference decodes an external reference such as "boost:L1:14",
// "boost_L1" or "donation:anonymous". The delimiter is ':' when present in the
// string, otherwise '_'. The kind tag must match exactly. A donation without a
// user id is anonymous. Anything unrecognised yields a ReferenceKindUnknown
// value carrying the raw input.
func ParseReference(raw string, defaultDays int) model.Reference {
	if defaultDays <= 0 {
		defaultDays = DefaultBoostDays
	}

	unknown := model.Reference{Kind: enums.ReferenceKindUnknown, Raw: raw}
	if strings.TrimSpace(raw) == "" {
		return unknown
	}

	sep := "_"
	if strings.Contains(raw, ":") {
		sep = ":"
	}
	parts := strings.Split(raw, sep)
	if len(parts) < 2 {
		return unknown
	}

	id := strings.TrimSpace(parts[1])

	switch parts[0] {
	case string(enums.ReferenceKindBoost):
		if id == "" {
			return unknown
		}
		days := defaultDays
		if len(parts) > 2 {
			if n, err := strconv.Atoi(strings.TrimSpace(parts[2])); err == nil && n > 0 {
				days = n
			}
		}
		return model.Reference{
			Kind:         enums.ReferenceKindBoost,
			ListingID:    id,
			DurationDays: days,
			Raw:          raw,
		}
	case string(enums.ReferenceKindDonation):
		ref := model.Reference{Kind: enums.ReferenceKindDonation, Raw: raw}
		if id != "" && !strings.EqualFold(id, AnonymousUserID) {
			ref.UserID = &id
		}
		return ref
	default:
		return unknown
	}
}

func BoostExpiresAt(now time.Time, durationDays int) time.Time {
	return now.UTC().Add(time.Duration(durationDays) * 24 * time.Hour)
}
