package model

import "github.com/ivankudzin/payhooks/internal/domain/enums"

// Reference is the decoded external reference threaded through a gateway.
// Only the fields matching Kind are set.
type Reference struct {
	Kind         enums.ReferenceKind
	ListingID    string
	DurationDays int
	UserID       *string
	Raw          string
}
