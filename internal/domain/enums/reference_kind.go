package enums

type ReferenceKind string

const (
	ReferenceKindBoost    ReferenceKind = "boost"
	ReferenceKindDonation ReferenceKind = "donation"
	ReferenceKindUnknown  ReferenceKind = "unknown"
)
